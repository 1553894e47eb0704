// Package taskdoc keeps a task file and its in-memory model in step with
// other writers of the same file.
package taskdoc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zenibako/taskdoc-golang/backup"
	"github.com/zenibako/taskdoc-golang/changes"
	"github.com/zenibako/taskdoc-golang/codec"
	"github.com/zenibako/taskdoc-golang/config"
	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/events"
	"github.com/zenibako/taskdoc-golang/lockfile"
)

// Document is the persistence unit: three root collections bound to a file.
// All methods except ChangedOnDisk must be called from one goroutine.
type Document struct {
	filename     string                         // Bound file, empty when unbound
	dirty        bool                           // Unsaved user changes exist
	syncDirty    bool                           // Sync config changed since last save
	suppressed   atomic.Int32                   // Held suppression tokens, read by the watcher
	lockOnSave   bool                           // Whether saves lock, set by the last load
	lockTimeout  time.Duration                  // Bounded wait for the file lock
	tasks        *domain.List[*domain.Task]     // Root tasks
	categories   *domain.List[*domain.Category] // Root categories
	notes        *domain.List[*domain.Note]     // Root notes
	syncConfig   json.RawMessage                // Opaque sync settings stored with the file
	changes      *changes.Log                   // Change monitor, owns the device guid
	bus          events.Bus                     // Notification subscribers
	encoder      codec.Encoder                  // On-disk format
	policy       ConflictPolicy                 // Attribute conflict tie-break
	backups      *backup.Store                  // Optional backups taken before overwriting
	cloudMarkers []string                       // Sync-client marker files, nil for defaults
	mountTable   string                         // Mount table override for lock selection

	changedOnDisk atomic.Bool // Set by the watcher, cleared by load, save and merge
	stampMu       sync.Mutex  // Guards stamp
	stamp         fileStamp   // File version after our last load, save or merge
	watcher       *Watcher    // Running watcher, stopped on clear
}

// LoadOptions control locking during Load
type LoadOptions struct {
	Lock        bool          // Acquire the file lock, and keep locking on save
	BreakLock   bool          // Remove an existing lock before acquiring
	LockTimeout time.Duration // Wait for the lock at most this long, zero for the document default
	ReadOnly    bool          // Do not register this document in the file's change registry
}

func NewDocument() *Document {
	d := &Document{
		lockOnSave:  true,
		lockTimeout: lockfile.DefaultTimeout,
		tasks:       domain.NewList[*domain.Task](),
		categories:  domain.NewList[*domain.Category](),
		notes:       domain.NewList[*domain.Note](),
		changes:     changes.NewLog(),
		encoder:     codec.JSON{Indent: true},
		policy:      CommittedWins,
	}
	dirtyTracker := domain.ObserverFunc(d.objectMutated)
	d.changes.Monitor(d.tasks, dirtyTracker)
	d.changes.Monitor(d.categories, dirtyTracker)
	d.changes.Monitor(d.notes, dirtyTracker)
	return d
}

// ApplyConfig takes lock, backup and cloud settings from cfg
func (d *Document) ApplyConfig(cfg *config.Config) {
	d.lockOnSave = cfg.Lock
	d.lockTimeout = cfg.LockTimeout
	d.cloudMarkers = cfg.CloudMarkers
	if cfg.Backup.Keep > 0 {
		d.SetBackupStore(&backup.Store{Dir: cfg.Backup.Dir, Keep: cfg.Backup.Keep})
	} else {
		d.backups = nil
	}
}

// SetEncoder replaces the on-disk format
func (d *Document) SetEncoder(enc codec.Encoder) {
	d.encoder = enc
}

// SetConflictPolicy sets the tie-break for attributes changed on both sides
func (d *Document) SetConflictPolicy(policy ConflictPolicy) {
	d.policy = policy
}

// SetBackupStore enables backups before every overwrite; nil disables them
func (d *Document) SetBackupStore(store *backup.Store) {
	d.backups = store
	if store != nil {
		store.Write = d.writeOptions()
	}
}

func (d *Document) BackupStore() *backup.Store { return d.backups }

// SetCloudMarkers overrides the sync-client marker file names
func (d *Document) SetCloudMarkers(markers []string) {
	d.cloudMarkers = markers
}

// SetLockTimeout sets how long locking waits by default
func (d *Document) SetLockTimeout(timeout time.Duration) {
	d.lockTimeout = timeout
}

// SetMountTable points lock selection at another mount table
func (d *Document) SetMountTable(path string) {
	d.mountTable = path
}

// LoadOptions returns the document's defaults for Load
func (d *Document) LoadOptions() LoadOptions {
	return LoadOptions{Lock: d.lockOnSave, LockTimeout: d.lockTimeout}
}

func (d *Document) Tasks() *domain.List[*domain.Task]          { return d.tasks }
func (d *Document) Categories() *domain.List[*domain.Category] { return d.categories }
func (d *Document) Notes() *domain.List[*domain.Note]          { return d.notes }

// Efforts lists the efforts of every task, nested ones included
func (d *Document) Efforts() []*domain.Effort {
	return domain.Efforts(d.tasks.Items())
}

func (d *Document) SyncConfig() json.RawMessage { return d.syncConfig }

func (d *Document) SetSyncConfig(cfg json.RawMessage) {
	d.syncConfig = cfg
	d.syncDirty = true
	if d.suppressed.Load() == 0 {
		d.markDirty()
	}
}

func (d *Document) Filename() string { return d.filename }

// Guid identifies this document among the writers of its file
func (d *Document) Guid() string { return d.changes.Guid() }

func (d *Document) IsDirty() bool { return d.dirty }

// NeedSave reports unsaved user changes outside of load, save and merge
func (d *Document) NeedSave() bool {
	return d.dirty && d.suppressed.Load() == 0
}

// ChangedOnDisk reports whether another writer changed the file since the
// last load, save or merge. Safe to call from any goroutine.
func (d *Document) ChangedOnDisk() bool { return d.changedOnDisk.Load() }

// Subscribe registers fn for the given event types, or all of them
func (d *Document) Subscribe(fn events.Listener, types ...events.Type) (unsubscribe func()) {
	return d.bus.Subscribe(fn, types...)
}

// Changes returns a copy of the unsaved changes recorded so far
func (d *Document) Changes() changes.ChangeSet { return d.changes.Changes() }

// Load replaces the document's content with filename. A missing file loads
// as an empty document. On failure the document is left unbound.
func (d *Document) Load(filename string, opts LoadOptions) (err error) {
	defer func() { observeOperation("load", err) }()
	d.publish(events.AboutToRead)
	if opts.LockTimeout == 0 {
		opts.LockTimeout = d.lockTimeout
	}

	release, err := d.acquireLock(filename, opts.Lock, opts.BreakLock, opts.LockTimeout)
	if err != nil {
		d.setFilename("")
		return err
	}
	defer release()

	done := d.suppress()
	defer done()

	snap, exists, err := d.readSnapshot(filename)
	var reg changes.Registry
	if err == nil && exists {
		reg, err = d.readRegistry(filename, snap.Registry)
	}
	if err != nil {
		d.setFilename("")
		return d.loadError(filename, err)
	}

	d.stopWatching()
	d.clearCollections()
	d.tasks.Append(snap.Tasks...)
	d.categories.Append(snap.Categories...)
	d.notes.Append(snap.Notes...)
	d.syncConfig = snap.SyncConfig
	d.syncDirty = false

	if exists && !opts.ReadOnly {
		if _, known := reg.Lookup(d.Guid()); !known {
			reg.Reset(d.Guid())
			if err := d.writeRegistry(filename, reg); err != nil {
				log.Warn("Could not register in the change registry", "file", filename, "error", err)
			}
		}
	}

	d.changes.ResetAllChanges()
	d.lockOnSave = opts.Lock
	d.setFilename(filename)
	d.recordStamp()
	d.markClean()
	d.publish(events.JustRead)
	log.Info("Loaded document", "file", filename, "tasks", d.tasks.Len(), "categories", d.categories.Len(), "notes", d.notes.Len())
	return nil
}

func (d *Document) loadError(filename string, err error) error {
	if errors.Is(err, codec.ErrFormatTooNew) {
		return err
	}
	loadErr := &LoadError{Filename: filename, Err: err}
	if d.backups != nil {
		if backups, listErr := d.backups.List(filename); listErr == nil {
			loadErr.Backups = backups
		}
	}
	return loadErr
}

// Save merges changes other writers made to the file, then writes the
// document if it has unsaved changes or the file does not exist yet.
func (d *Document) Save() (err error) {
	defer func() { observeOperation("save", err) }()
	if d.filename == "" {
		return ErrNoFilename
	}
	return d.save(true)
}

// SaveAs binds the document to filename and writes it there, replacing
// whatever the file held.
func (d *Document) SaveAs(filename string) (err error) {
	defer func() { observeOperation("save_as", err) }()
	previous := d.filename
	d.setFilename(filename)
	if err := d.save(false); err != nil {
		d.setFilename(previous)
		return err
	}
	return nil
}

func (d *Document) save(merge bool) error {
	filename := d.filename
	d.publish(events.AboutToSave)

	release, err := d.acquireLock(filename, d.lockOnSave, false, d.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	done := d.suppress()
	defer done()

	var reg changes.Registry
	exists := fileExists(filename)
	if merge {
		if _, reg, exists, err = d.mergeLocked(); err != nil {
			return &SaveError{Filename: filename, Err: err}
		}
	} else {
		reg = changes.NewRegistry()
		reg.Reset(d.Guid())
	}

	if d.dirty || !exists || !merge {
		if exists && d.backups != nil {
			if _, err := d.backups.Create(filename); err != nil {
				log.Warn("Backup failed, saving anyway", "file", filename, "error", err)
			}
		}
		if err := d.writeSnapshot(filename); err != nil {
			return &SaveError{Filename: filename, Err: err}
		}
		reg.Fold(d.Guid(), d.changes.Changes())
		reg.Reset(d.Guid())
		d.changes.ResetAllChanges()
		d.syncDirty = false
	}

	// The main file is committed. A stale sidecar would hide this save from
	// other writers, a missing one only makes them infer changes.
	if err := d.writeRegistry(filename, reg); err != nil {
		log.Warn("Could not write the change registry, removing it", "file", filename, "error", err)
		if err := os.Remove(codec.SidecarPath(filename)); err != nil && !os.IsNotExist(err) {
			log.Error("Could not remove the stale change registry", "path", codec.SidecarPath(filename), "error", err)
		}
	}

	d.recordStamp()
	d.markClean()
	d.publish(events.JustSaved)
	log.Info("Saved document", "file", filename)
	return nil
}

// MergeDiskChanges reconciles the document with the file as other writers
// left it. Unsaved local changes stay unsaved.
func (d *Document) MergeDiskChanges() (report *MergeReport, err error) {
	defer func() { observeOperation("merge", err) }()
	if d.filename == "" {
		return nil, ErrNoFilename
	}

	release, err := d.acquireLock(d.filename, d.lockOnSave, false, d.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	done := d.suppress()
	defer done()

	report, reg, exists, err := d.mergeLocked()
	if err != nil {
		return nil, err
	}
	if exists {
		if err := d.writeRegistry(d.filename, reg); err != nil {
			return report, err
		}
	}
	d.recordStamp()
	return report, nil
}

// mergeLocked reconciles memory with the file. The caller holds the lock and
// a suppression token. The returned registry no longer owes this document
// anything but is not yet persisted.
func (d *Document) mergeLocked() (*MergeReport, changes.Registry, bool, error) {
	guid := d.Guid()
	snap, exists, err := d.readSnapshot(d.filename)
	if err != nil {
		return nil, nil, exists, err
	}
	if !exists {
		reg := changes.NewRegistry()
		reg.Reset(guid)
		return newMergeReport(), reg, false, nil
	}
	reg, err := d.readRegistry(d.filename, snap.Registry)
	if err != nil {
		return nil, nil, true, err
	}

	remote, known := reg.Lookup(guid)
	if !known {
		log.Debug("Document unknown to the change registry, inferring remote changes", "guid", guid)
		remote = nil
	}
	report, err := Reconciler{Policy: d.policy}.Reconcile(d.diskPairs(snap), d.changes.Changes(), remote)
	if err != nil {
		return nil, nil, true, err
	}
	report.DiskExists = true
	if !d.syncDirty {
		d.syncConfig = snap.SyncConfig
	}
	reg.Reset(guid)

	observeReport(report)
	d.changedOnDisk.Store(false)
	d.publish(events.Merged, report)
	if report.Changed() {
		log.Info("Merged changes from disk", "file", d.filename, "summary", report.Summary())
	}
	return report, reg, true, nil
}

// Close forgets this document in the file's change registry and clears it
func (d *Document) Close() (err error) {
	defer func() { observeOperation("close", err) }()
	if d.filename != "" && fileExists(d.filename) {
		err = d.unregister()
	}
	d.Clear()
	return err
}

func (d *Document) unregister() error {
	release, err := d.acquireLock(d.filename, d.lockOnSave, false, d.lockTimeout)
	if err != nil {
		return fmt.Errorf("leaving the change registry: %w", err)
	}
	defer release()

	reg, err := d.readRegistry(d.filename, nil)
	if err != nil {
		return err
	}
	reg.Drop(d.Guid())
	return d.writeRegistry(d.filename, reg)
}

// Clear empties the document and unbinds it without touching the file. The
// document gets a new guid.
func (d *Document) Clear() {
	d.publish(events.AboutToClear)
	d.stopWatching()
	done := d.suppress()
	d.clearCollections()
	d.syncConfig = nil
	d.syncDirty = false
	done()

	d.setFilename("")
	d.changes.Regenerate()
	d.changedOnDisk.Store(false)
	d.stampMu.Lock()
	d.stamp = fileStamp{}
	d.stampMu.Unlock()
	d.markClean()
	d.publish(events.JustCleared)
}

// Merge imports another, unrelated file. Objects present in both are
// replaced by the imported version, keeping their category memberships.
func (d *Document) Merge(filename string) (err error) {
	defer func() { observeOperation("import", err) }()

	scratch := NewDocument()
	scratch.SetEncoder(d.encoder)
	scratch.SetCloudMarkers(d.cloudMarkers)
	scratch.SetMountTable(d.mountTable)
	opts := d.LoadOptions()
	opts.ReadOnly = true
	if err := scratch.Load(filename, opts); err != nil {
		return err
	}
	tasks := scratch.tasks.Items()
	categories := scratch.categories.Items()
	notes := scratch.notes.Items()
	scratch.Clear()

	incoming := make(map[string]bool)
	for _, roots := range [][]domain.Object{objects(tasks), objects(categories), objects(notes)} {
		for _, root := range roots {
			domain.Walk(root, func(o domain.Object) { incoming[o.ID()] = true })
		}
	}

	memberships := rememberCategories(incoming, d.tasks, d.notes)
	replaced := removeEverywhere(incoming, d.tasks, d.categories, d.notes)

	d.tasks.Append(tasks...)
	d.categories.Append(categories...)
	d.notes.Append(notes...)

	rewritten := changes.NewChangeSet()
	for _, roots := range [][]domain.Object{objects(tasks), objects(categories), objects(notes)} {
		for _, root := range roots {
			domain.Walk(root, func(o domain.Object) {
				if c, ok := o.(categorized); ok {
					for _, id := range memberships[o.ID()] {
						c.AddCategory(id)
					}
				}
				if replaced[o.ID()] {
					// A replaced object differs from what other writers know in every attribute
					for _, attr := range o.Attributes() {
						rewritten.Add(o.ID(), attr)
					}
				}
			})
		}
	}
	d.changes.Merge(rewritten)

	d.markDirty()
	log.Info("Imported file", "file", filename, "tasks", len(tasks), "categories", len(categories), "notes", len(notes), "replaced", len(replaced))
	return nil
}

// RestoreBackup overwrites filename with b and loads the result
func (d *Document) RestoreBackup(filename string, b backup.Backup, opts LoadOptions) error {
	if d.backups == nil {
		return errors.New("backups are disabled")
	}
	release, err := d.acquireLock(filename, opts.Lock, opts.BreakLock, opts.LockTimeout)
	if err != nil {
		return err
	}
	err = d.backups.Restore(filename, b)
	release()
	if err != nil {
		return err
	}
	opts.BreakLock = false
	return d.Load(filename, opts)
}

func (d *Document) acquireLock(filename string, lock, breakLock bool, timeout time.Duration) (release func(), err error) {
	if !lock {
		return func() {}, nil
	}
	if breakLock {
		if err := lockfile.Break(filename); err != nil {
			return nil, err
		}
	}
	coordinator := lockfile.New(filename, lockfile.Options{CloudMarkers: d.cloudMarkers, MountTable: d.mountTable})
	started := time.Now()
	err = coordinator.Acquire(timeout)
	lockWaitSeconds.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, err
	}
	return func() {
		if err := coordinator.Release(); err != nil {
			log.Warn("Failed to release lock", "file", filename, "error", err)
		}
	}, nil
}

// suppress stops dirty marking and change recording until the returned
// function is called. Tokens nest; releasing twice has no further effect.
func (d *Document) suppress() (release func()) {
	d.suppressed.Add(1)
	thaw := d.changes.Freeze()
	var once sync.Once
	return func() {
		once.Do(func() {
			thaw()
			d.suppressed.Add(-1)
		})
	}
}

func (d *Document) objectMutated(id, attribute string) {
	if d.suppressed.Load() > 0 {
		return
	}
	d.markDirty()
}

func (d *Document) markDirty() {
	if d.dirty {
		return
	}
	d.dirty = true
	d.publish(events.Dirty)
}

func (d *Document) markClean() {
	if !d.dirty {
		return
	}
	d.dirty = false
	d.publish(events.Clean)
}

func (d *Document) setFilename(filename string) {
	if d.filename == filename {
		return
	}
	d.filename = filename
	d.publish(events.FilenameChanged)
}

func (d *Document) publish(t events.Type, detail ...any) {
	e := events.Event{Type: t, Filename: d.filename}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	d.bus.Publish(e)
}

func (d *Document) clearCollections() {
	d.tasks.Clear()
	d.categories.Clear()
	d.notes.Clear()
}

func (d *Document) recordStamp() {
	stamp := statFile(d.filename)
	d.stampMu.Lock()
	d.stamp = stamp
	d.stampMu.Unlock()
	d.changedOnDisk.Store(false)
}

type categorized interface {
	Categories() []string
	AddCategory(id string)
}

// rememberCategories collects the memberships of objects about to be replaced
func rememberCategories(ids map[string]bool, roots ...domain.Collection) map[string][]string {
	memberships := make(map[string][]string)
	for _, root := range roots {
		for _, o := range root.Objects() {
			domain.Walk(o, func(o domain.Object) {
				if c, ok := o.(categorized); ok && ids[o.ID()] {
					memberships[o.ID()] = c.Categories()
				}
			})
		}
	}
	return memberships
}

// removeEverywhere removes objects with the given ids wherever they are nested
func removeEverywhere(ids map[string]bool, colls ...domain.Collection) map[string]bool {
	removed := make(map[string]bool)
	var visit func(c domain.Collection)
	visit = func(c domain.Collection) {
		for _, o := range c.Objects() {
			if ids[o.ID()] {
				domain.Walk(o, func(o domain.Object) {
					if ids[o.ID()] {
						removed[o.ID()] = true
					}
				})
				c.RemoveObject(o.ID())
				continue
			}
			for _, nested := range o.Collections() {
				visit(nested)
			}
		}
	}
	for _, c := range colls {
		visit(c)
	}
	return removed
}

func objects[T domain.Object](items []T) []domain.Object {
	out := make([]domain.Object, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
