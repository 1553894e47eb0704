package taskdoc

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/zenibako/taskdoc-golang/events"
)

// DefaultPollInterval backs up OS notifications, which network file systems
// and some sync clients do not deliver.
const DefaultPollInterval = 2 * time.Second

// Watcher notices when a file changes. It watches the parent directory so a
// file replaced by rename keeps being watched.
type Watcher struct {
	path     string
	interval time.Duration
	check    func() bool // reports a change worth announcing
	onChange func()
	fsw      *fsnotify.Watcher
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewWatcher creates a watcher for path that calls check on every
// notification and poll tick, and onChange when check reports true.
func NewWatcher(path string, interval time.Duration, check func() bool, onChange func()) (*Watcher, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		interval: interval,
		check:    check,
		onChange: onChange,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("File notifications unavailable, polling only", "path", path, "error", err)
		return w, nil
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		log.Warn("Cannot watch directory, polling only", "path", filepath.Dir(w.path), "error", err)
		_ = fsw.Close()
		return w, nil
	}
	w.fsw = fsw
	return w, nil
}

// Start runs the watcher until ctx is done or Stop is called
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	if w.fsw != nil {
		fsEvents, fsErrors = w.fsw.Events, w.fsw.Errors
	}

	log.Debug("Started watching file", "path", w.path, "poll", w.interval, "notify", w.fsw != nil)
	for {
		select {
		case event, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.poll()
		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			log.Warn("File watcher error", "path", w.path, "error", err)
		case <-ticker.C:
			w.poll()
		case <-w.stop:
			log.Debug("File watcher stopping", "path", w.path)
			return
		case <-ctx.Done():
			log.Debug("File watcher stopping", "path", w.path)
			return
		}
	}
}

func (w *Watcher) poll() {
	if w.check() {
		log.Info("File changed on disk", "path", w.path)
		if w.onChange != nil {
			w.onChange()
		}
	}
}

// Stop ends the watcher and waits for it to finish
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		if w.fsw != nil {
			err = w.fsw.Close()
		}
	})
	<-w.done
	return err
}

// Watch starts watching the bound file for changes made by other writers.
// When one is seen ChangedOnDisk becomes true, a ChangedOnDisk event is
// published and handoff is called. Both run on the watcher goroutine;
// handoff should schedule MergeDiskChanges on the document's goroutine
// rather than merge itself.
func (d *Document) Watch(ctx context.Context, interval time.Duration, handoff func()) (*Watcher, error) {
	if d.filename == "" {
		return nil, ErrNoFilename
	}
	d.stopWatching()

	filename := d.filename
	w, err := NewWatcher(filename, interval, func() bool { return d.checkDisk(filename) }, func() {
		d.bus.Publish(events.Event{Type: events.ChangedOnDisk, Filename: filename})
		if handoff != nil {
			handoff()
		}
	})
	if err != nil {
		return nil, err
	}
	d.watcher = w
	w.Start(ctx)
	return w, nil
}

var statDisk = statFile

// checkDisk compares the file with the version we last read or wrote. Our
// own load, save and merge are in progress while suppressed and are skipped.
func (d *Document) checkDisk(filename string) bool {
	if d.suppressed.Load() > 0 {
		return false
	}
	current := statDisk(filename)
	d.stampMu.Lock()
	recorded := d.stamp
	d.stampMu.Unlock()
	if current.equal(recorded) {
		return false
	}
	// A save that began after the stat records its stamp before it ends
	if d.suppressed.Load() > 0 {
		return false
	}
	// Announce each external change once until the next load, save or merge
	return !d.changedOnDisk.Swap(true)
}

func (d *Document) stopWatching() {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.Stop(); err != nil {
		log.Debug("Error stopping file watcher", "error", err)
	}
	d.watcher = nil
}
