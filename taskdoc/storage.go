package taskdoc

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zenibako/taskdoc-golang/changes"
	"github.com/zenibako/taskdoc-golang/codec"
	"github.com/zenibako/taskdoc-golang/domain"
	"github.com/zenibako/taskdoc-golang/safewrite"
)

// fileStamp identifies one version of a file on disk
type fileStamp struct {
	info os.FileInfo
}

func statFile(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{info: info}
}

func (s fileStamp) exists() bool { return s.info != nil }

func (s fileStamp) modTime() time.Time {
	if s.info == nil {
		return time.Time{}
	}
	return s.info.ModTime()
}

func (s fileStamp) equal(other fileStamp) bool {
	if s.info == nil || other.info == nil {
		return s.info == nil && other.info == nil
	}
	return os.SameFile(s.info, other.info) &&
		s.info.ModTime().Equal(other.info.ModTime()) &&
		s.info.Size() == other.info.Size()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (d *Document) writeOptions() safewrite.Options {
	return safewrite.Options{CloudMarkers: d.cloudMarkers}
}

// readSnapshot reads the main file. A missing file is not an error.
func (d *Document) readSnapshot(filename string) (*codec.Snapshot, bool, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return &codec.Snapshot{}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	snap, err := d.encoder.Read(f)
	if err != nil {
		var formatErr *codec.FormatError
		if errors.As(err, &formatErr) {
			formatErr.Path = filename
		}
		return nil, true, err
	}
	return snap, true, nil
}

// readRegistry reads the sidecar, falling back to the registry stored inline
// in the main file. An unreadable sidecar is logged and treated as missing:
// reconciliation then infers remote changes.
func (d *Document) readRegistry(filename string, inline changes.Registry) (changes.Registry, error) {
	fallback := inline
	if fallback == nil {
		fallback = changes.NewRegistry()
	}

	path := codec.SidecarPath(filename)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		log.Warn("Cannot open change registry, inferring changes instead", "path", path, "error", err)
		return fallback, nil
	}
	defer f.Close()

	reg, err := d.encoder.ReadRegistry(f)
	if errors.Is(err, codec.ErrFormatTooNew) {
		var formatErr *codec.FormatError
		if errors.As(err, &formatErr) {
			formatErr.Path = path
		}
		return nil, err
	}
	if err != nil {
		log.Warn("Change registry is unreadable, inferring changes instead", "path", path, "error", err)
		return fallback, nil
	}
	return reg, nil
}

func (d *Document) snapshot() *codec.Snapshot {
	return &codec.Snapshot{
		Tasks:      d.tasks.Items(),
		Categories: d.categories.Items(),
		Notes:      d.notes.Items(),
		SyncConfig: d.syncConfig,
		Guid:       d.changes.Guid(),
	}
}

func (d *Document) writeSnapshot(filename string) error {
	f, err := safewrite.Create(filename, d.writeOptions())
	if err != nil {
		return err
	}
	if err := d.encoder.Write(f, d.snapshot()); err != nil {
		_ = f.Abort()
		return err
	}
	return f.Close()
}

func (d *Document) writeRegistry(filename string, reg changes.Registry) error {
	path := codec.SidecarPath(filename)
	f, err := safewrite.Create(path, d.writeOptions())
	if err != nil {
		return err
	}
	if err := d.encoder.WriteRegistry(f, reg); err != nil {
		_ = f.Abort()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write change registry %s: %w", path, err)
	}
	return nil
}

// diskPairs wraps the snapshot's roots so they can be reconciled with memory
func (d *Document) diskPairs(snap *codec.Snapshot) []Pair {
	tasks := domain.NewList[*domain.Task]()
	tasks.Append(snap.Tasks...)
	categories := domain.NewList[*domain.Category]()
	categories.Append(snap.Categories...)
	notes := domain.NewList[*domain.Note]()
	notes.Append(snap.Notes...)
	return []Pair{
		{Memory: d.tasks, Disk: tasks},
		{Memory: d.categories, Disk: categories},
		{Memory: d.notes, Disk: notes},
	}
}
