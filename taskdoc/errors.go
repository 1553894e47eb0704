package taskdoc

import (
	"errors"
	"fmt"

	"github.com/zenibako/taskdoc-golang/backup"
)

// ErrNoFilename is returned by operations that need a bound file
var ErrNoFilename = errors.New("document has no file name")

// LoadError reports a failed load. Backups lists known backups of the file,
// newest first, so the caller can offer to restore one.
type LoadError struct {
	Filename string
	Err      error
	Backups  []backup.Backup
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("failed to load %s: %v", e.Filename, e.Err)
	if len(e.Backups) > 0 {
		msg += fmt.Sprintf(" (%d backups available)", len(e.Backups))
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// SaveError reports a failed save. The file on disk still holds its previous
// content and the document keeps its unsaved changes.
type SaveError struct {
	Filename string
	Err      error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save %s: %v", e.Filename, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }
