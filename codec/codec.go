// Package codec reads and writes the main data file and its change registry
// sidecar.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/zenibako/taskdoc-golang/changes"
	"github.com/zenibako/taskdoc-golang/domain"
)

// Version is the newest file format this build can read and the one it writes
const Version = 1

var (
	// ErrFormatTooNew means the file was written by a newer, incompatible version
	ErrFormatTooNew = errors.New("file format too new")
	// ErrCorrupt means the file could not be parsed
	ErrCorrupt = errors.New("corrupt file")
)

// FormatError reports a file whose format version is not supported
type FormatError struct {
	Path      string
	Version   int
	Supported int
}

func (e *FormatError) Error() string {
	name := e.Path
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("%s has format version %d, this build supports up to %d", name, e.Version, e.Supported)
}

func (e *FormatError) Unwrap() error { return ErrFormatTooNew }

// Snapshot is everything the main data file holds
type Snapshot struct {
	Tasks      []*domain.Task
	Categories []*domain.Category
	Notes      []*domain.Note
	// SyncConfig is opaque to this package
	SyncConfig json.RawMessage
	// Registry is only set when the file carries an inline change registry
	Registry changes.Registry
	Guid     string
}

// Encoder owns the on-disk formats
type Encoder interface {
	Read(r io.Reader) (*Snapshot, error)
	Write(w io.Writer, s *Snapshot) error
	ReadRegistry(r io.Reader) (changes.Registry, error)
	WriteRegistry(w io.Writer, reg changes.Registry) error
}

// SidecarPath names the change registry file kept next to filename
func SidecarPath(filename string) string {
	return filename + ".delta"
}

// corrupt wraps a parse failure with a readable excerpt of the offending data
func corrupt(what string, data []byte, err error) error {
	const maxExcerpt = 200
	excerpt := string(data)
	if len(data) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		excerpt = string(data[:cut]) + "..."
	}
	if excerpt == "" {
		return fmt.Errorf("%w: %s is empty: %v", ErrCorrupt, what, err)
	}
	return fmt.Errorf("%w: failed to parse %s: %v\n%s", ErrCorrupt, what, err, excerpt)
}
