// Package safewrite replaces a file so that readers and crashes only ever
// observe the complete old content or the complete new content.
package safewrite

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// DefaultCloudMarkers name the files a sync client keeps at the root of the
// folders it manages.
var DefaultCloudMarkers = []string{".dropbox", ".dropbox.cache"}

// Options tunes Create
type Options struct {
	// CloudMarkers overrides DefaultCloudMarkers when non-nil
	CloudMarkers []string
	// Perm is used when the destination does not exist yet. Default 0644.
	Perm os.FileMode
}

func (o Options) markers() []string {
	if o.CloudMarkers != nil {
		return o.CloudMarkers
	}
	return DefaultCloudMarkers
}

func (o Options) perm() os.FileMode {
	if o.Perm == 0 {
		return 0644
	}
	return o.Perm
}

// File buffers writes and commits them on Close.
//
// Outside a cloud-synced folder the content goes to a temporary tmp-N file in
// the destination directory which is renamed over the destination on Close.
// Inside a cloud-synced folder the sync client misreads a rename as a delete
// plus create, so the content is kept in memory and written straight to the
// destination on Close. That path is not crash safe.
type File struct {
	path    string
	perm    os.FileMode
	direct  bool
	tmpPath string
	tmp     *os.File
	buf     *bufio.Writer
	mem     bytes.Buffer
	done    bool
}

// Create prepares a safe write of path
func Create(path string, opts Options) (*File, error) {
	dir := filepath.Dir(path)
	f := &File{path: path, perm: opts.perm()}

	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		f.perm = info.Mode().Perm()
	}

	if IsCloud(dir, opts.markers()) {
		log.Debug("Destination is inside a cloud-synced folder, writing directly", "path", path)
		f.direct = true
		return f, nil
	}

	tmp, tmpPath, err := createTemp(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file next to %s: %w", path, err)
	}
	f.tmp = tmp
	f.tmpPath = tmpPath
	f.buf = bufio.NewWriter(tmp)
	return f, nil
}

// Direct reports whether the write bypasses the temporary file
func (f *File) Direct() bool { return f.direct }

func (f *File) Write(p []byte) (int, error) {
	if f.done {
		return 0, os.ErrClosed
	}
	if f.direct {
		return f.mem.Write(p)
	}
	return f.buf.Write(p)
}

// Close commits the buffered content to the destination
func (f *File) Close() error {
	if f.done {
		return os.ErrClosed
	}
	f.done = true

	if f.direct {
		return writeDirect(f.path, f.mem.Bytes(), f.perm)
	}

	if err := f.flushTemp(); err != nil {
		_ = os.Remove(f.tmpPath)
		return err
	}

	if err := moveOutOfTheWay(f.path); err != nil {
		_ = os.Remove(f.tmpPath)
		return err
	}

	if err := os.Rename(f.tmpPath, f.path); err != nil {
		_ = os.Remove(f.tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", f.tmpPath, f.path, err)
	}
	syncDir(filepath.Dir(f.path))
	log.Debug("Safely replaced file", "path", f.path)
	return nil
}

// Abort discards everything written so far and leaves the destination untouched
func (f *File) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	if f.direct {
		f.mem.Reset()
		return nil
	}
	_ = f.tmp.Close()
	if err := os.Remove(f.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", f.tmpPath, err)
	}
	return nil
}

func (f *File) flushTemp() error {
	if err := f.buf.Flush(); err != nil {
		_ = f.tmp.Close()
		return fmt.Errorf("failed to write %s: %w", f.tmpPath, err)
	}
	if err := f.tmp.Chmod(f.perm); err != nil {
		log.Debug("Could not set permissions on temporary file", "path", f.tmpPath, "error", err)
	}
	if err := f.tmp.Sync(); err != nil {
		_ = f.tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", f.tmpPath, err)
	}
	if err := f.tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", f.tmpPath, err)
	}
	return nil
}

// WriteFile writes data to path through a File
func WriteFile(path string, data []byte, opts Options) error {
	f, err := Create(path, opts)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return err
	}
	return f.Close()
}

// IsCloud reports whether dir or one of its ancestors contains a sync-client marker
func IsCloud(dir string, markers []string) bool {
	if len(markers) == 0 {
		return false
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	for {
		for _, marker := range markers {
			if _, err := os.Lstat(filepath.Join(abs, marker)); err == nil {
				return true
			}
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return false
		}
		abs = parent
	}
}

// createTemp claims the first unused tmp-N name in dir
func createTemp(dir string) (*os.File, string, error) {
	for n := 0; n < 10000; n++ {
		name := filepath.Join(dir, fmt.Sprintf("tmp-%d", n))
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if err == nil {
			return f, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no unused temporary file name in %s", dir)
}

// moveOutOfTheWay relocates anything at path that a rename cannot replace.
// Regular files and symlinks are replaced atomically by the rename itself.
func moveOutOfTheWay(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	if info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	target := UnusedName(path)
	log.Warn("Unexpected entry at destination, moving it aside", "path", path, "moved_to", target)
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("failed to move %s out of the way: %w", path, err)
	}
	return nil
}

// UnusedName returns the first "name (n).ext" next to path that does not exist
func UnusedName(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func writeDirect(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

// syncDir makes the rename durable where the platform allows opening directories
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	_ = d.Sync()
}
