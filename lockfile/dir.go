package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// DirLock uses the creation of <file>.lock as a directory as its atomic
// primitive. It serves network and union file systems whose hard links are
// not reliable.
type DirLock struct {
	path     string
	lockPath string
	holder   *HolderInfo
	held     bool
}

func NewDirLock(filename string) *DirLock {
	return &DirLock{path: filename, lockPath: LockPath(filename)}
}

func (l *DirLock) Path() string { return l.path }

func (l *DirLock) Acquire(timeout time.Duration) error {
	if l.held {
		return nil
	}
	err := poll(l.path, timeout, l.tryMkdir)
	if err != nil {
		return err
	}
	l.held = true
	l.holder = newHolder()
	if err := writeHolder(filepath.Join(l.lockPath, holderFile), l.holder); err != nil {
		// The directory alone is the lock; the holder file is informational
		log.Warn("Failed to record lock holder", "path", l.lockPath, "error", err)
	}
	log.Debug("Acquired directory lock", "path", l.path)
	return nil
}

func (l *DirLock) tryMkdir() (bool, error) {
	err := os.Mkdir(l.lockPath, 0755)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if unsupported(err) {
		return false, &UnsupportedError{Path: l.path, Err: err}
	}
	return false, fmt.Errorf("failed to create lock directory %s: %w", l.lockPath, err)
}

func (l *DirLock) Release() error {
	if !l.held {
		return nil
	}
	mine := l.IsLockedByMe()
	l.held = false
	if !mine {
		log.Warn("Lock was broken by someone else before release", "path", l.path)
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockPath, holderFile))
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock directory %s: %w", l.lockPath, err)
	}
	log.Debug("Released directory lock", "path", l.path)
	return nil
}

func (l *DirLock) IsLocked() bool {
	info, err := os.Stat(l.lockPath)
	return err == nil && info.IsDir()
}

func (l *DirLock) IsLockedByMe() bool {
	if !l.held {
		return false
	}
	// Broken and re-taken by someone else
	current, err := readHolder(filepath.Join(l.lockPath, holderFile))
	if err != nil {
		return l.IsLocked()
	}
	return current.PID == l.holder.PID && current.Host == l.holder.Host && current.AcquiredAt.Equal(l.holder.AcquiredAt)
}
