package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// LinkLock is the conventional lock: a holder file unique to this process is
// hard-linked to <file>.lock. Creating the link is atomic and fails when the
// lock file already exists.
type LinkLock struct {
	path     string
	lockPath string
	unique   string
	held     bool
}

// instances keeps holder files of coordinators in one process apart
var instances atomic.Uint64

func NewLinkLock(filename string) *LinkLock {
	return &LinkLock{path: filename, lockPath: LockPath(filename)}
}

func (l *LinkLock) Path() string { return l.path }

func (l *LinkLock) Acquire(timeout time.Duration) error {
	if l.held {
		return nil
	}
	holder := newHolder()
	l.unique = fmt.Sprintf("%s.%s-%d-%d", l.lockPath, sanitizeHost(holder.Host), holder.PID, instances.Add(1))
	_ = os.Remove(l.unique)
	if err := writeHolder(l.unique, holder); err != nil {
		if unsupported(err) {
			return &UnsupportedError{Path: l.path, Err: err}
		}
		return fmt.Errorf("failed to write lock holder %s: %w", l.unique, err)
	}

	started := time.Now()
	err := poll(l.path, timeout, l.tryLink)
	if err != nil {
		_ = os.Remove(l.unique)
		return err
	}
	l.held = true
	log.Debug("Acquired lock", "path", l.path, "waited", time.Since(started))
	return nil
}

func (l *LinkLock) tryLink() (bool, error) {
	err := os.Link(l.unique, l.lockPath)
	if err == nil {
		return true, nil
	}
	// A lost reply on a network mount can report failure for a link that was made
	if l.linkedToUs() {
		return true, nil
	}
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if unsupported(err) {
		return false, &UnsupportedError{Path: l.path, Err: err}
	}
	return false, fmt.Errorf("failed to create lock %s: %w", l.lockPath, err)
}

func (l *LinkLock) linkedToUs() bool {
	mine, err := os.Stat(l.unique)
	if err != nil {
		return false
	}
	current, err := os.Stat(l.lockPath)
	if err != nil {
		return false
	}
	return os.SameFile(mine, current)
}

func (l *LinkLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if l.linkedToUs() {
		if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to release lock %s: %w", l.lockPath, err)
		}
	} else {
		log.Warn("Lock was broken by someone else before release", "path", l.path)
	}
	if err := os.Remove(l.unique); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to remove lock holder file", "path", l.unique, "error", err)
	}
	log.Debug("Released lock", "path", l.path)
	return nil
}

func (l *LinkLock) IsLocked() bool {
	_, err := os.Lstat(l.lockPath)
	return err == nil
}

func (l *LinkLock) IsLockedByMe() bool {
	return l.held && l.linkedToUs()
}

func sanitizeHost(host string) string {
	return strings.Map(func(r rune) rune {
		if r == filepath.Separator || r == ':' {
			return '_'
		}
		return r
	}, host)
}
