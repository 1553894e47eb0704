package lockfile

import (
	"time"
)

// NoopLock never creates an artifact and always reports ownership. It is used
// where real locks misbehave; concurrent writers are an accepted race there.
type NoopLock struct {
	path string
}

func NewNoopLock(filename string) *NoopLock {
	return &NoopLock{path: filename}
}

func (l *NoopLock) Path() string { return l.path }

func (l *NoopLock) Acquire(time.Duration) error { return nil }

func (l *NoopLock) Release() error { return nil }

func (l *NoopLock) IsLocked() bool { return true }

func (l *NoopLock) IsLockedByMe() bool { return true }
