// Package lockfile provides cooperative cross-process mutual exclusion over a
// single file name. The lock artifact depends on what the file system can do:
// a PID/host lock file made atomic with a hard link, a lock directory made
// atomic with mkdir, or nothing at all.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrLockTimeout means another holder kept the lock past the timeout
	ErrLockTimeout = errors.New("lock timeout")
	// ErrLockUnsupported means the lock artifact cannot be created at that path
	ErrLockUnsupported = errors.New("locking unsupported")
)

// DefaultTimeout is how long Acquire waits when callers have no preference
const DefaultTimeout = 5 * time.Second

const pollInterval = 50 * time.Millisecond

// Coordinator guards one file name
type Coordinator interface {
	// Acquire waits up to timeout for the lock. A timeout of zero tries once.
	Acquire(timeout time.Duration) error
	// Release gives the lock up. Releasing a lock that is not held is a no-op.
	Release() error
	// IsLocked reports whether anybody holds the lock
	IsLocked() bool
	// IsLockedByMe reports whether this coordinator holds the lock
	IsLockedByMe() bool
	// Path is the file name being guarded
	Path() string
}

// HolderInfo describes who owns a lock
type HolderInfo struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
	// Alive is filled on read: false when the holder is a dead process on this host
	Alive bool `json:"-"`
}

func (h *HolderInfo) String() string {
	if h == nil {
		return "unknown holder"
	}
	state := ""
	if !h.Alive {
		state = ", not running"
	}
	return fmt.Sprintf("pid %d on %s since %s%s", h.PID, h.Host, h.AcquiredAt.Format(time.RFC3339), state)
}

// TimeoutError is returned by Acquire when the lock stayed taken
type TimeoutError struct {
	Path   string
	Holder *HolderInfo
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for the lock on %s (held by %s)", e.Path, e.Holder)
}

func (e *TimeoutError) Unwrap() error { return ErrLockTimeout }

// UnsupportedError is returned when no lock artifact can be created
type UnsupportedError struct {
	Path string
	Err  error
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("cannot lock %s: %v", e.Path, e.Err)
}

func (e *UnsupportedError) Unwrap() []error { return []error{ErrLockUnsupported, e.Err} }

// Options tunes the lock selection
type Options struct {
	// CloudMarkers name sync-client marker files, see safewrite.DefaultCloudMarkers
	CloudMarkers []string
	// Platform defaults to runtime.GOOS
	Platform string
	// MountTable defaults to /proc/mounts
	MountTable string
}

// New picks the lock implementation suited to the file system holding filename
func New(filename string, opts Options) Coordinator {
	abs, err := filepath.Abs(filename)
	if err != nil {
		abs = filename
	}
	platform := opts.Platform
	if platform == "" {
		platform = runtime.GOOS
	}

	switch class := Classify(abs, opts); {
	case class == ClassCloud && cloudLocksMisbehave(platform):
		log.Debug("Cloud-synced folder, locking disabled", "path", abs, "platform", platform)
		return NewNoopLock(abs)
	case class == ClassNetwork:
		log.Debug("Network or union file system, using directory lock", "path", abs)
		return NewDirLock(abs)
	default:
		return NewLinkLock(abs)
	}
}

// cloudLocksMisbehave lists platforms whose sync client breaks lock files
// by syncing them across devices mid-rename.
func cloudLocksMisbehave(platform string) bool {
	return platform == "darwin" || platform == "windows"
}

// LockPath is the lock artifact for filename
func LockPath(filename string) string {
	return filename + ".lock"
}

// Break removes any lock artifact for filename without acquiring the lock
func Break(filename string) error {
	lockPath := LockPath(filename)
	holder, _ := Holder(filename)
	if err := os.RemoveAll(lockPath); err != nil {
		return fmt.Errorf("failed to break lock %s: %w", lockPath, err)
	}
	log.Warn("Broke lock", "path", filename, "holder", holder)
	return nil
}

// Holder reads the lock owner of filename. It returns nil and no error when the
// file is not locked.
func Holder(filename string) (*HolderInfo, error) {
	lockPath := LockPath(filename)
	info, err := os.Stat(lockPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	infoPath := lockPath
	if info.IsDir() {
		infoPath = filepath.Join(lockPath, holderFile)
	}
	return readHolder(infoPath)
}

const holderFile = "holder.json"

func newHolder() *HolderInfo {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return &HolderInfo{PID: os.Getpid(), Host: host, AcquiredAt: time.Now().UTC(), Alive: true}
}

func writeHolder(path string, h *HolderInfo) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readHolder(path string) (*HolderInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h HolderInfo
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("unreadable lock holder in %s: %w", path, err)
	}
	h.Alive = true
	if host, err := os.Hostname(); err == nil && host == h.Host {
		h.Alive = isProcessAlive(h.PID)
	}
	return &h, nil
}

// poll retries try until it reports success, a hard error, or timeout passes
func poll(path string, timeout time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			holder, _ := Holder(path)
			return &TimeoutError{Path: path, Holder: holder}
		}
		time.Sleep(min(pollInterval, time.Until(deadline)))
	}
}
