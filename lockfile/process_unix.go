//go:build unix

package lockfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessAlive sends signal 0, which checks existence without affecting the process
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// unsupported reports errors meaning no lock artifact can ever be created here
func unsupported(err error) bool {
	return errors.Is(err, unix.EROFS) ||
		errors.Is(err, unix.EACCES) ||
		errors.Is(err, unix.EPERM) ||
		errors.Is(err, unix.ENOTSUP) ||
		errors.Is(err, unix.EOPNOTSUPP) ||
		errors.Is(err, unix.EMLINK)
}
