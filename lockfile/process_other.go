//go:build !unix

package lockfile

import (
	"errors"
	"os"
)

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

func unsupported(err error) bool {
	return errors.Is(err, os.ErrPermission)
}
