//go:build !linux

package lockfile

func isNetworkStatfs(string) bool { return false }
