package lockfile

import (
	"golang.org/x/sys/unix"
)

const aufsSuperMagic = 0x61756673

// isNetworkStatfs is the fallback when no mount table is readable
func isNetworkStatfs(dir string) bool {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return false
	}
	switch uint32(st.Type) {
	case unix.NFS_SUPER_MAGIC,
		unix.SMB_SUPER_MAGIC,
		unix.CIFS_SUPER_MAGIC,
		unix.SMB2_SUPER_MAGIC,
		unix.AFS_SUPER_MAGIC,
		unix.CODA_SUPER_MAGIC,
		unix.V9FS_MAGIC,
		unix.OVERLAYFS_SUPER_MAGIC,
		aufsSuperMagic:
		return true
	}
	return false
}
