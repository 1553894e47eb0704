package lockfile

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zenibako/taskdoc-golang/safewrite"
)

// Class groups file systems by how locks behave on them
type Class int

const (
	ClassLocal Class = iota
	// ClassNetwork covers network and union mounts where hard links are unreliable
	ClassNetwork
	// ClassCloud is a folder managed by a sync client
	ClassCloud
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassCloud:
		return "cloud"
	default:
		return "local"
	}
}

var networkTypes = map[string]bool{
	"nfs":           true,
	"nfs4":          true,
	"cifs":          true,
	"smbfs":         true,
	"smb3":          true,
	"afs":           true,
	"ncpfs":         true,
	"9p":            true,
	"ceph":          true,
	"glusterfs":     true,
	"lustre":        true,
	"overlay":       true,
	"aufs":          true,
	"unionfs":       true,
	"fuse.sshfs":    true,
	"fuse.unionfs":  true,
	"fuse.mergerfs": true,
	"fuse.davfs2":   true,
}

// Classify inspects the folder holding filename
func Classify(filename string, opts Options) Class {
	dir := filepath.Dir(filename)
	markers := opts.CloudMarkers
	if markers == nil {
		markers = safewrite.DefaultCloudMarkers
	}
	if safewrite.IsCloud(dir, markers) {
		return ClassCloud
	}

	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	table := opts.MountTable
	if table == "" {
		table = "/proc/mounts"
	}
	if fstype, ok := mountType(table, dir); ok {
		if networkTypes[fstype] {
			return ClassNetwork
		}
		return ClassLocal
	}
	if isNetworkStatfs(dir) {
		return ClassNetwork
	}
	return ClassLocal
}

// mountType finds the file system type of the longest mount point containing dir
func mountType(table, dir string) (string, bool) {
	f, err := os.Open(table)
	if err != nil {
		return "", false
	}
	defer f.Close()
	mounts := parseMounts(f)

	best, bestType := -1, ""
	for point, fstype := range mounts {
		if !within(dir, point) || len(point) <= best {
			continue
		}
		best, bestType = len(point), fstype
	}
	return bestType, best >= 0
}

// parseMounts reads the fstab-style lines of a mount table into mount point -> type
func parseMounts(r io.Reader) map[string]string {
	mounts := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mounts[unescapeMount(fields[1])] = fields[2]
	}
	return mounts
}

// unescapeMount decodes the octal escapes the kernel uses for blanks in mount points
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func within(dir, point string) bool {
	if point == "/" || dir == point {
		return true
	}
	return strings.HasPrefix(dir, point+string(filepath.Separator))
}
