package util

import (
	"bufio"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// MountInfo describes the filesystem a study path lives on
type MountInfo struct {
	MountPoint string
	FSType     string
	Network    bool
}

func (m *MountInfo) String() string {
	if m.MountPoint == "" {
		return m.FSType
	}
	return m.FSType + " at " + m.MountPoint
}

// DetectMount resolves path (following symlinks, so a study directory
// linked onto a share is judged by the share) and classifies its mount.
// The path must exist.
func DetectMount(path string) (*MountInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "mount: resolve %s", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, eris.Wrapf(err, "mount: resolve %s", abs)
	}
	info, err := detectPlatformMount(resolved)
	if err != nil {
		return nil, eris.Wrapf(err, "mount: detect %s", resolved)
	}
	return info, nil
}

// mountEntry is one line of a mount table
type mountEntry struct {
	point  string
	fsType string
}

// parseMountTable reads the fstab(5) format used by /proc/self/mounts
func parseMountTable(r io.Reader) ([]mountEntry, error) {
	var entries []mountEntry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		entries = append(entries, mountEntry{
			point:  unescapeMount(fields[1]),
			fsType: strings.ToLower(fields[2]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "mount: read table")
	}
	return entries, nil
}

// unescapeMount decodes the octal escapes (\040 for a space) the kernel
// writes for whitespace in mount points
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// classifyMount picks the deepest mount point containing path. A later
// entry for the same point shadows an earlier one, as with overmounts.
func classifyMount(entries []mountEntry, path string) *MountInfo {
	var best *mountEntry
	for i := range entries {
		e := &entries[i]
		if !underMount(path, e.point) {
			continue
		}
		if best == nil || len(e.point) >= len(best.point) {
			best = e
		}
	}
	if best == nil {
		return &MountInfo{}
	}
	return &MountInfo{
		MountPoint: best.point,
		FSType:     best.fsType,
		Network:    isNetworkFS(best.fsType),
	}
}

func underMount(path, point string) bool {
	if point == "/" || path == point {
		return true
	}
	return strings.HasPrefix(path, point+"/")
}

var networkFSTypes = map[string]bool{
	"nfs":    true,
	"nfs4":   true,
	"cifs":   true,
	"smb":    true,
	"smb2":   true,
	"smb3":   true,
	"smbfs":  true,
	"ncpfs":  true,
	"afpfs":  true,
	"webdav": true,
	"lustre": true,
	"gpfs":   true,
	"ceph":   true,
}

// networkFuse lists FUSE backends that reach remote storage
var networkFuse = []string{"fuse.sshfs", "fuse.rclone", "fuse.s3fs", "fuse.gcsfuse", "osxfuse", "macfuse"}

func isNetworkFS(fsType string) bool {
	fsType = strings.ToLower(fsType)
	if networkFSTypes[fsType] {
		return true
	}
	for _, prefix := range networkFuse {
		if strings.HasPrefix(fsType, prefix) {
			return true
		}
	}
	return false
}
