//go:build darwin

package util

import (
	"syscall"

	"github.com/rotisserie/eris"
)

func detectPlatformMount(path string) (*MountInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, eris.Wrapf(err, "statfs %s", path)
	}
	fsType := cString(st.Fstypename[:])
	return &MountInfo{
		MountPoint: cString(st.Mntonname[:]),
		FSType:     fsType,
		Network:    isNetworkFS(fsType),
	}, nil
}

// cString converts a NUL-terminated statfs field
func cString(arr []int8) string {
	b := make([]byte, 0, len(arr))
	for _, c := range arr {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}
