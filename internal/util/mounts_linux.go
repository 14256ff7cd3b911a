//go:build linux

package util

import (
	"os"
	"syscall"

	"github.com/rotisserie/eris"
)

// mountTable is read to classify paths; tests point it at a fixture
var mountTable = "/proc/self/mounts"

// superblock magic numbers of network filesystems, used when the mount
// table is unreadable
var networkMagic = map[uint32]string{
	0x6969:     "nfs",
	0xff534d42: "cifs",
	0xfe534d42: "smb2",
	0x517b:     "smb",
	0x564c:     "ncpfs",
}

func detectPlatformMount(path string) (*MountInfo, error) {
	f, err := os.Open(mountTable)
	if err != nil {
		return statfsMount(path)
	}
	defer f.Close()

	entries, err := parseMountTable(f)
	if err != nil || len(entries) == 0 {
		return statfsMount(path)
	}
	return classifyMount(entries, path), nil
}

func statfsMount(path string) (*MountInfo, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return nil, eris.Wrapf(err, "statfs %s", path)
	}
	info := &MountInfo{}
	if fs, ok := networkMagic[uint32(st.Type)]; ok {
		info.FSType = fs
		info.Network = true
	}
	return info, nil
}
