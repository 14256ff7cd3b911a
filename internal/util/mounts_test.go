package util

import (
	"strings"
	"testing"
)

const sampleMounts = `# comment lines are skipped
/dev/nvme0n1p2 / ext4 rw,relatime 0 0
tmpfs /tmp tmpfs rw,nosuid 0 0
nas01:/export/study /mnt/study nfs4 rw,vers=4.2 0 0
//nas02/archive /mnt/study\040archive cifs rw 0 0
/dev/sdb1 /mnt/study/local ext4 rw 0 0
user@host:/qc /mnt/remote fuse.sshfs rw 0 0
`

func TestParseMountTable(t *testing.T) {
	entries, err := parseMountTable(strings.NewReader(sampleMounts))
	if err != nil {
		t.Fatalf("parseMountTable failed: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("got %d entries, expected 6", len(entries))
	}
	if entries[3].point != "/mnt/study archive" {
		t.Errorf("escaped mount point decoded as %q", entries[3].point)
	}
	if entries[2].fsType != "nfs4" {
		t.Errorf("unexpected fs type %q", entries[2].fsType)
	}
}

func TestClassifyMount(t *testing.T) {
	entries, err := parseMountTable(strings.NewReader(sampleMounts))
	if err != nil {
		t.Fatalf("parseMountTable failed: %v", err)
	}

	tests := []struct {
		path    string
		point   string
		network bool
	}{
		{"/home/qc", "/", false},
		{"/mnt/study", "/mnt/study", true},
		{"/mnt/study/data/nii", "/mnt/study", true},
		{"/mnt/study archive/2019", "/mnt/study archive", true},
		{"/mnt/studyX", "/", false},
		{"/mnt/study/local/qc", "/mnt/study/local", false},
		{"/mnt/remote/db", "/mnt/remote", true},
	}
	for _, tt := range tests {
		info := classifyMount(entries, tt.path)
		if info.MountPoint != tt.point || info.Network != tt.network {
			t.Errorf("%s: got %s (network=%v), expected %s (network=%v)",
				tt.path, info.MountPoint, info.Network, tt.point, tt.network)
		}
	}
}

func TestClassifyMount_Overmount(t *testing.T) {
	entries := []mountEntry{
		{point: "/", fsType: "ext4"},
		{point: "/data", fsType: "ext4"},
		{point: "/data", fsType: "nfs"},
	}
	if info := classifyMount(entries, "/data/qc"); !info.Network {
		t.Error("the most recent mount on a point should win")
	}
}

func TestIsNetworkFS(t *testing.T) {
	for _, fs := range []string{"nfs", "NFS4", "cifs", "smbfs", "fuse.rclone", "lustre"} {
		if !isNetworkFS(fs) {
			t.Errorf("%s should be a network filesystem", fs)
		}
	}
	for _, fs := range []string{"ext4", "xfs", "apfs", "tmpfs", "fuse.encfs", "ntfs"} {
		if isNetworkFS(fs) {
			t.Errorf("%s should be local", fs)
		}
	}
}

func TestStoreProfile_Forced(t *testing.T) {
	on, off := true, false
	p := ProfileForStore("/nonexistent/subject-qc.db", &on)
	if !p.NetworkOptimized || p.String() != "network-optimized (forced)" {
		t.Errorf("unexpected forced profile %q", p)
	}
	if ProfileForStore("/nonexistent/subject-qc.db", &off).NetworkOptimized {
		t.Error("nas mode off should win over detection")
	}
}

func TestStoreProfile_MissingDirectory(t *testing.T) {
	p := ProfileForStore("/this/path/does/not/exist/subject-qc.db", nil)
	if p.NetworkOptimized {
		t.Error("an unclassifiable location should fall back to local")
	}
	if p.String() != "local filesystem" {
		t.Errorf("unexpected profile %q", p)
	}
}
