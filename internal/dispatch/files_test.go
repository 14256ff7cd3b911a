package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/neuroqc/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkInto(t *testing.T) {
	src := filepath.Join(t.TempDir(), "SPN01_CMH_0001_01_01_RST_05_rest.nii.gz")
	require.NoError(t, os.WriteFile(src, []byte("volume"), 0o644))
	work := t.TempDir()

	link, err := linkInto(work, "fmri.nii.gz", src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "fmri.nii.gz"), link)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(target))
	data, err := os.ReadFile(link)
	require.NoError(t, err)
	assert.Equal(t, "volume", string(data))

	_, err = linkInto(work, "fmri.nii.gz", src)
	assert.Error(t, err, "an existing name must not be replaced")
}

func TestMoveFile_SameDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "work", "qa.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("tsnr,12.5\n"), 0o644))
	dst := filepath.Join(dir, "stem_qascript_fmri.csv")

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "tsnr,12.5\n", string(data))
}

func TestMoveFile_AcrossDevices(t *testing.T) {
	shm, err := os.MkdirTemp("/dev/shm", "nqc-")
	if err != nil {
		t.Skip("no tmpfs at /dev/shm")
	}
	t.Cleanup(func() { os.RemoveAll(shm) })

	out := t.TempDir()
	if same, err := util.SameDevice(shm, out); err != nil || same {
		t.Skip("/dev/shm shares a device with the temp dir")
	}

	src := filepath.Join(shm, "qa.csv")
	require.NoError(t, os.WriteFile(src, []byte("spikes,3\n"), 0o644))
	dst := filepath.Join(out, "stem_qascript_dti.csv")

	require.NoError(t, moveFile(src, dst))
	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "spikes,3\n", string(data))
}

func TestMoveFile_MissingDestinationDir(t *testing.T) {
	src := filepath.Join(t.TempDir(), "qa.csv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	err := moveFile(src, filepath.Join(t.TempDir(), "gone", "qa.csv"))
	assert.Error(t, err)
	assert.FileExists(t, src, "a failed move must keep the source")
}
