package external

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/neuroqc/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
}

func TestExecRunner_Success(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "qa_bold_v2.sh", `echo "input $1"; echo "snr,1.0" > "$2"`)

	r := NewExecRunner(false, dir)
	out := filepath.Join(t.TempDir(), "qc_fmri.csv")
	require.NoError(t, QABold(context.Background(), r, "fmri.nii.gz", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "snr,1.0\n", string(data))
}

func TestExecRunner_Failure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "3dAutomask", `echo "cannot read dataset" >&2; exit 3`)

	r := NewExecRunner(false, dir)
	res, err := r.Run(context.Background(), "3dAutomask", "-prefix", "mask.nii.gz", "mean.nii.gz")
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "cannot read dataset")
}

func TestExecRunner_NotFound(t *testing.T) {
	r := NewExecRunner(false, t.TempDir())
	_, err := r.Run(context.Background(), "definitely-not-a-qc-tool")
	assert.ErrorIs(t, err, util.ErrNotFound)
	assert.False(t, r.Available("definitely-not-a-qc-tool"))
}

func TestExecRunner_DryRun(t *testing.T) {
	r := NewExecRunner(true)
	res, err := r.Run(context.Background(), "slicer", "in.nii.gz", "-S", "5", "1600", "out file.png")
	require.NoError(t, err)
	assert.Equal(t, "slicer in.nii.gz -S 5 1600 'out file.png'", res.Command)
}

func TestVolregOutputs(t *testing.T) {
	r := NewExecRunner(true)
	mc, err := Volreg(context.Background(), r, "rest.nii.gz", "/tmp/qc-1")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/qc-1/mcorr.nii.gz", mc.Corrected)
	assert.Equal(t, "/tmp/qc-1/motion.1D", mc.Motion)
}
