package external

import (
	"context"
	"path/filepath"
	"strconv"
)

// Tool names checked by `nqc doctor`
var (
	AFNITools = []string{"3dvolreg", "3dTstat", "3dAutomask", "3dcalc"}
	FSLTools  = []string{"slicer"}
	QAScripts = []string{"qa_bold_v2.sh", "qa_dti_v2.sh"}
)

// Slicer renders a structural montage with FSL slicer
func Slicer(ctx context.Context, r Runner, in string, gap, width int, out string) error {
	_, err := r.Run(ctx, "slicer", in, "-S", strconv.Itoa(gap), strconv.Itoa(width), out)
	return err
}

// MotionCorrection holds the outputs of Volreg
type MotionCorrection struct {
	Corrected string // motion-corrected series
	Motion    string // per-volume motion parameters (.1D)
}

// Volreg motion-corrects a functional series into dir
func Volreg(ctx context.Context, r Runner, in, dir string) (*MotionCorrection, error) {
	mc := &MotionCorrection{
		Corrected: filepath.Join(dir, "mcorr.nii.gz"),
		Motion:    filepath.Join(dir, "motion.1D"),
	}
	_, err := r.Run(ctx, "3dvolreg",
		"-prefix", mc.Corrected,
		"-twopass", "-twoblur", "3", "-Fourier",
		"-1Dfile", mc.Motion,
		in,
	)
	return mc, err
}

// TstatMean writes the voxelwise temporal mean of in
func TstatMean(ctx context.Context, r Runner, in, out string) error {
	_, err := r.Run(ctx, "3dTstat", "-prefix", out, in)
	return err
}

// TstatStdev writes the voxelwise temporal standard deviation of in
func TstatStdev(ctx context.Context, r Runner, in, out string) error {
	_, err := r.Run(ctx, "3dTstat", "-prefix", out, "-stdev", in)
	return err
}

// Automask computes a brain mask from a mean image
func Automask(ctx context.Context, r Runner, in, out string) error {
	_, err := r.Run(ctx, "3dAutomask", "-prefix", out, "-clfrac", "0.5", "-peels", "3", in)
	return err
}

// Ratio writes a/b voxelwise (used for the SFNR map)
func Ratio(ctx context.Context, r Runner, a, b, out string) error {
	_, err := r.Run(ctx, "3dcalc", "-prefix", out, "-a", a, "-b", b, "-expr", "a/b")
	return err
}

// QABold runs the functional QA script, writing its CSV to out
func QABold(ctx context.Context, r Runner, in, out string) error {
	_, err := r.Run(ctx, "qa_bold_v2.sh", in, out)
	return err
}

// QADTI runs the diffusion QA script, writing its CSV to out
func QADTI(ctx context.Context, r Runner, in, bval, bvec, out string) error {
	_, err := r.Run(ctx, "qa_dti_v2.sh", in, bval, bvec, out)
	return err
}
