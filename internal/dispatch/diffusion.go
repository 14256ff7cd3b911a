package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/diag"
	"github.com/franz/neuroqc/internal/external"
	"github.com/franz/neuroqc/internal/nifti"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/franz/neuroqc/internal/store"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const diffusionMaxFrac = 0.25

func (d *dispatcher) diffusion(ctx context.Context, scan *scanid.Scan) error {
	bvec := scanid.Companion(scan.Path, ".bvec")
	bval := scanid.Companion(scan.Path, ".bval")
	if _, err := os.Stat(bvec); err != nil {
		d.log.Warn("gradient table not found, skipping diffusion diagnostics", zap.String("bvec", filepath.Base(bvec)))
		d.sink.AddNote(fmt.Sprintf("Diagnostics skipped: %s not found", filepath.Base(bvec)))
		return eris.Wrapf(ErrMissingCompanion, "%s", filepath.Base(bvec))
	}

	img, err := nifti.Read(scan.Path)
	if err != nil {
		return eris.Wrapf(err, "read %s", filepath.Base(scan.Path))
	}
	stem := scan.Stem()
	c := &collector{log: d.log, sink: d.sink}

	c.add("B0 montage", d.b0Montage(img, stem))
	c.add("directions montage", d.directionsMontage(img, stem))

	gradients, err := nifti.ReadMatrix(bvec)
	if err != nil {
		c.add("gradient table", err)
	} else {
		c.add("spike detection", d.spikes(scan, img, diag.GradientFilter(gradients), stem+"_spikes.png", store.TableDTI))
	}
	if c.fatal() {
		return c.err()
	}

	c.add("diffusion QA script", d.qaDTI(ctx, scan, bval, bvec))
	return c.err()
}

func (d *dispatcher) b0Montage(img *nifti.Image, stem string) error {
	m, err := diag.SpatialMontage(diag.Reorient(diag.FromImage(img, 0)), diag.MontageOptions{
		Title:   stem,
		Name:    "B0 contrast",
		MaxFrac: diffusionMaxFrac,
	})
	if err != nil {
		return err
	}
	return d.writeMontage(m, stem+"_B0.png")
}

func (d *dispatcher) directionsMontage(img *nifti.Image, stem string) error {
	m, err := diag.TemporalMontage(diag.SeriesFromImage(img), diag.MontageOptions{
		Title:   stem,
		Name:    "Directions",
		MaxFrac: diffusionMaxFrac,
	})
	if err != nil {
		return err
	}
	return d.writeMontage(m, stem+"_dti4d.png")
}

func (d *dispatcher) qaDTI(ctx context.Context, scan *scanid.Scan, bval, bvec string) error {
	if _, err := os.Stat(bval); err != nil {
		return eris.Wrapf(ErrMissingCompanion, "%s", filepath.Base(bval))
	}

	work, err := d.tempDir("dti")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	in, err := linkInto(work, "dti"+scanid.Extension(scan.Path), scan.Path)
	if err != nil {
		return err
	}
	inBval, err := linkInto(work, "dti.bval", bval)
	if err != nil {
		return err
	}
	inBvec, err := linkInto(work, "dti.bvec", bvec)
	if err != nil {
		return err
	}

	csv := filepath.Join(work, "qc_dti.csv")
	if err := external.QADTI(ctx, d.env.Runner, in, inBval, inBvec, csv); err != nil {
		return err
	}
	if err := d.needs(csv); err != nil {
		return err
	}
	return moveFile(csv, filepath.Join(d.env.OutDir, scan.Stem()+"_qascript_dti.csv"))
}
