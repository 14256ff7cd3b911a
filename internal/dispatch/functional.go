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

// Display window upper limit, as a fraction of the intensity range
const functionalMaxFrac = 0.75

// work-dir file names
const (
	meanName  = "mean.nii.gz"
	maskName  = "mask.nii.gz"
	stdevName = "stdev.nii.gz"
	sfnrName  = "sfnr.nii.gz"
)

func (d *dispatcher) functional(ctx context.Context, scan *scanid.Scan) error {
	hdr, err := nifti.ReadHeader(scan.Path)
	if err != nil {
		return eris.Wrapf(err, "functional header of %s", filepath.Base(scan.Path))
	}
	if nt, limit := hdr.NT(), d.env.minTRs(); nt < limit {
		d.log.Info("functional run too short, skipping diagnostics", zap.Int("volumes", nt), zap.Int("min_trs", limit))
		d.sink.AddNote(fmt.Sprintf("Diagnostics skipped: %d volumes (minimum %d)", nt, limit))
		return nil
	}

	img, err := nifti.Read(scan.Path)
	if err != nil {
		return eris.Wrapf(err, "read %s", filepath.Base(scan.Path))
	}

	work, err := d.tempDir("fmri")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	stem := scan.Stem()
	c := &collector{log: d.log, sink: d.sink}

	c.add("BOLD montage", d.boldMontage(img, stem))
	d.preprocessed(ctx, scan, work, c)
	if c.fatal() {
		return c.err()
	}
	c.add("spike detection", d.spikes(scan, img, nil, stem+"_Spikes.png", store.TableFMRI))
	c.add("functional QA script", d.qaBold(ctx, scan, work))
	return c.err()
}

func (d *dispatcher) boldMontage(img *nifti.Image, stem string) error {
	vol := diag.Reorient(diag.FromImage(img, 0))
	m, err := diag.SpatialMontage(vol, diag.MontageOptions{
		Title:   stem,
		Name:    "BOLD contrast",
		MaxFrac: functionalMaxFrac,
	})
	if err != nil {
		return err
	}
	return d.writeMontage(m, stem+"_BOLD.png")
}

// preprocessed runs motion correction and the voxelwise statistics, then
// renders the figures that depend on them.
func (d *dispatcher) preprocessed(ctx context.Context, scan *scanid.Scan, work string, c *collector) {
	r := d.env.Runner
	mean := filepath.Join(work, meanName)
	mask := filepath.Join(work, maskName)
	stdev := filepath.Join(work, stdevName)
	sfnr := filepath.Join(work, sfnrName)

	mc, err := external.Volreg(ctx, r, scan.Path, work)
	if err != nil {
		c.add("motion correction", err)
		return
	}
	steps := []func() error{
		func() error { return external.TstatMean(ctx, r, mc.Corrected, mean) },
		func() error { return external.Automask(ctx, r, mean, mask) },
		func() error { return external.TstatStdev(ctx, r, mc.Corrected, stdev) },
		func() error { return external.Ratio(ctx, r, mean, stdev, sfnr) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.add("voxelwise statistics", err)
			return
		}
	}
	if err := d.needs(mc.Corrected, mc.Motion, mask, sfnr); err != nil {
		c.add("voxelwise statistics", err)
		return
	}

	c.add("functional plots", d.functionalPlots(scan, mc, mask))
	if c.fatal() {
		return
	}
	c.add("SFNR montage", d.snrMontage(sfnr, scan.Stem()))
}

func (d *dispatcher) functionalPlots(scan *scanid.Scan, mc *external.MotionCorrection, mask string) error {
	series, err := nifti.Read(mc.Corrected)
	if err != nil {
		return err
	}
	maskImg, err := nifti.Read(mask)
	if err != nil {
		return err
	}
	ts, err := diag.MaskedTimeSeries(series, maskImg)
	if err != nil {
		return err
	}

	// each panel is independent; a failed one is left empty
	spectrum, err := diag.WholeBrainSpectra(ts, diag.SamplingRate)
	if err != nil {
		d.log.Warn("spectra unavailable", zap.Error(err))
	}
	var fd *diag.Displacement
	params, err := nifti.ReadMatrix(mc.Motion)
	if err == nil {
		fd, err = diag.FramewiseDisplacement(params)
	}
	if err != nil {
		d.log.Warn("framewise displacement unavailable", zap.Error(err))
	}
	corr, err := diag.WholeBrainCorrelation(ts, d.env.fraction(), diag.NewRand(d.env.Seed))
	if err != nil {
		d.log.Warn("correlation unavailable", zap.Error(err))
	}

	out := filepath.Join(d.env.OutDir, scan.Stem()+"_fmriplots.png")
	if err := diag.FunctionalFigure(spectrum, fd, corr, filepath.Base(scan.Path), out); err != nil {
		return err
	}
	d.sink.AddImage(out)

	if fd != nil {
		if err := d.record(store.TableFMRI, scan, "fdtot", fd.Total); err != nil {
			return err
		}
		if err := d.record(store.TableFMRI, scan, "fdnum", fd.Above); err != nil {
			return err
		}
	}
	if corr != nil {
		if err := d.record(store.TableFMRI, scan, "corrmean", corr.Mean); err != nil {
			return err
		}
		if err := d.record(store.TableFMRI, scan, "corrsd", corr.SD); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) snrMontage(sfnr, stem string) error {
	img, err := nifti.Read(sfnr)
	if err != nil {
		return err
	}
	m, err := diag.SpatialMontage(diag.Reorient(diag.FromImage(img, 0)), diag.MontageOptions{
		Title:    stem,
		Name:     "SFNR",
		Colormap: diag.Hot,
		MaxFrac:  functionalMaxFrac,
	})
	if err != nil {
		return err
	}
	return d.writeMontage(m, stem+"_SNR.png")
}

// spikes runs slice-wise spike detection, plots the traces and records the
// spike count. keep restricts the time points considered.
func (d *dispatcher) spikes(scan *scanid.Scan, img *nifti.Image, keep []bool, name, table string) error {
	report, err := diag.DetectSpikes(diag.SeriesFromImage(img), keep)
	if err != nil {
		return err
	}
	out := filepath.Join(d.env.OutDir, name)
	if err := diag.PlotSpikes(report, filepath.Base(scan.Path), out); err != nil {
		return err
	}
	d.sink.AddImage(out)
	d.log.Debug("spikes detected", zap.Int("count", report.Count))
	return d.record(table, scan, "spikecount", report.Count)
}

func (d *dispatcher) qaBold(ctx context.Context, scan *scanid.Scan, work string) error {
	in, err := linkInto(work, "fmri"+scanid.Extension(scan.Path), scan.Path)
	if err != nil {
		return err
	}
	csv := filepath.Join(work, "qc_fmri.csv")
	if err := external.QABold(ctx, d.env.Runner, in, csv); err != nil {
		return err
	}
	if err := d.needs(csv); err != nil {
		return err
	}
	return moveFile(csv, filepath.Join(d.env.OutDir, scan.Stem()+"_qascript_fmri.csv"))
}

func (d *dispatcher) writeMontage(m *diag.Montage, name string) error {
	out := filepath.Join(d.env.OutDir, name)
	if err := m.WritePNG(out); err != nil {
		return err
	}
	d.sink.AddImage(out)
	return nil
}
