// Package dispatch maps acquisition tags to diagnostic routines and runs them
// on a scan, writing images into the subject's QC directory and metrics into
// the store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/neuroqc/internal/diag"
	"github.com/franz/neuroqc/internal/external"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/rotisserie/eris"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// DefaultMinTRs is the shortest functional run that gets diagnostics
const DefaultMinTRs = 20

// Recorder receives per-subject metrics
type Recorder interface {
	Upsert(table, subject, column string, value any) error
}

// Sink collects what a routine contributes to the report section of a scan
type Sink interface {
	AddImage(path string)
	AddNote(note string)
}

// Env is the shared context of every routine for one subject
type Env struct {
	OutDir              string // subject QC directory
	Runner              external.Runner
	Metrics             Recorder
	MinTRs              int
	Seed                uint64
	CorrelationFraction float64
	TempRoot            string // parent of per-invocation work dirs; "" for os.TempDir
	DryRun              bool   // tool outputs are not expected to exist
	Log                 *zap.Logger
}

func (e *Env) minTRs() int {
	if e.MinTRs <= 0 {
		return DefaultMinTRs
	}
	return e.MinTRs
}

func (e *Env) fraction() float64 {
	if e.CorrelationFraction <= 0 {
		return diag.DefaultCorrelationFraction
	}
	return e.CorrelationFraction
}

type discard struct{}

func (discard) AddImage(string) {}
func (discard) AddNote(string)  {}

// errSkipped marks steps dropped in dry-run mode for lack of tool outputs
var errSkipped = errors.New("skipped")

type dispatcher struct {
	env  *Env
	sink Sink
	log  *zap.Logger
}

// Dispatch runs the routine registered for the scan's tag. A panic inside
// the routine is recovered and returned as an error. Errors wrapping
// ErrStore must abort the run; every other error only affects this scan.
func Dispatch(ctx context.Context, scan *scanid.Scan, env *Env, sink Sink) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	routine, ok := routines[scan.Tag]
	if !ok {
		return eris.Wrapf(ErrUnknownTag, "dispatch: %s", scan.Tag)
	}
	if sink == nil {
		sink = discard{}
	}

	log := env.Log
	if log == nil {
		log = zap.L()
	}
	d := &dispatcher{
		env:  env,
		sink: sink,
		log:  log.With(zap.String("scan", filepath.Base(scan.Path)), zap.String("kind", routine.Label())),
	}

	var pc panics.Catcher
	pc.Try(func() { err = d.run(ctx, scan, routine) })
	if r := pc.Recovered(); r != nil {
		d.log.Error("diagnostic routine panicked",
			zap.String("panic", fmt.Sprint(r.Value)),
			zap.ByteString("stack", r.Stack))
		return eris.Errorf("dispatch: %s routine panicked on %s: %v", routine.Kind, filepath.Base(scan.Path), r.Value)
	}
	return err
}

func (d *dispatcher) run(ctx context.Context, scan *scanid.Scan, r Routine) error {
	switch r.Kind {
	case Structural:
		return d.structural(ctx, scan.Path, r)
	case DualContrast:
		return d.dualContrast(ctx, scan)
	case Functional:
		return d.functional(ctx, scan)
	case Diffusion:
		return d.diffusion(ctx, scan)
	default:
		d.log.Debug("no diagnostics for tag", zap.String("tag", scan.Tag))
		return nil
	}
}

func (d *dispatcher) structural(ctx context.Context, path string, r Routine) error {
	out := filepath.Join(d.env.OutDir, scanid.Stem(path)+".png")
	if err := external.Slicer(ctx, d.env.Runner, path, r.SliceGap, r.Width, out); err != nil {
		return eris.Wrapf(err, "structural montage of %s", filepath.Base(path))
	}
	d.sink.AddImage(out)
	return nil
}

// dualContrast runs the structural routine on each single-contrast file
// split from a combined export.
func (d *dispatcher) dualContrast(ctx context.Context, scan *scanid.Scan) error {
	dir, base := filepath.Split(scan.Path)
	var errs []error
	for _, child := range scanid.DerivedTags[scan.Tag] {
		path := filepath.Join(dir, scanid.ReplaceTag(base, scan.Tag, child))
		if err := d.structural(ctx, path, routines[child]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// record writes one metric; failures are wrapped in ErrStore
func (d *dispatcher) record(table string, scan *scanid.Scan, column string, value any) error {
	if d.env.Metrics == nil {
		return nil
	}
	subj := scan.Ident.TimepointID()
	if err := d.env.Metrics.Upsert(table, subj, column, value); err != nil {
		return fmt.Errorf("%w: %s.%s for %s: %w", ErrStore, table, column, subj, err)
	}
	return nil
}

// needs checks that tool outputs exist before they are read back
func (d *dispatcher) needs(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if d.env.DryRun {
				d.log.Debug("dry run: tool output not produced", zap.String("path", p))
				return errSkipped
			}
			return eris.Wrapf(err, "expected tool output %s", filepath.Base(p))
		}
	}
	return nil
}

func (d *dispatcher) tempDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp(d.env.TempRoot, "nqc-"+prefix+"-")
	if err != nil {
		return "", eris.Wrap(err, "create work dir")
	}
	return dir, nil
}

// collector gathers step errors, logging each; dry-run skips are dropped.
type collector struct {
	log  *zap.Logger
	sink Sink
	errs []error
}

func (c *collector) add(step string, err error) {
	if err == nil || errors.Is(err, errSkipped) {
		return
	}
	if !errors.Is(err, ErrStore) {
		c.log.Warn("diagnostic step failed", zap.String("step", step), zap.Error(err))
		c.sink.AddNote(fmt.Sprintf("%s failed: %v", step, err))
	}
	c.errs = append(c.errs, err)
}

func (c *collector) err() error {
	return errors.Join(c.errs...)
}

// fatal reports whether a store failure has already been collected
func (c *collector) fatal() bool {
	for _, err := range c.errs {
		if errors.Is(err, ErrStore) {
			return true
		}
	}
	return false
}
