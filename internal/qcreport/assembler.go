package qcreport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/neuroqc/internal/dispatch"
	"github.com/franz/neuroqc/internal/external"
	"github.com/franz/neuroqc/internal/manifest"
	"github.com/franz/neuroqc/internal/reconcile"
	"github.com/franz/neuroqc/internal/report"
	"github.com/franz/neuroqc/internal/scan"
	"github.com/franz/neuroqc/internal/scanid"
	"github.com/franz/neuroqc/internal/store"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Action is what the assembler did with a subject
type Action string

const (
	ActionGenerate Action = "generate"
	ActionRelink   Action = "relink"
	ActionSkip     Action = "skip"
)

// Config holds everything the assembler needs for a run
type Config struct {
	DataDir        string
	QCDir          string
	Manifest       *manifest.Manifest
	Metrics        dispatch.Recorder
	Runner         external.Runner
	TechNotesSites []string // sites whose technologists upload notes

	MinTRs              int
	Seed                uint64
	CorrelationFraction float64
	TempRoot            string
	DryRun              bool

	Events     *report.EventLogger
	RunMetrics *report.RunMetrics
}

// Outcome summarizes what happened to one subject
type Outcome struct {
	Subject     string
	State       State
	Action      Action
	Path        string
	Rows        reconcile.Summary
	Diagnostics int
	Failed      int
	Images      int
}

// Assembler builds subject reports
type Assembler struct {
	cfg       Config
	issues    map[string][]string // site -> tags without a routine
	techSites map[string]bool
}

// New creates an Assembler. Manifest tags without a diagnostic routine are
// collected once and listed in the reports of their site.
func New(cfg Config) *Assembler {
	a := &Assembler{
		cfg:       cfg,
		issues:    make(map[string][]string),
		techSites: make(map[string]bool),
	}
	if cfg.Manifest != nil {
		for _, issue := range dispatch.Validate(cfg.Manifest) {
			a.issues[issue.Site] = append(a.issues[issue.Site], fmt.Sprintf("No diagnostic routine for tag %s", issue.Tag))
		}
	}
	for _, site := range cfg.TechNotesSites {
		a.techSites[site] = true
	}
	return a
}

// Process decides the state of a subject's report and acts on it: complete
// reports are skipped, rewrite mode relinks, anything else is generated.
func (a *Assembler) Process(ctx context.Context, subj *scan.Subject, rewrite bool) (*Outcome, error) {
	path := ReportPath(a.cfg.QCDir, subj.ID)
	state := StateOf(path, rewrite)

	switch state {
	case Complete:
		zap.L().Debug("report complete, skipping", zap.String("subject", subj.ID))
		a.cfg.Events.LogSubject(subj.ID, state.String(), string(ActionSkip))
		a.cfg.RunMetrics.ObserveSubject(string(ActionSkip))
		return &Outcome{Subject: subj.ID, State: state, Action: ActionSkip, Path: path}, nil
	case Rewriting:
		return a.assemble(ctx, subj, state, true)
	default:
		return a.assemble(ctx, subj, state, false)
	}
}

// Generate builds a subject's report from scratch, running every diagnostic
// routine and recording metrics.
func (a *Assembler) Generate(ctx context.Context, subj *scan.Subject) (*Outcome, error) {
	return a.assemble(ctx, subj, StateOf(ReportPath(a.cfg.QCDir, subj.ID), false), false)
}

// Relink rebuilds a subject's report from the images already on disk. No
// diagnostics run and no metrics are written.
func (a *Assembler) Relink(ctx context.Context, subj *scan.Subject) (*Outcome, error) {
	return a.assemble(ctx, subj, Rewriting, true)
}

func (a *Assembler) assemble(ctx context.Context, subj *scan.Subject, state State, relink bool) (*Outcome, error) {
	action := ActionGenerate
	if relink {
		action = ActionRelink
	}
	outDir := filepath.Join(a.cfg.QCDir, subj.ID)
	path := ReportPath(a.cfg.QCDir, subj.ID)
	log := zap.L().With(zap.String("subject", subj.ID), zap.String("action", string(action)))
	if state == InProgress {
		log.Info("restarting interrupted report")
	}

	a.cfg.Events.LogSubject(subj.ID, state.String(), string(action))
	a.cfg.RunMetrics.ObserveSubject(string(action))

	out := &Outcome{Subject: subj.ID, State: state, Action: action, Path: path}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return out, eris.Wrapf(err, "qcreport: create %s", outDir)
	}
	// a relink replaces the old report only when the rename succeeds
	if !relink {
		if err := a.recordSite(subj); err != nil {
			return out, err
		}
	}

	rows := reconcile.Reconcile(a.cfg.Manifest, subj.Site, subj.Files)
	out.Rows = reconcile.Summarize(rows)
	a.noteAnomalies(subj.ID, rows)

	doc := &document{
		Subject:      subj.ID,
		Rows:         rows,
		ConfigIssues: a.issues[subj.Site],
	}
	if a.techSites[subj.Site] {
		doc.TechNotes = a.techNotes(log, subj.ID, outDir)
	}

	checks, err := loadCheckLogs(a.cfg.QCDir, subj.ID)
	if err != nil {
		log.Warn("check logs unreadable", zap.Error(err))
		checks = &checkLogs{}
	}

	env := &dispatch.Env{
		OutDir:              outDir,
		Runner:              a.cfg.Runner,
		Metrics:             a.cfg.Metrics,
		MinTRs:              a.cfg.MinTRs,
		Seed:                a.cfg.Seed,
		CorrelationFraction: a.cfg.CorrelationFraction,
		TempRoot:            a.cfg.TempRoot,
		DryRun:              a.cfg.DryRun,
		Log:                 log,
	}

	for _, row := range rows {
		if row.File == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		sec := newSection(outDir, row.Bookmark, row.File)
		doc.Sections = append(doc.Sections, sec)

		s, err := scanid.ParseFilename(filepath.Join(subj.Dir, row.File))
		if err != nil {
			log.Warn("cannot parse scan file name", zap.String("file", row.File))
			continue
		}
		routine, ok := dispatch.Lookup(s.Tag)
		if !ok {
			log.Info("no diagnostic routine for tag", zap.String("tag", s.Tag), zap.String("file", row.File))
			continue
		}

		if routine.Kind != dispatch.DualContrast {
			sec.HeaderDiffs = checks.headerDiffs(sec.Stem)
		}
		sec.BvecDiffs = checks.bvecDiffs(sec.Stem)

		if relink {
			relinkImages(sec, outDir, routine.Kind)
		} else if err := a.diagnose(ctx, log, s, routine, env, sec, out); err != nil {
			return out, err
		}
		out.Images += len(sec.Images)
	}

	if err := doc.write(path); err != nil {
		return out, err
	}
	log.Info("report written", zap.String("path", path), zap.Int("images", out.Images))
	return out, nil
}

// recordSite ensures the subject has a row carrying its site in every table
func (a *Assembler) recordSite(subj *scan.Subject) error {
	if a.cfg.Metrics == nil || subj.Site == "" {
		return nil
	}
	ident, err := scanid.ParseSubject(subj.ID)
	if err != nil {
		return nil
	}
	for _, table := range store.Tables {
		if err := a.cfg.Metrics.Upsert(table, ident.TimepointID(), store.ColumnSite, subj.Site); err != nil {
			return fmt.Errorf("%w: %s site for %s: %w", dispatch.ErrStore, table, subj.ID, err)
		}
	}
	return nil
}

func (a *Assembler) noteAnomalies(subject string, rows []reconcile.Row) {
	for _, r := range rows {
		var kind string
		switch {
		case r.Tag == reconcile.TagUnknown:
			kind = "extra"
		case r.Missing():
			kind = "missing"
		case r.Note == reconcile.NoteRepeated:
			kind = "repeated"
		default:
			continue
		}
		a.cfg.Events.LogAnomaly(subject, r.Tag, r.File, r.Note)
		a.cfg.RunMetrics.ObserveAnomaly(kind)
	}
}

func (a *Assembler) techNotes(log *zap.Logger, subject, outDir string) *techNotes {
	found, err := findTechNotes(a.cfg.DataDir, subject)
	if err != nil {
		log.Warn("tech notes lookup failed", zap.Error(err))
	}
	if found == "" {
		return &techNotes{}
	}
	href, err := filepath.Rel(outDir, found)
	if err != nil {
		href = found
	}
	return &techNotes{Href: filepath.ToSlash(href)}
}

// diagnose runs the routine of one scan. Only store failures and
// cancellation are returned; anything else is noted in the section.
func (a *Assembler) diagnose(ctx context.Context, log *zap.Logger, s *scanid.Scan, routine dispatch.Routine, env *dispatch.Env, sec *section, out *Outcome) error {
	started := time.Now()
	notes := len(sec.Notes)
	err := dispatch.Dispatch(ctx, s, env, sec)

	a.cfg.Events.LogDiagnostic(out.Subject, sec.File, s.Tag, routine.Label(), len(sec.Images), time.Since(started), err)
	if routine.Kind != dispatch.Ignore {
		a.cfg.RunMetrics.ObserveDiagnostic(routine.Label(), err)
		out.Diagnostics++
	}
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, dispatch.ErrStore):
		log.Error("metrics store failure", zap.Error(err))
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	}

	out.Failed++
	log.Warn("diagnostics failed", zap.String("file", sec.File), zap.Error(err))
	if len(sec.Notes) == notes {
		sec.AddNote(fmt.Sprintf("Diagnostics failed: %v", err))
	}
	return nil
}

// relinkImages attaches the images a previous run left for the section
func relinkImages(sec *section, outDir string, kind dispatch.Kind) {
	for _, name := range dispatch.Outputs(kind, sec.Stem) {
		path := filepath.Join(outDir, name)
		if exists(path) {
			sec.AddImage(path)
		}
	}
}
