// Package external runs the third-party analysis binaries the QC routines
// depend on (AFNI, FSL slicer, the QA scripts) as opaque processes.
package external

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/neuroqc/internal/util"
	"github.com/rotisserie/eris"
)

// ErrToolFailed is returned when a tool exits non-zero
var ErrToolFailed = errors.New("external tool failed")

// Result captures one process invocation
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes external tools. Implementations must block until the
// process exits.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
}

// ExecRunner runs tools with os/exec
type ExecRunner struct {
	DryRun    bool
	ExtraPath []string // directories searched before PATH (e.g. the QA scripts)
}

// NewExecRunner creates a runner that also searches extraPath
func NewExecRunner(dryRun bool, extraPath ...string) *ExecRunner {
	var dirs []string
	for _, d := range extraPath {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return &ExecRunner{DryRun: dryRun, ExtraPath: dirs}
}

// Run executes name with args. A non-zero exit is logged with the captured
// output and returned as ErrToolFailed.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	res := &Result{Command: commandLine(name, args)}
	util.DebugLog("exec: %s", res.Command)

	if r.DryRun {
		return res, nil
	}

	bin, err := r.lookPath(name)
	if err != nil {
		return res, eris.Wrapf(util.ErrNotFound, "%s not found on PATH", name)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = r.environ()

	start := time.Now()
	err = cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		util.ErrorLog("Error %d while executing: %s", res.ExitCode, res.Command)
		if res.Stdout != "" {
			util.ErrorLog("stdout:\n>\t%s", indent(res.Stdout))
		}
		if res.Stderr != "" {
			util.ErrorLog("stderr:\n>\t%s", indent(res.Stderr))
		}
		if ctx.Err() != nil {
			return res, eris.Wrapf(ctx.Err(), "%s interrupted", name)
		}
		return res, eris.Wrapf(ErrToolFailed, "%s exited with status %d", name, res.ExitCode)
	}

	util.DebugLog("rtnval: 0 (%s)", res.Duration.Round(time.Millisecond))
	if res.Stdout != "" {
		util.DebugLog("stdout:\n>\t%s", indent(res.Stdout))
	}
	return res, nil
}

func (r *ExecRunner) lookPath(name string) (string, error) {
	for _, dir := range r.ExtraPath {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}

// environ extends PATH so scripts can call their sibling helpers
func (r *ExecRunner) environ() []string {
	env := os.Environ()
	if len(r.ExtraPath) == 0 {
		return env
	}
	extra := strings.Join(r.ExtraPath, string(os.PathListSeparator))
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = kv + string(os.PathListSeparator) + extra
			return env
		}
	}
	return append(env, "PATH="+extra)
}

// Available reports whether name can be found by the runner
func (r *ExecRunner) Available(name string) bool {
	_, err := r.lookPath(name)
	return err == nil
}

func commandLine(name string, args []string) string {
	parts := append([]string{name}, args...)
	for i, p := range parts {
		if strings.ContainsAny(p, " \t'\"*") {
			parts[i] = "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
		}
	}
	return strings.Join(parts, " ")
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n>\t")
}
