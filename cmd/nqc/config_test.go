package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/franz/neuroqc/internal/store"
	"github.com/franz/neuroqc/internal/util"
	"github.com/spf13/viper"
)

func TestResolvePaths(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("qcdir", "/qc")
	p, err := resolvePaths(false)
	if err != nil {
		t.Fatalf("resolvePaths failed: %v", err)
	}
	if p.DBPath != filepath.Join("/qc", store.FileName) {
		t.Errorf("store should default to qcdir, got %s", p.DBPath)
	}

	if _, err := resolvePaths(true); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("missing datadir should be a config error, got %v", err)
	}

	viper.Set("datadir", "/data")
	viper.Set("project-settings", "/data/metadata/settings.yml")
	viper.Set("dbdir", "/db")
	p, err = resolvePaths(true)
	if err != nil {
		t.Fatalf("resolvePaths failed: %v", err)
	}
	if p.DBPath != filepath.Join("/db", store.FileName) {
		t.Errorf("dbdir should override qcdir, got %s", p.DBPath)
	}
}

func TestResolvePaths_NoQCDir(t *testing.T) {
	t.Cleanup(viper.Reset)

	if _, err := resolvePaths(false); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("missing qcdir should be a config error, got %v", err)
	}
}

func TestNASMode(t *testing.T) {
	t.Cleanup(viper.Reset)

	if nasMode() != nil {
		t.Error("nas-mode should auto-detect when unset")
	}
	viper.Set("nas-mode", false)
	if m := nasMode(); m == nil || *m {
		t.Error("explicit nas-mode=false should be returned")
	}
}

func TestEnvKeyReplacer(t *testing.T) {
	if got := envKeyReplacer.Replace("functional.min-trs"); got != "functional_min_trs" {
		t.Errorf("unexpected env key %q", got)
	}
}

func TestFormatRecord(t *testing.T) {
	rec := &store.Record{
		Subject: "SPN01_CMH_0001_01",
		Values:  map[string]any{"site": "CMH", "spikecount": 3.0},
	}
	lines := formatRecord(rec, []string{"site", "spikecount", "fdtot"})
	want := []string{
		"site        CMH",
		"spikecount  3",
		"fdtot       -",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d", len(lines), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}
