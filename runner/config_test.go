package runner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{Sources: []SourceConfig{{ID: "3008"}}}
	cfg.defaults()

	if cfg.SnapshotsDir != "snapshots" || cfg.Parallel != 1 {
		t.Errorf("root defaults: dir=%q parallel=%d", cfg.SnapshotsDir, cfg.Parallel)
	}
	if !reflect.DeepEqual(cfg.PrimaryKey, []string{"profile_url"}) {
		t.Errorf("primary key: %v", cfg.PrimaryKey)
	}
	if !reflect.DeepEqual(cfg.IgnoreFields, []string{"location"}) {
		t.Errorf("ignore fields: %v", cfg.IgnoreFields)
	}
	if cfg.Collect.Timeout != Duration(30*time.Minute) || cfg.Collect.MaxAttempts != 2 {
		t.Errorf("collect defaults: %+v", cfg.Collect)
	}
	if cfg.Verify.Concurrency != 4 || cfg.Verify.RatePerSec != 2 {
		t.Errorf("verify defaults: %+v", cfg.Verify)
	}
	// A source without a name falls back to its ID.
	if cfg.Sources[0].Name != "3008" {
		t.Errorf("source name: %q", cfg.Sources[0].Name)
	}
}

func TestConfig_PerSourceOverrides(t *testing.T) {
	// WHAT: Key and ignore lists resolve per source, with an explicit empty
	// ignore list meaning "ignore nothing", distinct from unset.
	cfg := &Config{Sources: []SourceConfig{
		{ID: "a"},
		{ID: "b", PrimaryKey: []string{"member_id"}, IgnoreFields: []string{}},
	}}
	cfg.defaults()

	if got := cfg.keyFields(&cfg.Sources[0]); !reflect.DeepEqual(got, []string{"profile_url"}) {
		t.Errorf("a key: %v", got)
	}
	if got := cfg.keyFields(&cfg.Sources[1]); !reflect.DeepEqual(got, []string{"member_id"}) {
		t.Errorf("b key: %v", got)
	}
	if got := cfg.ignoreFields(&cfg.Sources[0]); !reflect.DeepEqual(got, []string{"location"}) {
		t.Errorf("a ignore: %v", got)
	}
	if got := cfg.ignoreFields(&cfg.Sources[1]); len(got) != 0 || got == nil {
		t.Errorf("b ignore: %v", got)
	}
}

func TestConfig_ProfilesOverlay(t *testing.T) {
	// WHAT: Builtin academy profiles stay registered; per-source marker
	// config adds new sources and overrides builtin markers.
	cfg := &Config{Sources: []SourceConfig{
		{ID: "3008", MissingMarkers: []string{"custom marker"}},
		{ID: "local", Name: "Local Society", IdentifierField: "page_url", MissingMarkers: []string{"gone"}},
		{ID: "plain"},
	}}
	cfg.defaults()

	profiles := cfg.profiles()

	// Builtin with overridden markers.
	nae := profiles["3008"]
	if nae == nil || !reflect.DeepEqual(nae.MissingMarkers, []string{"custom marker"}) {
		t.Errorf("3008: %+v", nae)
	}
	if nae.Name != "NAE" || nae.IdentifierField != "profile_url" {
		t.Errorf("3008 identity: %+v", nae)
	}

	// New source registered from config alone.
	local := profiles["local"]
	if local == nil || local.IdentifierField != "page_url" || local.Name != "Local Society" {
		t.Errorf("local: %+v", local)
	}

	// Untouched builtins survive, unconfigured sources get nothing.
	if profiles["1909"] == nil || profiles["2023"] == nil {
		t.Error("builtin profiles missing")
	}
	if profiles["plain"] != nil {
		t.Errorf("plain should have no profile: %+v", profiles["plain"])
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	doc := `
snapshots_dir: /data/snapshots
backup_dir: /mnt/backup
runlog_path: /data/runs.db
parallel: 2
collect:
  timeout: 10m
  max_attempts: 3
verify:
  rate_per_sec: 0.5
sources:
  - id: "3008"
    name: NAE
    command: ["python", "scrape_nae.py"]
  - id: "1909"
    ignore_fields: [location, elected_year]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SnapshotsDir != "/data/snapshots" || cfg.BackupDir != "/mnt/backup" || cfg.Parallel != 2 {
		t.Errorf("roots: %+v", cfg)
	}
	if cfg.Collect.Timeout != Duration(10*time.Minute) || cfg.Collect.MaxAttempts != 3 {
		t.Errorf("collect: %+v", cfg.Collect)
	}
	if cfg.Verify.RatePerSec != 0.5 {
		t.Errorf("rate: %v", cfg.Verify.RatePerSec)
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("sources: %+v", cfg.Sources)
	}
	if !reflect.DeepEqual(cfg.Sources[0].Command, []string{"python", "scrape_nae.py"}) {
		t.Errorf("command: %v", cfg.Sources[0].Command)
	}
	// Defaults still apply on top of the file.
	if cfg.Sources[1].Name != "1909" || cfg.Collect.Backoff != Duration(30*time.Second) {
		t.Errorf("defaults: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Sources[1].IgnoreFields, []string{"location", "elected_year"}) {
		t.Errorf("ignore override: %v", cfg.Sources[1].IgnoreFields)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfigFile_BadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	doc := "collect:\n  timeout: soonish\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}
