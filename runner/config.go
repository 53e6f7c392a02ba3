package runner

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/acepocalypse/ntl-academies-tracker/verify"
)

// Duration is a time.Duration that unmarshals from YAML duration strings
// like "30s" or "10m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// SourceConfig describes one tracked roster source.
type SourceConfig struct {
	// ID is the source identifier; it namespaces snapshots and artifacts.
	ID string `yaml:"id"`
	// Name is the human-readable source name used in reports.
	Name string `yaml:"name"`
	// Command optionally runs an external collector before diffing
	// (argv form, executed without a shell).
	Command []string `yaml:"command"`
	// PrimaryKey overrides the global primary key for this source.
	PrimaryKey []string `yaml:"primary_key"`
	// IgnoreFields overrides the global ignored fields for this source.
	IgnoreFields []string `yaml:"ignore_fields"`
	// IdentifierField is the record field the verifier dereferences.
	IdentifierField string `yaml:"identifier_field"`
	// MissingMarkers registers or overrides the removal-verification profile
	// for this source. Sources with neither markers here nor a builtin
	// profile pass removals through as not_supported.
	MissingMarkers []string `yaml:"missing_markers"`
}

// CollectConfig bounds the external collection step.
type CollectConfig struct {
	// Timeout hard-fails one source's collection. Default: 30m.
	Timeout Duration `yaml:"timeout"`
	// MaxAttempts bounds collection retries. Default: 2.
	MaxAttempts int `yaml:"max_attempts"`
	// Backoff is the base delay between attempts (linear). Default: 30s.
	Backoff Duration `yaml:"backoff"`
}

// VerifyConfig tunes the removal verifier.
type VerifyConfig struct {
	// Disabled turns off live verification entirely; removals are then
	// written as diffed, without annotation.
	Disabled bool `yaml:"disabled"`
	// Timeout bounds each probe request. Default: 15s.
	Timeout Duration `yaml:"timeout"`
	// Concurrency caps in-flight probes per source. Default: 4.
	Concurrency int `yaml:"concurrency"`
	// RatePerSec paces probes per source. Default: 2.
	RatePerSec float64 `yaml:"rate_per_sec"`
	// UserAgent overrides the shared header profile.
	UserAgent string `yaml:"user_agent"`
}

// Config holds the whole engine configuration. Nothing is read from ambient
// state: every knob the pipeline uses is threaded from here.
type Config struct {
	// SnapshotsDir is the snapshot root. Default: "snapshots".
	SnapshotsDir string `yaml:"snapshots_dir"`
	// BackupDir enables best-effort snapshot backups when non-empty.
	BackupDir string `yaml:"backup_dir"`
	// RunLogPath enables the SQLite run-history store when non-empty.
	RunLogPath string `yaml:"runlog_path"`
	// Parallel is the number of sources processed concurrently. Default: 1
	// (sequential, the operator may raise it).
	Parallel int `yaml:"parallel"`
	// NotifySubject is the notification subject line.
	NotifySubject string `yaml:"notify_subject"`

	// PrimaryKey is the default primary key. Default: [profile_url].
	PrimaryKey []string `yaml:"primary_key"`
	// IgnoreFields is the default ignored-field list. Default: [location],
	// too volatile across captures to alert on.
	IgnoreFields []string `yaml:"ignore_fields"`

	Collect CollectConfig  `yaml:"collect"`
	Verify  VerifyConfig   `yaml:"verify"`
	Sources []SourceConfig `yaml:"sources"`
}

func (c *Config) defaults() {
	if c.SnapshotsDir == "" {
		c.SnapshotsDir = "snapshots"
	}
	if c.Parallel <= 0 {
		c.Parallel = 1
	}
	if c.NotifySubject == "" {
		c.NotifySubject = "Roster tracker — run complete"
	}
	if len(c.PrimaryKey) == 0 {
		c.PrimaryKey = []string{"profile_url"}
	}
	if c.IgnoreFields == nil {
		c.IgnoreFields = []string{"location"}
	}
	if c.Collect.Timeout <= 0 {
		c.Collect.Timeout = Duration(30 * time.Minute)
	}
	if c.Collect.MaxAttempts <= 0 {
		c.Collect.MaxAttempts = 2
	}
	if c.Collect.Backoff <= 0 {
		c.Collect.Backoff = Duration(30 * time.Second)
	}
	if c.Verify.Timeout <= 0 {
		c.Verify.Timeout = Duration(15 * time.Second)
	}
	if c.Verify.Concurrency <= 0 {
		c.Verify.Concurrency = 4
	}
	if c.Verify.RatePerSec <= 0 {
		c.Verify.RatePerSec = 2
	}
	for i := range c.Sources {
		if c.Sources[i].Name == "" {
			c.Sources[i].Name = c.Sources[i].ID
		}
	}
}

// keyFields resolves the primary key for one source.
func (c *Config) keyFields(src *SourceConfig) []string {
	if len(src.PrimaryKey) > 0 {
		return src.PrimaryKey
	}
	return c.PrimaryKey
}

// ignoreFields resolves the ignored fields for one source.
func (c *Config) ignoreFields(src *SourceConfig) []string {
	if src.IgnoreFields != nil {
		return src.IgnoreFields
	}
	return c.IgnoreFields
}

// profiles builds the verifier dispatch table: builtin academy profiles,
// overlaid with per-source marker configuration.
func (c *Config) profiles() map[string]*verify.Profile {
	out := verify.BuiltinProfiles()
	for i := range c.Sources {
		src := &c.Sources[i]
		if len(src.MissingMarkers) == 0 && src.IdentifierField == "" {
			continue
		}
		p := out[src.ID]
		if p == nil {
			p = &verify.Profile{Name: src.Name}
		}
		if len(src.MissingMarkers) > 0 {
			p.MissingMarkers = src.MissingMarkers
		}
		if src.IdentifierField != "" {
			p.IdentifierField = src.IdentifierField
		}
		if p.IdentifierField == "" {
			p.IdentifierField = "profile_url"
		}
		out[src.ID] = p
	}
	return out
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.defaults()
	return cfg, nil
}
