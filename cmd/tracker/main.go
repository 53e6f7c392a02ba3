// Command tracker runs one monitoring cycle over the configured roster
// sources: collect new snapshots, diff the two most recent per source,
// verify removals against the live directories, and write diff artifacts.
//
// Usage:
//
//	tracker -config tracker.yaml                 # full run
//	tracker -config tracker.yaml -sources 3008   # subset of sources
//	tracker -config tracker.yaml -no-collect     # diff existing snapshots only
//
// Exit status is non-zero when any source failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/acepocalypse/ntl-academies-tracker/runlog"
	"github.com/acepocalypse/ntl-academies-tracker/runner"
)

func main() {
	configPath := flag.String("config", "tracker.yaml", "path to YAML config file")
	sources := flag.String("sources", "", "comma-separated source IDs to run (default: all)")
	snapshotsDir := flag.String("snapshots", "", "override snapshot root directory")
	noCollect := flag.Bool("no-collect", false, "skip collection, diff existing snapshots")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	anyFailed, err := run(ctx, logger, *configPath, *sources, *snapshotsDir, *noCollect)
	if err != nil {
		logger.Error("tracker: fatal", "error", err)
		os.Exit(1)
	}
	if anyFailed {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, sources, snapshotsDir string, noCollect bool) (bool, error) {
	cfg, err := runner.LoadConfigFile(configPath)
	if err != nil {
		return false, fmt.Errorf("load config: %w", err)
	}
	if snapshotsDir != "" {
		cfg.SnapshotsDir = snapshotsDir
	}
	if sources != "" {
		cfg.Sources = filterSources(cfg.Sources, sources)
	}

	opts := []runner.Option{
		runner.WithNotifier(consoleNotifier{}),
	}
	if !noCollect {
		opts = append(opts, runner.WithCollector(&runner.ExecCollector{Logger: logger}))
	}
	if cfg.RunLogPath != "" {
		store, err := runlog.Open(cfg.RunLogPath)
		if err != nil {
			return false, fmt.Errorf("open run log: %w", err)
		}
		defer store.Close()
		opts = append(opts, runner.WithRunLog(store))
	}

	r, err := runner.New(cfg, logger, opts...)
	if err != nil {
		return false, err
	}

	report, err := r.Run(ctx)
	if err != nil {
		return false, err
	}
	return report.AnyFailed(), nil
}

// filterSources keeps only the configured sources named in the
// comma-separated list.
func filterSources(all []runner.SourceConfig, list string) []runner.SourceConfig {
	var want []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			want = append(want, id)
		}
	}
	var out []runner.SourceConfig
	for _, src := range all {
		if slices.Contains(want, src.ID) {
			out = append(out, src)
		}
	}
	return out
}

// consoleNotifier prints the run summary to stdout, the default delivery
// for local runs and schedulers that capture output.
type consoleNotifier struct{}

func (consoleNotifier) Notify(_ context.Context, subject, body string, attachments []string) error {
	fmt.Println(subject)
	fmt.Println()
	fmt.Println(body)
	if len(attachments) > 0 {
		fmt.Println()
		fmt.Println("Artifacts:")
		for _, a := range attachments {
			fmt.Println("  -", a)
		}
	}
	return nil
}
