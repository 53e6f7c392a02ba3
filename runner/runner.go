// Package runner sequences the snapshot pipeline over all configured
// sources: collect, load the two latest snapshots, diff, verify removals,
// write artifacts, report. Each source is processed in isolation, so one
// source's failure never blocks another's artifacts.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acepocalypse/ntl-academies-tracker/artifact"
	"github.com/acepocalypse/ntl-academies-tracker/diff"
	"github.com/acepocalypse/ntl-academies-tracker/runlog"
	"github.com/acepocalypse/ntl-academies-tracker/snapshot"
	"github.com/acepocalypse/ntl-academies-tracker/verify"
)

// ErrNoSources is the one unrecoverable configuration error: an engine with
// nothing to track.
var ErrNoSources = errors.New("runner: no sources configured")

// Runner coordinates one engine run across all configured sources.
type Runner struct {
	config    *Config
	repo      *snapshot.Repository
	verifier  *verify.Verifier
	collector Collector
	notifier  Notifier
	log       *runlog.Store
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Runner during creation.
type Option func(*Runner)

// WithCollector sets the external collection collaborator. Without one, the
// engine diffs whatever snapshots already exist.
func WithCollector(c Collector) Option {
	return func(r *Runner) { r.collector = c }
}

// WithNotifier sets the summary delivery collaborator.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithRunLog sets the run-history store.
func WithRunLog(s *runlog.Store) Option {
	return func(r *Runner) { r.log = s }
}

// WithClock overrides the time source. Used in tests for stable artifact
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner. Fails only on unrecoverable configuration: an empty
// source list.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if len(cfg.Sources) == 0 {
		return nil, ErrNoSources
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		config: cfg,
		repo:   snapshot.NewRepository(cfg.SnapshotsDir),
		logger: logger,
		now:    time.Now,
	}
	if !cfg.Verify.Disabled {
		r.verifier = verify.New(verify.Config{
			Probe: verify.ProberConfig{
				Timeout:   time.Duration(cfg.Verify.Timeout),
				UserAgent: cfg.Verify.UserAgent,
			},
			Concurrency: cfg.Verify.Concurrency,
			RatePerSec:  cfg.Verify.RatePerSec,
		}, cfg.profiles(), logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one full cycle over every configured source and returns the
// aggregate report. Per-source failures land in the report, never in the
// returned error; the error is reserved for run-level infrastructure (the
// run log) breaking.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	started := r.now()
	report := &Report{
		StartedAt: started,
		Sources:   make([]SourceReport, len(r.config.Sources)),
	}

	runID, err := r.log.BeginRun(ctx)
	if err != nil {
		return nil, err
	}
	report.RunID = runID

	// Sources are independent: process them on a bounded pool. Parallel=1
	// keeps the original sequential behavior. Each slot writes only its own
	// index, so no shared state crosses source boundaries.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallel)
	for i := range r.config.Sources {
		g.Go(func() error {
			rep := r.processSource(gctx, r.config.Sources[i])
			if rep.Failed() {
				r.logger.Error("source failed", "source_id", rep.SourceID, "error", rep.Err)
			}
			report.Sources[i] = rep
			return nil
		})
	}
	g.Wait()

	for i := range report.Sources {
		r.recordSource(ctx, runID, &report.Sources[i])
	}
	if err := r.log.FinishRun(ctx, runID, report.AnyFailed(), report.Text()); err != nil {
		r.logger.Warn("runlog: finish run", "error", err)
	}

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, r.config.NotifySubject, report.Text(), report.Attachments()); err != nil {
			// Notification failure never fails the run.
			r.logger.Error("notify failed", "error", err)
		}
	}

	r.logger.Info("run complete",
		"sources", len(report.Sources),
		"any_failed", report.AnyFailed(),
		"duration", r.now().Sub(started).Round(time.Millisecond))
	return report, nil
}

// processSource runs the full pipeline for one source. Every failure,
// including a panic, is contained here: one source's crash must never
// prevent another source's artifacts from being written.
func (r *Runner) processSource(ctx context.Context, src SourceConfig) (rep SourceReport) {
	rep = SourceReport{SourceID: src.ID, Name: src.Name, State: StateNotStarted}
	defer func() {
		if p := recover(); p != nil {
			rep.State = StateFailed
			rep.Err = fmt.Errorf("panic: %v", p)
			r.logger.Error("source panicked", "source_id", src.ID, "panic", p)
		}
	}()

	keyFields := r.config.keyFields(&src)
	ignoreFields := r.config.ignoreFields(&src)

	// 1. Collection (optional, bounded, retried).
	if r.collector != nil && len(src.Command) > 0 {
		policy := RetryPolicy{
			MaxAttempts: r.config.Collect.MaxAttempts,
			Backoff:     time.Duration(r.config.Collect.Backoff),
		}
		err := policy.Do(ctx, r.logger, "collect "+src.ID, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, time.Duration(r.config.Collect.Timeout))
			defer cancel()
			return r.collector.Collect(cctx, src)
		})
		if err != nil {
			return rep.fail(fmt.Errorf("collection: %w", err))
		}
	}
	rep.State = StateCollected

	// 2. Load the two most recent snapshots.
	prev, curr, _, currPath, err := r.repo.LatestTwo(src.ID, keyFields, ignoreFields)
	if err != nil {
		return rep.fail(fmt.Errorf("load snapshots: %w", err))
	}
	if currPath == "" {
		return rep.fail(errors.New("no snapshots found"))
	}
	rep.SnapshotFile = filepath.Base(currPath)
	rep.SnapshotTS = snapshot.Timestamp(currPath, r.now())

	defer func() {
		if !rep.Failed() {
			snapshot.Backup(r.logger, r.config.BackupDir, src.ID, currPath)
		}
	}()

	if prev == nil {
		// First capture for this source: nothing to diff, not an error.
		rep.FirstSnapshot = true
		rep.State = StateReported
		r.logger.Info("first snapshot", "source_id", src.ID, "file", rep.SnapshotFile)
		return rep
	}

	// 3. Diff.
	res := diff.Compute(prev, curr, keyFields, ignoreFields)
	rep.State = StateDiffed
	rep.Added, rep.Removed, rep.Modified = res.Added.Len(), res.Removed.Len(), res.Modified.Len()
	rep.Summary = res.Summary()

	// 4. Corroborate removals against the live source. still_present rows
	// are demoted out of the removal artifact; everything uncertain stays.
	if r.verifier != nil && !res.Removed.Empty() {
		outcome := r.verifier.VerifyRemoved(ctx, src.ID, res.Removed)
		rep.Confirmed = outcome.Confirmed.Len()
		rep.StillPresent = outcome.StillPresent.Len()
		rep.CheckErrors = outcome.Errors.Len()
		res = &diff.Result{Added: res.Added, Removed: outcome.Confirmed, Modified: res.Modified}
	}
	rep.State = StateVerified

	// 5. Persist non-empty partitions.
	written, err := artifact.Write(res, filepath.Join(r.repo.Root(), "diffs"), src.ID, rep.SnapshotTS)
	if err != nil {
		return rep.fail(fmt.Errorf("write artifacts: %w", err))
	}
	rep.Artifacts = written
	rep.State = StateWritten

	rep.State = StateReported
	r.logger.Info("source processed",
		"source_id", src.ID,
		"snapshot", rep.SnapshotTS,
		"added", rep.Added, "removed", rep.Removed, "modified", rep.Modified,
		"artifacts", len(written))
	return rep
}

// fail marks the report failed with err.
func (rep SourceReport) fail(err error) SourceReport {
	rep.State = StateFailed
	rep.Err = err
	return rep
}

// recordSource persists one source outcome to the run log.
func (r *Runner) recordSource(ctx context.Context, runID string, rep *SourceReport) {
	errText := ""
	if rep.Err != nil {
		errText = rep.Err.Error()
	}
	err := r.log.RecordSource(ctx, &runlog.SourceRun{
		RunID:        runID,
		SourceID:     rep.SourceID,
		State:        string(rep.State),
		SnapshotTS:   rep.SnapshotTS,
		Added:        rep.Added,
		Removed:      rep.Removed,
		Modified:     rep.Modified,
		Confirmed:    rep.Confirmed,
		StillPresent: rep.StillPresent,
		CheckErrors:  rep.CheckErrors,
		Artifacts:    rep.Artifacts,
		Error:        errText,
	})
	if err != nil {
		r.logger.Warn("runlog: record source", "source_id", rep.SourceID, "error", err)
	}
}
