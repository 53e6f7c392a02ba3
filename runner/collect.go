package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Collector is the external collection collaborator: it produces a new
// snapshot for one source. The engine sequences and bounds collection but
// owns none of its mechanics.
type Collector interface {
	Collect(ctx context.Context, src SourceConfig) error
}

// ExecCollector runs each source's configured command as a subprocess.
// The command is expected to write a new snapshot under the snapshot root
// before exiting zero.
type ExecCollector struct {
	// Dir is the working directory for collector processes ("" = inherit).
	Dir    string
	Logger *slog.Logger
}

// Collect runs src.Command under ctx. A non-zero exit or a context timeout
// fails this source only.
func (c *ExecCollector) Collect(ctx context.Context, src SourceConfig) error {
	if len(src.Command) == 0 {
		return nil
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("collect: running", "source_id", src.ID, "command", strings.Join(src.Command, " "))
	cmd := exec.CommandContext(ctx, src.Command[0], src.Command[1:]...)
	cmd.Dir = c.Dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		tail := lastLines(string(out), 5)
		if tail != "" {
			return fmt.Errorf("collector %q: %w: %s", src.Command[0], err, tail)
		}
		return fmt.Errorf("collector %q: %w", src.Command[0], err)
	}
	logger.Info("collect: finished", "source_id", src.ID)
	return nil
}

// lastLines returns the final n non-empty lines of s, for error context.
func lastLines(s string, n int) string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// RetryPolicy is an explicit bounded-retry policy for the collection step.
// The diff and verification core stays retry-free; only collection, which
// fronts flaky scraped sources, gets attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration // linear: attempt n waits n×Backoff
}

// Do runs fn up to MaxAttempts times, backing off between attempts.
// Context cancellation stops retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := range attempts {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		logger.Warn("retrying", "step", name, "attempt", i+1, "error", err)
		if serr := sleepCtx(ctx, time.Duration(i+1)*p.Backoff); serr != nil {
			return fmt.Errorf("%s: cancelled during retry: %w", name, serr)
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
