package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExecCollector(t *testing.T) {
	// WHAT: A zero exit succeeds; a non-zero exit fails with the tail of the
	// process output attached for context.
	c := &ExecCollector{Logger: discardLogger()}
	ctx := context.Background()

	err := c.Collect(ctx, SourceConfig{ID: "ok", Command: []string{"sh", "-c", "exit 0"}})
	if err != nil {
		t.Errorf("zero exit: %v", err)
	}

	err = c.Collect(ctx, SourceConfig{ID: "bad", Command: []string{"sh", "-c", "echo scraper crashed >&2; exit 3"}})
	if err == nil {
		t.Fatal("expected error on non-zero exit")
	}
	if !strings.Contains(err.Error(), "scraper crashed") {
		t.Errorf("error should carry output tail: %v", err)
	}

	// No command configured is a no-op.
	if err := c.Collect(ctx, SourceConfig{ID: "none"}); err != nil {
		t.Errorf("empty command: %v", err)
	}
}

func TestExecCollector_ContextTimeout(t *testing.T) {
	c := &ExecCollector{Logger: discardLogger()}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Collect(ctx, SourceConfig{ID: "slow", Command: []string{"sleep", "5"}})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRetryPolicy_SucceedsAfterRetry(t *testing.T) {
	// WHAT: A transient failure is retried and the attempt count is bounded
	// by MaxAttempts.
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := p.Do(context.Background(), discardLogger(), "collect", func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Errorf("err: %v", err)
	}
	if calls != 2 {
		t.Errorf("calls: %d", calls)
	}
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	calls := 0
	wantErr := errors.New("always down")
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := p.Do(context.Background(), discardLogger(), "collect", func(ctx context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("err: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls: %d", calls)
	}
}

func TestRetryPolicy_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	err := RetryPolicy{}.Do(context.Background(), discardLogger(), "x", func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("calls=%d err=%v", calls, err)
	}
}

func TestRetryPolicy_CancelStopsRetrying(t *testing.T) {
	// WHAT: Cancellation during backoff aborts immediately instead of
	// burning through the remaining attempts.
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Minute}
	errc := make(chan error, 1)
	go func() {
		errc <- p.Do(ctx, discardLogger(), "collect", func(ctx context.Context) error {
			calls++
			return errors.New("down")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls: %d", calls)
	}
}

func TestLastLines(t *testing.T) {
	in := "one\n\ntwo\nthree\nfour\n"
	if got := lastLines(in, 2); got != "three\nfour" {
		t.Errorf("got %q", got)
	}
	if got := lastLines("short", 5); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := lastLines("", 5); got != "" {
		t.Errorf("got %q", got)
	}
}
