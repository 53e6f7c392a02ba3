package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// SourceReport is one source's outcome within a run.
type SourceReport struct {
	SourceID string
	Name     string
	State    State
	// SnapshotTS is the current snapshot's timestamp identity.
	SnapshotTS string
	// Summary is the "+a / -r / ~m" partition count line.
	Summary string
	// Artifacts are the diff files written for this source.
	Artifacts []string
	// FirstSnapshot marks the "one capture, nothing to diff" case.
	FirstSnapshot bool
	// SnapshotFile is the current snapshot's base name (for first-snapshot lines).
	SnapshotFile string
	// Verification tallies (zero when verification did not run).
	Confirmed    int
	StillPresent int
	CheckErrors  int
	// Partition counts.
	Added, Removed, Modified int

	Err error
}

// Failed reports whether this source ended in the terminal failure state.
func (r *SourceReport) Failed() bool {
	return r.State == StateFailed
}

// Line renders the one-line (plus artifact names) report entry for this
// source, in the run summary's bullet format.
func (r *SourceReport) Line() string {
	label := fmt.Sprintf("• %s (%s)", r.SourceID, r.Name)
	switch {
	case r.Failed():
		return fmt.Sprintf("%s: FAILED — %v", label, r.Err)
	case r.FirstSnapshot:
		return fmt.Sprintf("%s: first snapshot %s (no diff yet)", label, r.SnapshotFile)
	}

	line := fmt.Sprintf("%s: %s — %s", label, r.SnapshotTS, r.Summary)
	if r.StillPresent > 0 || r.CheckErrors > 0 {
		line += fmt.Sprintf(" (removals verified: %d confirmed, %d still present, %d check errors)",
			r.Confirmed, r.StillPresent, r.CheckErrors)
	}
	for _, a := range r.Artifacts {
		line += "\n" + filepath.Base(a)
	}
	return line
}

// Report aggregates every source's outcome for one engine run.
type Report struct {
	RunID     string
	StartedAt time.Time
	Sources   []SourceReport
}

// AnyFailed reports whether at least one source failed. Callers map this to
// the process exit code.
func (r *Report) AnyFailed() bool {
	for i := range r.Sources {
		if r.Sources[i].Failed() {
			return true
		}
	}
	return false
}

// Attachments lists every artifact written during the run, in source order.
func (r *Report) Attachments() []string {
	var out []string
	for i := range r.Sources {
		out = append(out, r.Sources[i].Artifacts...)
	}
	return out
}

// Text renders the plain-text run summary: a header line, then one entry per
// source, including failures, so partial success is always legible.
func (r *Report) Text() string {
	lines := []string{fmt.Sprintf("Run at %s\n", r.StartedAt.Format("2006-01-02 15:04:05"))}
	for i := range r.Sources {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, r.Sources[i].Line())
	}
	return strings.Join(lines, "\n")
}

// Notifier delivers the run summary. Delivery (email, webhook, anything) is
// external to the engine; it only hands over the summary-and-attachments
// contract.
type Notifier interface {
	Notify(ctx context.Context, subject, body string, attachments []string) error
}
