package runner

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSourceReport_Line(t *testing.T) {
	// WHAT: The bullet line has three shapes: failure, first snapshot, and
	// summary with optional verification tallies and artifact names.
	cases := []struct {
		name string
		rep  SourceReport
		want string
	}{
		{
			name: "failed",
			rep: SourceReport{
				SourceID: "3008", Name: "NAE", State: StateFailed,
				Err: errors.New("no snapshots found"),
			},
			want: "• 3008 (NAE): FAILED — no snapshots found",
		},
		{
			name: "first snapshot",
			rep: SourceReport{
				SourceID: "1909", Name: "NAM", State: StateReported,
				FirstSnapshot: true, SnapshotFile: "20250101_000000.csv",
			},
			want: "• 1909 (NAM): first snapshot 20250101_000000.csv (no diff yet)",
		},
		{
			name: "clean diff",
			rep: SourceReport{
				SourceID: "2023", Name: "NAS", State: StateReported,
				SnapshotTS: "20250201_000000", Summary: "+2 / -0 / ~1",
			},
			want: "• 2023 (NAS): 20250201_000000 — +2 / -0 / ~1",
		},
		{
			name: "verification tallies and artifacts",
			rep: SourceReport{
				SourceID: "3008", Name: "NAE", State: StateReported,
				SnapshotTS: "20250201_000000", Summary: "+0 / -3 / ~0",
				Confirmed: 1, StillPresent: 1, CheckErrors: 1,
				Artifacts: []string{"/x/diffs/3008__20250201_000000__removed.csv"},
			},
			want: "• 3008 (NAE): 20250201_000000 — +0 / -3 / ~0" +
				" (removals verified: 1 confirmed, 1 still present, 1 check errors)" +
				"\n3008__20250201_000000__removed.csv",
		},
	}
	for _, tc := range cases {
		if got := tc.rep.Line(); got != tc.want {
			t.Errorf("%s:\n got %q\nwant %q", tc.name, got, tc.want)
		}
	}
}

func TestReport_Text(t *testing.T) {
	// WHAT: The summary opens with the run timestamp and keeps failed
	// sources visible next to successful ones.
	r := &Report{
		StartedAt: time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC),
		Sources: []SourceReport{
			{SourceID: "a", Name: "A", State: StateReported, SnapshotTS: "20250201_000000", Summary: "+1 / -0 / ~0"},
			{SourceID: "b", Name: "B", State: StateFailed, Err: errors.New("boom")},
		},
	}

	text := r.Text()
	if !strings.HasPrefix(text, "Run at 2025-02-01 09:30:00\n") {
		t.Errorf("header: %q", text)
	}
	if !strings.Contains(text, "• a (A): 20250201_000000 — +1 / -0 / ~0") {
		t.Errorf("missing success line: %q", text)
	}
	if !strings.Contains(text, "• b (B): FAILED — boom") {
		t.Errorf("missing failure line: %q", text)
	}
}

func TestReport_AnyFailedAndAttachments(t *testing.T) {
	r := &Report{Sources: []SourceReport{
		{SourceID: "a", State: StateReported, Artifacts: []string{"/d/a__x__added.csv"}},
		{SourceID: "b", State: StateReported, Artifacts: []string{"/d/b__x__removed.csv", "/d/b__x__modified.csv"}},
	}}
	if r.AnyFailed() {
		t.Error("no source failed")
	}
	if got := r.Attachments(); len(got) != 3 || got[0] != "/d/a__x__added.csv" {
		t.Errorf("attachments: %v", got)
	}

	r.Sources[1].State = StateFailed
	if !r.AnyFailed() {
		t.Error("AnyFailed should be true")
	}
}
