package runner

// State tracks how far one source progressed through the pipeline.
// The happy path is NotStarted → Collected → Diffed → Verified → Written →
// Reported; Failed is terminal and reachable from any state. A source with a
// single snapshot jumps from Collected straight to Reported; a first capture
// is not an error.
type State string

const (
	StateNotStarted State = "not_started"
	StateCollected  State = "collected"
	StateDiffed     State = "diffed"
	StateVerified   State = "verified"
	StateWritten    State = "written"
	StateReported   State = "reported"
	StateFailed     State = "failed"
)
