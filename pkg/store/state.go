package store

type RecordState int

const (
	RecordStateUndefined RecordState = iota
	// RecordStateProposed means a proposal was submitted for the instance.
	RecordStateProposed
	// RecordStateSolving means a solve attempt is currently running.
	RecordStateSolving
	// RecordStateFailed means the last solve attempt failed. Failed records
	// are picked up again on later passes.
	RecordStateFailed
	// RecordStateSolved means the instance was solved and reported. This is
	// the only terminal state.
	RecordStateSolved
)

var recordStateNames = map[RecordState]string{
	RecordStateUndefined: "undefined",
	RecordStateProposed:  "proposed",
	RecordStateSolving:   "solving",
	RecordStateFailed:    "failed",
	RecordStateSolved:    "solved",
}

func (s RecordState) String() string {
	name, ok := recordStateNames[s]
	if !ok {
		return "unknown"
	}
	return name
}

// IsTerminal returns true if no further transitions are allowed. Failed is
// deliberately non-terminal so failed solves retry forever.
func (s RecordState) IsTerminal() bool {
	return s == RecordStateSolved
}

// IsActive returns true if the instance may still be acted on.
func (s RecordState) IsActive() bool {
	return s == RecordStateProposed || s == RecordStateSolving || s == RecordStateFailed
}
