package scan

import "errors"

// State is the lifecycle state of the orchestrator. Transitions:
//
// idle           -> parsing
// parsing        -> idle | phase1_running
// phase1_running -> phase2_running | aborted
// phase2_running -> done | aborted
// done           -> parsing | idle
// aborted        -> parsing | idle
//
// Anything else is rejected with ErrInvalidTransition.
type State string

const (
	StateIdle    State = "idle"
	StateParsing State = "parsing"
	StatePhase1  State = "phase1_running"
	StatePhase2  State = "phase2_running"
	StateDone    State = "done"
	StateAborted State = "aborted"
)

var (
	// ErrNoCandidates is the only user visible failure of a scan: the input
	// produced no valid proxy address.
	ErrNoCandidates = errors.New("no valid proxy candidates")

	ErrScanActive        = errors.New("a scan is already running")
	ErrInvalidTransition = errors.New("invalid scan state transition")
)

// Active reports whether a run is parsing or probing.
func (s State) Active() bool {
	return s == StateParsing || s == StatePhase1 || s == StatePhase2
}

// Finished reports whether the last run reached a terminal state.
func (s State) Finished() bool {
	return s == StateDone || s == StateAborted
}

func allowedTransition(cur, next State) bool {
	switch cur {
	case StateIdle:
		return next == StateParsing
	case StateParsing:
		return next == StateIdle || next == StatePhase1
	case StatePhase1:
		return next == StatePhase2 || next == StateAborted
	case StatePhase2:
		return next == StateDone || next == StateAborted
	case StateDone, StateAborted:
		return next == StateParsing || next == StateIdle
	default:
		return false
	}
}
