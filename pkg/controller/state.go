package controller

// State is a phase of the retry loop
type State int

const (
	StateIdle State = iota
	StateFetchingReadme
	StateAnalyzing
	StateExecuting
	StateDiagnosing
	StateSuccess
	StateFailure
)

// String returns the name of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetchingReadme:
		return "FETCHING_README"
	case StateAnalyzing:
		return "ANALYZING"
	case StateExecuting:
		return "EXECUTING"
	case StateDiagnosing:
		return "DIAGNOSING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailure:
		return "FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}
