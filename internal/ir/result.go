package ir

// Result is the closed set of tags a reconciliation attempt can produce.
type Result string

const (
	// Mutations performed.
	ResultAddGame       Result = "ADD_GAME"
	ResultRemoveGame    Result = "REMOVE_GAME"
	ResultAddDiscord    Result = "ADD_DISCORD"
	ResultRemoveDiscord Result = "REMOVE_DISCORD"

	// Already converged.
	ResultBothTrue  Result = "BOTH_TRUE"
	ResultBothFalse Result = "BOTH_FALSE"

	// Non-fatal failures.
	ResultWrongDirection Result = "WRONG_DIRECTION"
	ResultNotLinked      Result = "NOT_LINKED"
	ResultBackendFailure Result = "BACKEND_FAILURE"
)

// AllResults lists every tag in a stable order (used for metrics and
// the history command).
var AllResults = []Result{
	ResultAddGame,
	ResultRemoveGame,
	ResultAddDiscord,
	ResultRemoveDiscord,
	ResultBothTrue,
	ResultBothFalse,
	ResultWrongDirection,
	ResultNotLinked,
	ResultBackendFailure,
}

// Valid reports whether r is one of the known tags.
func (r Result) Valid() bool {
	for _, known := range AllResults {
		if r == known {
			return true
		}
	}
	return false
}

// Success reports whether the tag counts as a success for reporting:
// a mutation was performed or the sides already agreed.
func (r Result) Success() bool {
	switch r {
	case ResultAddGame, ResultRemoveGame, ResultAddDiscord, ResultRemoveDiscord,
		ResultBothTrue, ResultBothFalse:
		return true
	default:
		return false
	}
}

// Mutated reports whether the tag records a write to either store.
func (r Result) Mutated() bool {
	switch r {
	case ResultAddGame, ResultRemoveGame, ResultAddDiscord, ResultRemoveDiscord:
		return true
	default:
		return false
	}
}

// MutationResult returns the tag for a successful write of state to target.
func MutationResult(target Side, state bool) Result {
	if target == SideGame {
		if state {
			return ResultAddGame
		}
		return ResultRemoveGame
	}
	if state {
		return ResultAddDiscord
	}
	return ResultRemoveDiscord
}

// ConvergedResult returns BOTH_TRUE or BOTH_FALSE.
func ConvergedResult(state bool) Result {
	if state {
		return ResultBothTrue
	}
	return ResultBothFalse
}
