package ir

import (
	"errors"
	"fmt"
)

// FailureKind classifies a non-fatal reconciliation failure.
type FailureKind string

const (
	// FailureBackendQuery is raised when a store read fails.
	FailureBackendQuery FailureKind = "BACKEND_QUERY"
	// FailureBackendMutation is raised when a store write fails.
	FailureBackendMutation FailureKind = "BACKEND_MUTATION"
	// FailureUnresolvedActor is raised when the account linker cannot
	// map an actor to the other side.
	FailureUnresolvedActor FailureKind = "UNRESOLVED_ACTOR"
	// FailureConfigurationRejected is raised when a pairing set fails
	// validation.
	FailureConfigurationRejected FailureKind = "CONFIGURATION_REJECTED"
)

// Failure is the typed failure signal carried on an Outcome. It is never
// fatal to the engine: callers log it and move on.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Result  Result      `json:"result"`
	Side    Side        `json:"side,omitempty"`
	Pair    PairKey     `json:"pair"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	var msg string
	if f.Side != "" {
		msg = fmt.Sprintf("%s [%s] %s: %s", f.Kind, f.Side, f.Pair, f.Message)
	} else {
		msg = fmt.Sprintf("%s %s: %s", f.Kind, f.Pair, f.Message)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure builds a Failure wrapping cause.
func NewFailure(kind FailureKind, result Result, side Side, pair PairKey, msg string, cause error) *Failure {
	return &Failure{Kind: kind, Result: result, Side: side, Pair: pair, Message: msg, Err: cause}
}

// IsFailureKind reports whether err carries a Failure of the given kind.
func IsFailureKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// ResultOf extracts the result tag from a Failure in err's chain.
// It returns "" when err carries no Failure.
func ResultOf(err error) Result {
	var f *Failure
	if errors.As(err, &f) {
		return f.Result
	}
	return ""
}
