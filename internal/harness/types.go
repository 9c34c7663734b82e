package harness

import "github.com/roach88/linksync/internal/ir"

// Trace event types.
const (
	EventOutcome = "outcome"
	EventEcho    = "echo_suppressed"
)

// TraceEvent is one entry of a scenario trace: an outcome, or an echo the
// engine recognised and swallowed.
type TraceEvent struct {
	Type         string `json:"type"`
	Seq          int64  `json:"seq,omitempty"`
	Flow         string `json:"flow,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Pairing      string `json:"pairing,omitempty"`
	Side         string `json:"side,omitempty"`
	GameActor    string `json:"game_actor,omitempty"`
	DiscordActor string `json:"discord_actor,omitempty"`
	Result       string `json:"result,omitempty"`
	Error        string `json:"error,omitempty"`
}

func outcomeEvent(o ir.Outcome) TraceEvent {
	return TraceEvent{
		Type:         EventOutcome,
		Seq:          o.Seq,
		Flow:         o.FlowToken,
		Origin:       string(o.Origin),
		Pairing:      o.Pairing.Label(),
		GameActor:    string(o.GameActor),
		DiscordActor: string(o.DiscordActor),
		Result:       string(o.Result),
		Error:        o.ErrorText(),
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every event in the order the engine produced them.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Rejected is the number of pairings the configuration step rejected.
	Rejected int `json:"rejected"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcomes returns only the outcome events.
func (r *Result) Outcomes() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Type == EventOutcome {
			out = append(out, e)
		}
	}
	return out
}
