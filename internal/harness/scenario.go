package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linksync/internal/ir"
)

// Scenario is a scripted run of the engine over fake stores.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Pairings use the YAML configuration format of package config.
	Pairings []yaml.Node `yaml:"pairings"`

	// Rejected is the number of pairings expected to fail configuration.
	Rejected int `yaml:"rejected,omitempty"`

	// Links maps game actors to discord actors.
	Links map[string]string `yaml:"links,omitempty"`

	// Setup is the initial store state, applied without notifications.
	Setup []Change `yaml:"setup,omitempty"`

	// Steps drive the engine in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Change is one membership change on one side.
type Change struct {
	Side  string `yaml:"side"`
	Actor string `yaml:"actor"`
	// ID is a role id, or "group[@context]" on the game side.
	ID    string `yaml:"id"`
	State bool   `yaml:"state"`
}

// ResyncStep names the pairing and actor pair of a one-shot resync.
type ResyncStep struct {
	Pairing string `yaml:"pairing"`
	Game    string `yaml:"game"`
	Discord string `yaml:"discord"`
}

// ActorRef names one account; exactly one field is set.
type ActorRef struct {
	Game    string `yaml:"game,omitempty"`
	Discord string `yaml:"discord,omitempty"`
}

// FailStep injects or clears a store failure.
type FailStep struct {
	// Op is "get", "apply" or "link".
	Op   string `yaml:"op"`
	Side string `yaml:"side,omitempty"`
	// Error is the failure message; empty clears the failure.
	Error string `yaml:"error"`
}

// Step is one scenario action. Exactly one action field is set.
type Step struct {
	Notify    *Change     `yaml:"notify,omitempty"`
	Drift     *Change     `yaml:"drift,omitempty"`
	Resync    *ResyncStep `yaml:"resync,omitempty"`
	ResyncAll *ActorRef   `yaml:"resync_all,omitempty"`
	Timer     string      `yaml:"timer,omitempty"`
	Advance   string      `yaml:"advance,omitempty"`
	Replay    bool        `yaml:"replay,omitempty"`
	Fail      *FailStep   `yaml:"fail,omitempty"`

	// HoldEchoes keeps this step's echoes for a later replay step.
	HoldEchoes bool `yaml:"hold_echoes,omitempty"`

	// Expect lists the results this step must produce, in order.
	// Nil skips the check; an empty list requires no outcomes.
	Expect []string `yaml:"expect,omitempty"`
}

// Assertion validates the final trace or store state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Side, Actor, ID and State are used by state.
	Side  string `yaml:"side,omitempty"`
	Actor string `yaml:"actor,omitempty"`
	ID    string `yaml:"id,omitempty"`
	State bool   `yaml:"state,omitempty"`

	// Result, Pairing and Origin are used by trace_contains and trace_count.
	Result  string `yaml:"result,omitempty"`
	Pairing string `yaml:"pairing,omitempty"`
	Origin  string `yaml:"origin,omitempty"`

	// Results is the expected order (used by trace_order).
	Results []string `yaml:"results,omitempty"`

	// Count is used by trace_count, echoes and pending.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertState         = "state"
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEchoes        = "echoes"
	AssertPending       = "pending"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Pairings) == 0 {
		return fmt.Errorf("pairings list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, c := range s.Setup {
		if err := validateChange(c); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateChange(c Change) error {
	if _, err := ir.ParseSide(c.Side); err != nil {
		return err
	}
	if c.Actor == "" || c.ID == "" {
		return fmt.Errorf("actor and id are required")
	}
	return nil
}

func validateStep(s Step) error {
	actions := 0
	for _, set := range []bool{
		s.Notify != nil, s.Drift != nil, s.Resync != nil, s.ResyncAll != nil,
		s.Timer != "", s.Advance != "", s.Replay, s.Fail != nil,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one action is required, got %d", actions)
	}

	switch {
	case s.Notify != nil:
		if err := validateChange(*s.Notify); err != nil {
			return err
		}
	case s.Drift != nil:
		if err := validateChange(*s.Drift); err != nil {
			return err
		}
	case s.Resync != nil:
		if s.Resync.Pairing == "" || s.Resync.Game == "" || s.Resync.Discord == "" {
			return fmt.Errorf("resync requires pairing, game and discord")
		}
	case s.ResyncAll != nil:
		if (s.ResyncAll.Game == "") == (s.ResyncAll.Discord == "") {
			return fmt.Errorf("resync_all requires exactly one of game or discord")
		}
	case s.Advance != "":
		if _, err := time.ParseDuration(s.Advance); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	case s.Fail != nil:
		switch s.Fail.Op {
		case "get", "apply":
			if _, err := ir.ParseSide(s.Fail.Side); err != nil {
				return fmt.Errorf("fail: %w", err)
			}
		case "link":
		default:
			return fmt.Errorf("fail: op must be get, apply or link, got %q", s.Fail.Op)
		}
	}
	for _, r := range s.Expect {
		if !ir.Result(r).Valid() {
			return fmt.Errorf("expect: unknown result %q", r)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertState:
		return validateChange(Change{Side: a.Side, Actor: a.Actor, ID: a.ID})
	case AssertTraceContains, AssertTraceCount:
		if !ir.Result(a.Result).Valid() {
			return fmt.Errorf("%s: unknown result %q", a.Type, a.Result)
		}
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case AssertTraceOrder:
		if len(a.Results) == 0 {
			return fmt.Errorf("trace_order: results list is required")
		}
	case AssertEchoes, AssertPending:
		if a.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", a.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
