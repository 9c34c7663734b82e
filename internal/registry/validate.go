package registry

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/roach88/linksync/internal/ir"
)

// Validation error codes (E100-E119)
const (
	ErrGroupEmpty         = "E101" // game group is required
	ErrGroupInvalid       = "E102" // game group contains forbidden characters
	ErrContextInvalid     = "E103" // server context contains forbidden characters
	ErrDiscordEmpty       = "E104" // discord role is required
	ErrDiscordInvalid     = "E105" // discord role contains whitespace or is too long
	ErrInvalidDirection   = "E106" // direction is not one of the known values
	ErrInvalidTieBreaker  = "E107" // tie_breaker is not game or discord
	ErrTimerCycleRequired = "E108" // enabled timer needs cycle_minutes > 0
	ErrDuplicatePairing   = "E109" // same group and role as an earlier pairing
	ErrTimerCycleTooLong  = "E110" // cycle_minutes overflows a duration
)

// maxDiscordIDLen bounds role identifiers. Snowflakes are at most 20 digits.
const maxDiscordIDLen = 64

// Game-side names after normalization: lower-case letters, digits and a
// few separators. Matches what permission plugins accept as group names.
var namePattern = regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{N}_\-.+]+$`)

// ValidationError describes one problem with one pairing field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found with one pairing.
type ValidationErrors []ValidationError

// Error joins the individual messages.
func (es ValidationErrors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Validate checks an already-normalized pairing.
// Returns nil or a ValidationErrors listing all problems (does not fail-fast).
func Validate(p ir.Pairing) error {
	errs := ValidatePairing(p)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// ValidatePairing returns every problem with p.
func ValidatePairing(p ir.Pairing) ValidationErrors {
	var errs ValidationErrors

	// E101/E102: game group
	switch {
	case p.GameID.Group == "":
		errs = append(errs, ValidationError{
			Field:   "game",
			Message: "game group is required",
			Code:    ErrGroupEmpty,
		})
	case !namePattern.MatchString(p.GameID.Group):
		errs = append(errs, ValidationError{
			Field:   "game",
			Message: fmt.Sprintf("invalid group name %q", p.GameID.Group),
			Code:    ErrGroupInvalid,
		})
	}

	// E103: context is optional
	if p.GameID.Context != "" && !namePattern.MatchString(p.GameID.Context) {
		errs = append(errs, ValidationError{
			Field:   "context",
			Message: fmt.Sprintf("invalid context name %q", p.GameID.Context),
			Code:    ErrContextInvalid,
		})
	}

	// E104/E105: discord role
	switch id := string(p.DiscordID); {
	case id == "":
		errs = append(errs, ValidationError{
			Field:   "discord",
			Message: "discord role is required",
			Code:    ErrDiscordEmpty,
		})
	case len(id) > maxDiscordIDLen || strings.IndexFunc(id, unicode.IsSpace) >= 0:
		errs = append(errs, ValidationError{
			Field:   "discord",
			Message: fmt.Sprintf("invalid role identifier %q", id),
			Code:    ErrDiscordInvalid,
		})
	}

	// E106
	if !ir.ValidDirections[p.Direction] {
		errs = append(errs, ValidationError{
			Field:   "direction",
			Message: fmt.Sprintf("invalid direction %q", p.Direction),
			Code:    ErrInvalidDirection,
		})
	}

	// E107
	if !p.TieBreaker.Valid() {
		errs = append(errs, ValidationError{
			Field:   "tie_breaker",
			Message: fmt.Sprintf("invalid tie_breaker %q, must be \"game\" or \"discord\"", p.TieBreaker),
			Code:    ErrInvalidTieBreaker,
		})
	}

	// E108
	if p.Timer != nil && p.Timer.Enabled && p.Timer.CycleMinutes == 0 {
		errs = append(errs, ValidationError{
			Field:   "timer.cycle_minutes",
			Message: "enabled timer requires cycle_minutes > 0",
			Code:    ErrTimerCycleRequired,
		})
	}

	// E110
	if p.Timer != nil && p.Timer.CycleMinutes > ir.MaxCycleMinutes {
		errs = append(errs, ValidationError{
			Field:   "timer.cycle_minutes",
			Message: fmt.Sprintf("cycle_minutes %d exceeds the maximum of %d", p.Timer.CycleMinutes, ir.MaxCycleMinutes),
			Code:    ErrTimerCycleTooLong,
		})
	}

	return errs
}
