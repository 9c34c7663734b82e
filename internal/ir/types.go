package ir

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side names one of the two membership stores.
type Side string

const (
	// SideGame is the chat/game-side permission-group store.
	SideGame Side = "game"
	// SideDiscord is the social-platform role store.
	SideDiscord Side = "discord"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideGame {
		return SideDiscord
	}
	return SideGame
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideGame || s == SideDiscord
}

// ParseSide parses a side name case-insensitively.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToLower(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", fmt.Errorf("invalid side %q, must be \"game\" or \"discord\"", s)
	}
	return side, nil
}

// Direction restricts which side may push changes to the other.
type Direction string

const (
	DirectionBidirectional Direction = "bidirectional"
	DirectionGameToDiscord Direction = "game_to_discord"
	DirectionDiscordToGame Direction = "discord_to_game"
)

// ValidDirections defines allowed direction values.
var ValidDirections = map[Direction]bool{
	DirectionBidirectional: true,
	DirectionGameToDiscord: true,
	DirectionDiscordToGame: true,
}

// ParseDirection parses a direction name case-insensitively.
// Hyphens are accepted in place of underscores ("game-to-discord").
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !ValidDirections[d] {
		return "", fmt.Errorf("invalid direction %q, must be \"bidirectional\", \"game_to_discord\" or \"discord_to_game\"", s)
	}
	return d, nil
}

// AllowsWriteTo reports whether the direction permits the engine to
// mutate the given target side.
func (d Direction) AllowsWriteTo(target Side) bool {
	switch target {
	case SideGame:
		return d != DirectionGameToDiscord
	case SideDiscord:
		return d != DirectionDiscordToGame
	default:
		return false
	}
}

// GameID identifies a permission group, optionally scoped to a server
// context. An empty Context means the group applies globally.
type GameID struct {
	Group   string `json:"group"`
	Context string `json:"context,omitempty"`
}

// String renders the identifier as "group" or "group@context".
func (g GameID) String() string {
	if g.Context == "" {
		return g.Group
	}
	return g.Group + "@" + g.Context
}

// ParseGameID parses the "group" or "group@context" form produced by String.
func ParseGameID(s string) GameID {
	group, ctx, _ := strings.Cut(s, "@")
	return NormalizeGameID(GameID{Group: group, Context: ctx})
}

// DiscordID is a role snowflake.
type DiscordID string

// GameActor identifies a player in the game-side store (usually a UUID).
type GameActor string

// DiscordActor identifies a user on the social platform (a snowflake).
type DiscordActor string

// PairKey is the identity of a pairing. Two pairings are the same iff
// their keys are equal.
type PairKey struct {
	Game    GameID    `json:"game"`
	Discord DiscordID `json:"discord"`
}

// String renders the key as "group[@context]/role".
func (k PairKey) String() string {
	return k.Game.String() + "/" + string(k.Discord)
}

// MaxCycleMinutes is the longest timer cycle a time.Duration can hold.
const MaxCycleMinutes = uint(math.MaxInt64 / int64(time.Minute))

// TimerSpec configures periodic full resync for a pairing.
type TimerSpec struct {
	CycleMinutes uint `json:"cycle_minutes"`
	Enabled      bool `json:"enabled"`
}

// Active reports whether the timer should be scheduled.
func (t *TimerSpec) Active() bool {
	return t != nil && t.Enabled && t.CycleMinutes > 0
}

// Pairing is one configured link between a game group and a role.
type Pairing struct {
	Name       string     `json:"name,omitempty"`
	GameID     GameID     `json:"game_id"`
	DiscordID  DiscordID  `json:"discord_id"`
	Direction  Direction  `json:"direction"`
	TieBreaker Side       `json:"tie_breaker"`
	Timer      *TimerSpec `json:"timer,omitempty"`
}

// Key returns the pairing identity.
func (p Pairing) Key() PairKey {
	return PairKey{Game: p.GameID, Discord: p.DiscordID}
}

// Clone returns a copy of p that shares no memory with it.
func (p Pairing) Clone() Pairing {
	if p.Timer != nil {
		t := *p.Timer
		p.Timer = &t
	}
	return p
}

// Label returns the configured name, falling back to the key.
func (p Pairing) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key().String()
}

// State is the observable membership state of one side: true, false or
// unattainable (the query failed or the actor could not be resolved).
type State int8

const (
	StateUnattainable State = iota
	StateFalse
	StateTrue
)

// StateOf converts a definite boolean to a State.
func StateOf(b bool) State {
	if b {
		return StateTrue
	}
	return StateFalse
}

// Bool returns the boolean value and whether the state is definite.
func (s State) Bool() (value bool, ok bool) {
	switch s {
	case StateTrue:
		return true, true
	case StateFalse:
		return false, true
	default:
		return false, false
	}
}

func (s State) String() string {
	switch s {
	case StateTrue:
		return "true"
	case StateFalse:
		return "false"
	default:
		return "unattainable"
	}
}

// Origin records what started a reconciliation attempt.
type Origin string

const (
	OriginResync  Origin = "resync"  // administrative one-shot resync
	OriginTimer   Origin = "timer"   // periodic resync
	OriginGame    Origin = "game"    // game-side change notification
	OriginDiscord Origin = "discord" // discord-side change notification
)

// Outcome is the record of one reconciliation attempt against one pairing.
type Outcome struct {
	Seq          int64        `json:"seq"`
	FlowToken    string       `json:"flow_token"`
	Origin       Origin       `json:"origin"`
	Pairing      Pairing      `json:"pairing"`
	GameActor    GameActor    `json:"game_actor,omitempty"`
	DiscordActor DiscordActor `json:"discord_actor,omitempty"`
	Result       Result       `json:"result"`
	Err          error        `json:"-"`
}

// ErrorText returns the failure message, or "" for a clean outcome.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
