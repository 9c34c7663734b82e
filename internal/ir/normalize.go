package ir

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName prepares a game-side group or context name for comparison.
// The game store treats group names case-insensitively, so names are
// NFC-normalized, trimmed and lowercased before they reach the registry.
// Two spellings of the same group therefore produce the same PairKey.
func NormalizeName(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

// NormalizeGameID normalizes both parts of a game identifier.
// The context "global" is treated as no context.
func NormalizeGameID(g GameID) GameID {
	out := GameID{
		Group:   NormalizeName(g.Group),
		Context: NormalizeName(g.Context),
	}
	if out.Context == "global" {
		out.Context = ""
	}
	return out
}

// NormalizeDiscordID trims a role snowflake. Snowflakes are decimal
// strings and are otherwise compared verbatim.
func NormalizeDiscordID(id DiscordID) DiscordID {
	return DiscordID(strings.TrimSpace(string(id)))
}

// NormalizePairing returns a copy of p with identifiers normalized and
// defaults applied: an empty Direction becomes bidirectional and an
// empty TieBreaker becomes discord.
func NormalizePairing(p Pairing) Pairing {
	p = p.Clone()
	p.Name = strings.TrimSpace(p.Name)
	p.GameID = NormalizeGameID(p.GameID)
	p.DiscordID = NormalizeDiscordID(p.DiscordID)
	if p.Direction == "" {
		p.Direction = DirectionBidirectional
	}
	if p.TieBreaker == "" {
		p.TieBreaker = SideDiscord
	}
	return p
}
