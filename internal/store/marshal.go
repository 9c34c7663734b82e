package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/linksync/internal/ir"
)

// marshalPairing converts a pairing to compact JSON TEXT for the journal.
// HTML escaping is disabled so names round-trip byte for byte.
func marshalPairing(p ir.Pairing) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return "", fmt.Errorf("marshal pairing: %w", err)
	}
	// Encode appends a newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// unmarshalPairing parses a journaled pairing.
func unmarshalPairing(data string) (ir.Pairing, error) {
	var p ir.Pairing
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return ir.Pairing{}, fmt.Errorf("unmarshal pairing: %w", err)
	}
	return p, nil
}
