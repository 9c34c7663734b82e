// Package config loads pairing configuration files.
//
// Two formats are accepted and produce the same Config:
//
//	// linksync.cue
//	settings: expectation_ttl: "30s"
//	pairing: vip: {
//		game:        "vip"
//		discord:     "123456789012345678"
//		direction:   "bidirectional"
//		tie_breaker: "discord"
//		timer: {cycle_minutes: 5, enabled: true}
//	}
//
// and the equivalent YAML with a `pairings:` list whose entries carry a
// `name`. Loading reports every bad entry and keeps the good ones;
// semantic checks (name syntax, duplicates) belong to the registry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue/token"

	"github.com/roach88/linksync/internal/ir"
)

// Error codes for configuration loading.
const (
	ErrCodeNotFound     = "E201" // Path not found or unreadable
	ErrCodeFormat       = "E202" // Unsupported file extension
	ErrCodeParse        = "E203" // CUE or YAML syntax / build error
	ErrCodeMissing      = "E204" // Required field missing
	ErrCodeType         = "E205" // Field has the wrong type
	ErrCodeInvalidValue = "E206" // Direction, tie_breaker or timer value invalid
	ErrCodeUnknownField = "E207" // Field not part of the schema
	ErrCodeSettings     = "E208" // Settings block invalid
)

// Defaults applied when a settings field is absent.
const (
	DefaultDatabase = "linksync.db"
)

// CompileError is one problem in a configuration file, with source
// position when the format provides one.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Pos     token.Pos

	// File and Line locate YAML entries, which carry no token.Pos.
	File string
	Line int
}

func (e *CompileError) Error() string {
	switch {
	case e.Pos.IsValid():
		return fmt.Sprintf("%s:%d:%d: %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Code, e.Field, e.Message)
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s: %s: %s", e.File, e.Line, e.Code, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
}

// Settings are the runtime knobs of `linksync run`.
type Settings struct {
	ExpectationTTL   time.Duration `json:"expectation_ttl"`
	SweepInterval    time.Duration `json:"sweep_interval,omitempty"`
	Database         string        `json:"database"`
	MetricsAddr      string        `json:"metrics_addr,omitempty"`
	QueueSize        int           `json:"queue_size"`
	IncludeInherited bool          `json:"include_inherited"`
}

// Config is a loaded configuration file.
type Config struct {
	Source   string       `json:"source"`
	Settings Settings     `json:"settings"`
	Pairings []ir.Pairing `json:"pairings"`
}

func defaultSettings() Settings {
	return Settings{Database: DefaultDatabase}
}

// Load reads path, dispatching on its extension: .cue files and
// directories of CUE files, or .yaml/.yml files.
//
// A nil Config means the file could not be read at all. Otherwise Config
// holds every pairing that compiled, and errs lists the ones that did not.
func Load(path string) (*Config, []error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, []error{&CompileError{
			Code:    ErrCodeNotFound,
			Field:   "path",
			Message: fmt.Sprintf("cannot read configuration: %v", err),
		}}
	}
	if info.IsDir() {
		return LoadCUEDir(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "path", Message: err.Error()}}
		}
		return CompileCUE(path, data)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, []error{&CompileError{Code: ErrCodeNotFound, Field: "path", Message: err.Error()}}
		}
		return CompileYAML(path, data)
	default:
		return nil, []error{&CompileError{
			Code:    ErrCodeFormat,
			Field:   "path",
			Message: fmt.Sprintf("unsupported configuration format %q (want .cue, .yaml or .yml)", filepath.Ext(path)),
		}}
	}
}

// rawPairing is the format-independent shape of one pairing entry.
type rawPairing struct {
	game       string
	context    string
	discord    string
	direction  string
	tieBreaker string
	timer      *ir.TimerSpec
}

// build converts the raw strings into a pairing, reporting the first bad
// enumerated value through bad.
func (r rawPairing) build(name string, bad func(field, msg string) error) (ir.Pairing, error) {
	p := ir.Pairing{
		Name:      name,
		GameID:    ir.GameID{Group: r.game, Context: r.context},
		DiscordID: ir.DiscordID(r.discord),
		Timer:     r.timer,
	}
	if r.direction != "" {
		d, err := ir.ParseDirection(r.direction)
		if err != nil {
			return ir.Pairing{}, bad("direction", err.Error())
		}
		p.Direction = d
	}
	if r.tieBreaker != "" {
		s, err := ir.ParseSide(r.tieBreaker)
		if err != nil {
			return ir.Pairing{}, bad("tie_breaker", err.Error())
		}
		p.TieBreaker = s
	}
	return p, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s is negative", s)
	}
	return d, nil
}
