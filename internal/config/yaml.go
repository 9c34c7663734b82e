package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/linksync/internal/ir"
)

// yamlFile is decoded strictly at the top level; entries stay as nodes so
// one bad entry does not hide the rest.
type yamlFile struct {
	Settings *yaml.Node  `yaml:"settings"`
	Pairings []yaml.Node `yaml:"pairings"`
}

type yamlPairing struct {
	Name       string     `yaml:"name"`
	Game       string     `yaml:"game"`
	Context    string     `yaml:"context"`
	Discord    string     `yaml:"discord"`
	Direction  string     `yaml:"direction"`
	TieBreaker string     `yaml:"tie_breaker"`
	Timer      *yamlTimer `yaml:"timer"`
}

type yamlTimer struct {
	CycleMinutes uint  `yaml:"cycle_minutes"`
	Enabled      *bool `yaml:"enabled"`
}

type yamlSettings struct {
	ExpectationTTL   string `yaml:"expectation_ttl"`
	SweepInterval    string `yaml:"sweep_interval"`
	Database         string `yaml:"database"`
	MetricsAddr      string `yaml:"metrics_addr"`
	QueueSize        *int   `yaml:"queue_size"`
	IncludeInherited bool   `yaml:"include_inherited"`
}

// CompileYAML compiles one YAML source. filename is used in errors.
func CompileYAML(filename string, data []byte) (*Config, []error) {
	var file yamlFile
	if err := decodeStrict(data, &file); err != nil {
		return nil, []error{yamlError(filename, 0, "yaml", err)}
	}

	cfg := &Config{Source: filename, Settings: defaultSettings()}
	var errs []error

	if file.Settings != nil {
		errs = append(errs, compileYAMLSettings(filename, file.Settings, &cfg.Settings)...)
	}

	for i := range file.Pairings {
		node := &file.Pairings[i]
		p, err := compileYAMLPairing(filename, i, node)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.Pairings = append(cfg.Pairings, p)
	}
	return cfg, errs
}

func compileYAMLPairing(filename string, index int, node *yaml.Node) (ir.Pairing, error) {
	var entry yamlPairing
	if err := decodeNode(node, &entry); err != nil {
		return ir.Pairing{}, yamlError(filename, node.Line, fmt.Sprintf("pairings[%d]", index), err)
	}

	path := fmt.Sprintf("pairings[%d]", index)
	if entry.Name != "" {
		path = "pairings." + entry.Name
	}
	missing := func(field string) error {
		return &CompileError{Code: ErrCodeMissing, Field: path + "." + field, Message: field + " is required", File: filename, Line: node.Line}
	}
	if entry.Game == "" {
		return ir.Pairing{}, missing("game")
	}
	if entry.Discord == "" {
		return ir.Pairing{}, missing("discord")
	}

	raw := rawPairing{
		game:       entry.Game,
		context:    entry.Context,
		discord:    entry.Discord,
		direction:  entry.Direction,
		tieBreaker: entry.TieBreaker,
	}
	if entry.Timer != nil {
		raw.timer = &ir.TimerSpec{CycleMinutes: entry.Timer.CycleMinutes, Enabled: true}
		if entry.Timer.Enabled != nil {
			raw.timer.Enabled = *entry.Timer.Enabled
		}
	}
	return raw.build(entry.Name, func(field, msg string) error {
		return &CompileError{Code: ErrCodeInvalidValue, Field: path + "." + field, Message: msg, File: filename, Line: node.Line}
	})
}

func compileYAMLSettings(filename string, node *yaml.Node, s *Settings) []error {
	var raw yamlSettings
	if err := decodeNode(node, &raw); err != nil {
		return []error{yamlError(filename, node.Line, "settings", err)}
	}

	var errs []error
	bad := func(field, msg string) {
		errs = append(errs, &CompileError{Code: ErrCodeSettings, Field: "settings." + field, Message: msg, File: filename, Line: node.Line})
	}
	if raw.ExpectationTTL != "" {
		if d, err := parseDuration(raw.ExpectationTTL); err != nil {
			bad("expectation_ttl", err.Error())
		} else {
			s.ExpectationTTL = d
		}
	}
	if raw.SweepInterval != "" {
		if d, err := parseDuration(raw.SweepInterval); err != nil {
			bad("sweep_interval", err.Error())
		} else {
			s.SweepInterval = d
		}
	}
	if raw.Database != "" {
		s.Database = raw.Database
	}
	s.MetricsAddr = raw.MetricsAddr
	if raw.QueueSize != nil {
		if *raw.QueueSize < 0 {
			bad("queue_size", "must be a non-negative integer")
		} else {
			s.QueueSize = *raw.QueueSize
		}
	}
	s.IncludeInherited = raw.IncludeInherited
	return errs
}

// decodeStrict decodes data rejecting unknown fields (catches typos like
// "pairing:" vs "pairings:").
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		// An empty document decodes to nothing.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// decodeNode re-encodes node and decodes it strictly. yaml.Node.Decode
// has no KnownFields switch.
func decodeNode(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return decodeStrict(data, out)
}

func yamlError(filename string, line int, field string, err error) error {
	code := ErrCodeParse
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		code = ErrCodeType
		for _, msg := range typeErr.Errors {
			if strings.Contains(msg, "not found in type") {
				code = ErrCodeUnknownField
				break
			}
		}
	}
	return &CompileError{Code: code, Field: field, Message: err.Error(), File: filename, Line: line}
}
