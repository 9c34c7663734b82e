package config

import (
	"fmt"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/linksync/internal/ir"
)

var (
	cueTopFields      = map[string]bool{"settings": true, "pairing": true}
	cuePairingFields  = map[string]bool{"game": true, "context": true, "discord": true, "direction": true, "tie_breaker": true, "timer": true}
	cueTimerFields    = map[string]bool{"cycle_minutes": true, "enabled": true}
	cueSettingsFields = map[string]bool{
		"expectation_ttl": true, "sweep_interval": true, "database": true,
		"metrics_addr": true, "queue_size": true, "include_inherited": true,
	}
)

// CompileCUE compiles one CUE source. filename is used for positions.
func CompileCUE(filename string, data []byte) (*Config, []error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileValue(filename, v)
}

// LoadCUEDir loads every CUE file of the package in dir, the way `cue
// eval` would, and compiles the unified value.
func LoadCUEDir(dir string) (*Config, []error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&CompileError{Code: ErrCodeParse, Field: "cue", Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&CompileError{
			Code:    ErrCodeParse,
			Field:   "cue",
			Message: fmt.Sprintf("loading CUE files: %v", inst.Err),
		}}
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileValue(dir, v)
}

func compileValue(source string, v cue.Value) (*Config, []error) {
	cfg := &Config{Source: source, Settings: defaultSettings()}
	var errs []error

	errs = append(errs, unknownFields(v, "", cueTopFields)...)

	if sv := v.LookupPath(cue.ParsePath("settings")); sv.Exists() {
		errs = append(errs, compileCUESettings(sv, &cfg.Settings)...)
	}

	pv := v.LookupPath(cue.ParsePath("pairing"))
	if !pv.Exists() {
		return cfg, errs
	}
	iter, err := pv.Fields()
	if err != nil {
		return cfg, append(errs, &CompileError{Code: ErrCodeType, Field: "pairing", Message: "must be a struct of named pairings", Pos: pv.Pos()})
	}
	for iter.Next() {
		p, err := compileCUEPairing(iter.Label(), iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cfg.Pairings = append(cfg.Pairings, p)
	}
	return cfg, errs
}

func compileCUEPairing(name string, v cue.Value) (ir.Pairing, error) {
	path := "pairing." + name
	if v.IncompleteKind() != cue.StructKind {
		return ir.Pairing{}, &CompileError{Code: ErrCodeType, Field: path, Message: "pairing must be a struct", Pos: v.Pos()}
	}
	if errs := unknownFields(v, path+".", cuePairingFields); len(errs) > 0 {
		return ir.Pairing{}, errs[0]
	}

	var raw rawPairing
	var err error
	if raw.game, err = cueString(v, path, "game", true); err != nil {
		return ir.Pairing{}, err
	}
	if raw.context, err = cueString(v, path, "context", false); err != nil {
		return ir.Pairing{}, err
	}
	if raw.discord, err = cueString(v, path, "discord", true); err != nil {
		return ir.Pairing{}, err
	}
	if raw.direction, err = cueString(v, path, "direction", false); err != nil {
		return ir.Pairing{}, err
	}
	if raw.tieBreaker, err = cueString(v, path, "tie_breaker", false); err != nil {
		return ir.Pairing{}, err
	}

	if tv := v.LookupPath(cue.ParsePath("timer")); tv.Exists() {
		if raw.timer, err = compileCUETimer(path+".timer", tv); err != nil {
			return ir.Pairing{}, err
		}
	}

	return raw.build(name, func(field, msg string) error {
		fv := v.LookupPath(cue.ParsePath(field))
		return &CompileError{Code: ErrCodeInvalidValue, Field: path + "." + field, Message: msg, Pos: fv.Pos()}
	})
}

func compileCUETimer(path string, v cue.Value) (*ir.TimerSpec, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Code: ErrCodeType, Field: path, Message: "timer must be a struct", Pos: v.Pos()}
	}
	if errs := unknownFields(v, path+".", cueTimerFields); len(errs) > 0 {
		return nil, errs[0]
	}

	t := &ir.TimerSpec{Enabled: true}
	if cv := v.LookupPath(cue.ParsePath("cycle_minutes")); cv.Exists() {
		n, err := cv.Uint64()
		if err != nil {
			return nil, &CompileError{Code: ErrCodeType, Field: path + ".cycle_minutes", Message: "must be a non-negative integer", Pos: cv.Pos()}
		}
		t.CycleMinutes = uint(n)
	}
	if ev := v.LookupPath(cue.ParsePath("enabled")); ev.Exists() {
		b, err := ev.Bool()
		if err != nil {
			return nil, &CompileError{Code: ErrCodeType, Field: path + ".enabled", Message: "must be a bool", Pos: ev.Pos()}
		}
		t.Enabled = b
	}
	return t, nil
}

func compileCUESettings(v cue.Value, s *Settings) []error {
	if v.IncompleteKind() != cue.StructKind {
		return []error{&CompileError{Code: ErrCodeSettings, Field: "settings", Message: "settings must be a struct", Pos: v.Pos()}}
	}
	errs := unknownFields(v, "settings.", cueSettingsFields)

	bad := func(field, msg string, pos cue.Value) {
		errs = append(errs, &CompileError{Code: ErrCodeSettings, Field: "settings." + field, Message: msg, Pos: pos.Pos()})
	}
	duration := func(field string, dst *time.Duration) {
		fv := v.LookupPath(cue.ParsePath(field))
		if !fv.Exists() {
			return
		}
		str, err := fv.String()
		if err != nil {
			bad(field, "must be a duration string such as \"30s\"", fv)
			return
		}
		d, err := parseDuration(str)
		if err != nil {
			bad(field, err.Error(), fv)
			return
		}
		*dst = d
	}
	duration("expectation_ttl", &s.ExpectationTTL)
	duration("sweep_interval", &s.SweepInterval)

	for _, f := range []struct {
		name string
		dst  *string
	}{{"database", &s.Database}, {"metrics_addr", &s.MetricsAddr}} {
		field, dst := f.name, f.dst
		fv := v.LookupPath(cue.ParsePath(field))
		if !fv.Exists() {
			continue
		}
		str, err := fv.String()
		if err != nil {
			bad(field, "must be a string", fv)
			continue
		}
		*dst = str
	}
	if fv := v.LookupPath(cue.ParsePath("queue_size")); fv.Exists() {
		n, err := fv.Int64()
		if err != nil || n < 0 {
			bad("queue_size", "must be a non-negative integer", fv)
		} else {
			s.QueueSize = int(n)
		}
	}
	if fv := v.LookupPath(cue.ParsePath("include_inherited")); fv.Exists() {
		b, err := fv.Bool()
		if err != nil {
			bad("include_inherited", "must be a bool", fv)
		} else {
			s.IncludeInherited = b
		}
	}
	return errs
}

// cueString reads a string field. Integer values are accepted and
// rendered in decimal, since role snowflakes are often written unquoted.
func cueString(v cue.Value, path, field string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return "", &CompileError{Code: ErrCodeMissing, Field: path + "." + field, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	if fv.IncompleteKind() == cue.IntKind {
		n, err := fv.Int64()
		if err == nil {
			return strconv.FormatInt(n, 10), nil
		}
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Code: ErrCodeType, Field: path + "." + field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func unknownFields(v cue.Value, prefix string, allowed map[string]bool) []error {
	iter, err := v.Fields()
	if err != nil {
		return nil
	}
	var errs []error
	for iter.Next() {
		if !allowed[iter.Label()] {
			errs = append(errs, &CompileError{
				Code:    ErrCodeUnknownField,
				Field:   prefix + iter.Label(),
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			})
		}
	}
	return errs
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &CompileError{Code: ErrCodeParse, Field: "cue", Message: err.Error()}
	}

	// Return first error with position info
	first := errs[0]
	ce := &CompileError{Code: ErrCodeParse, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
