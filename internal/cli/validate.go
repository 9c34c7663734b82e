package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/config"
	"github.com/roach88/linksync/internal/registry"
)

// ValidationIssue is one problem found in a configuration.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Source   string            `json:"source"`
	Pairings int               `json:"pairings"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a pairing configuration",
		Long: `Check a CUE or YAML pairing configuration without touching any store.

Reports every entry that fails to compile, every pairing the engine
would reject (invalid names, duplicates), and bad settings. Exits 1 when
anything is wrong.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, errs := config.Load(path)
	if cfg == nil {
		code := configCode(errs[0])
		exit := ExitFailure
		if code == config.ErrCodeNotFound || code == config.ErrCodeFormat {
			exit = ExitCommandError
		}
		return formatter.Fail(exit, code, "cannot load configuration", errors.Join(errs...))
	}
	formatter.VerboseLog("Loaded %d pairing(s) from %s", len(cfg.Pairings), cfg.Source)

	accepted, rejected := registry.New().Check(cfg.Pairings)

	var issues []ValidationIssue
	for _, err := range errs {
		issues = append(issues, compileIssue(err))
	}
	for _, err := range rejected {
		issues = append(issues, rejectIssues(err)...)
	}

	result := ValidationResult{
		Valid:    len(issues) == 0,
		Source:   cfg.Source,
		Pairings: len(accepted),
		Errors:   issues,
	}
	if !result.Valid {
		msg := fmt.Sprintf("%d problem(s) in %s", len(issues), cfg.Source)
		if opts.Format == "json" {
			if err := formatter.Error(ErrCodeGeneric, msg, result); err != nil {
				return err
			}
		} else {
			_ = formatter.Error(ErrCodeGeneric, msg, nil)
			printIssues(cmd.OutOrStdout(), issues)
		}
		return NewExitError(ExitFailure, "configuration invalid")
	}

	return formatter.Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s: %d pairing(s) valid\n", result.Source, result.Pairings)
	})
}

func compileIssue(err error) ValidationIssue {
	var ce *config.CompileError
	if !errors.As(err, &ce) {
		return ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
	}
	line := ce.Line
	if ce.Pos.IsValid() {
		line = ce.Pos.Line()
	}
	return ValidationIssue{Code: ce.Code, Field: ce.Field, Message: ce.Message, Line: line}
}

// rejectIssues flattens one registry rejection. Field problems carry
// their own codes; a rejection without them is a duplicate.
func rejectIssues(err error) []ValidationIssue {
	var ves registry.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]ValidationIssue, len(ves))
		for i, ve := range ves {
			out[i] = ValidationIssue{Code: ve.Code, Field: ve.Field, Message: ve.Message}
		}
		return out
	}
	return []ValidationIssue{{Code: registry.ErrDuplicatePairing, Message: err.Error()}}
}

func printIssues(w io.Writer, issues []ValidationIssue) {
	for _, is := range issues {
		loc := ""
		if is.Line > 0 {
			loc = fmt.Sprintf("line %d: ", is.Line)
		}
		if is.Field != "" {
			fmt.Fprintf(w, "  %s%s [%s] %s\n", loc, is.Field, is.Code, is.Message)
		} else {
			fmt.Fprintf(w, "  %s[%s] %s\n", loc, is.Code, is.Message)
		}
	}
}
