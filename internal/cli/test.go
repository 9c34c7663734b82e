package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/linksync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern)
	GoldenDir string // defaults to <scenarios-dir>/../golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "mismatch", "updated" or "absent"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run sync scenarios against in-memory stores",
		Long: `Run YAML sync scenarios with fake stores, a manual clock and
sequential flow tokens, checking step expectations, assertions and, when
present, the golden trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  linksync test ./testdata/scenarios
  linksync test ./testdata/scenarios --filter "echo*"
  linksync test ./testdata/scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden file directory (default: <scenarios-dir>/../golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := runScenario(file, goldenDir, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := formatter.Emit(result, func(w io.Writer) { printTestResult(w, result) }); err != nil {
		return err
	}
	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes one scenario file and checks its golden trace.
func runScenario(file, goldenDir string, update bool) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	res, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}
	sr := ScenarioResult{Name: scenario.Name, Pass: res.Pass, Errors: res.Errors}

	trace, err := harness.MarshalTrace(scenario.Name, res)
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to marshal trace: %v", err))
		return sr
	}
	goldenPath := filepath.Join(goldenDir, scenario.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to create golden directory: %v", err))
			return sr
		}
		if err := os.WriteFile(goldenPath, append(trace, '\n'), 0644); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to write golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
		// No golden file - assertions only
		sr.Golden = "absent"
	case err != nil:
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
	case !bytes.Equal(bytes.TrimSpace(golden), bytes.TrimSpace(trace)):
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Errors = append(sr.Errors, "trace does not match golden file (run with --update to regenerate)")
	default:
		sr.Golden = "match"
	}
	return sr
}

func printTestResult(w io.Writer, result TestResult) {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return
	}
	for _, sr := range result.Scenarios {
		mark := "✓"
		if !sr.Pass {
			mark = "✗"
		}
		suffix := ""
		if sr.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed == 0 {
		fmt.Fprintln(w, "✓ All scenarios passed")
	}
}
