package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	stest "github.com/ormasoftchile/stepwise/pkg/kernel/testing"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

// --- test ---

var (
	testText     bool
	testFailFast bool
	testTimeout  string
)

var testCmd = &cobra.Command{
	Use:   "test <scenarios.yaml...>",
	Short: "Run pipeline scenarios and check their expectations",
	Long: `Run every scenario in each file against a fresh todo registry and
compare the result with the scenario's expect block.

Exit codes:
  0  all scenarios passed
  1  at least one scenario failed or errored
  2  a scenario file could not be loaded`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTest,
}

func runTest(cmd *cobra.Command, args []string) error {
	timeout := 30 * time.Second
	if testTimeout != "" {
		d, err := time.ParseDuration(testTimeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout %q: %w", testTimeout, err)
		}
		timeout = d
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runner := &stest.Runner{
		NewRegistry: todoRegistry,
		Engine:      a.engineConfig(),
		Timeout:     timeout,
		FailFast:    testFailFast,
	}

	allPassed := true
	loadFailed := false
	var outputs []*stest.TestOutput
	for _, path := range args {
		output, err := runner.RunFile(cmd.Context(), path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s: %v\n", path, err)
			loadFailed = true
			continue
		}
		outputs = append(outputs, output)
		if output.Failed() {
			allPassed = false
			if testFailFast {
				break
			}
		}
	}

	if testText {
		for _, o := range outputs {
			printTestOutput(cmd.OutOrStdout(), o)
		}
	} else {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return err
		}
	}

	if loadFailed {
		return &exitError{code: 2}
	}
	if !allPassed {
		return &exitError{code: 1}
	}
	return nil
}

func todoRegistry() (registry.Lookup, error) {
	return todo.NewRegistry(todo.NewStore())
}

func printTestOutput(w io.Writer, output *stest.TestOutput) {
	fmt.Fprintf(w, "\n  %s\n", output.File)
	for _, s := range output.Scenarios {
		switch s.Status {
		case "passed":
			fmt.Fprintf(w, "    ✓ %-30s %dms\n", s.Name, s.DurationMs)
		case "failed":
			fmt.Fprintf(w, "    ✗ %-30s %dms\n", s.Name, s.DurationMs)
			for _, a := range s.Assertions {
				if !a.Passed {
					fmt.Fprintf(w, "        %s: %s\n", a.Type, a.Message)
				}
			}
		case "error":
			fmt.Fprintf(w, "    ✗ %-30s ERROR: %s\n", s.Name, s.Error)
		}
	}
	fmt.Fprintf(w, "\n  %d scenarios, %d passed, %d failed\n",
		output.Summary.Total, output.Summary.Passed, output.Summary.Failed)
	if output.Summary.Errors > 0 {
		fmt.Fprintf(w, "  %d errors\n", output.Summary.Errors)
	}
}

func init() {
	testCmd.Flags().BoolVar(&testText, "text", false, "Print a human-readable summary instead of JSON")
	testCmd.Flags().BoolVar(&testFailFast, "fail-fast", false, "Stop after the first failing scenario")
	testCmd.Flags().StringVar(&testTimeout, "timeout", "30s", "Per-scenario timeout (e.g. 30s, 1m)")
}
