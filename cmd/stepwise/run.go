package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/ecosystem/recorder"
	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/report"
)

// --- run ---

var (
	runFormat            string
	runContinueOnFailure bool
	runRecord            string
	runSecrets           []string
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yaml|pipeline.json|->",
	Short: "Execute a pipeline and print its result",
	Long: `Execute a pipeline request and print the PipelineResult.

Exit codes:
  0  every executed step succeeded
  1  the request was malformed or a step failed`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := readPipeline(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("continue-on-failure") {
		v := runContinueOnFailure
		req.Options.ContinueOnFailure = &v
	}

	var (
		commands registry.Lookup = a.registry
		rec      *recorder.Recorder
	)
	if runRecord != "" {
		rec = recorder.New(a.registry)
		rec.SetSecrets(append(append([]string(nil), a.cfg.Record.Secrets...), runSecrets...))
		commands = rec
	}
	res, err := engine.New(commands, a.engineConfig()).Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	if rec != nil {
		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		if err := recorder.WriteScenario(runRecord, rec.Scenario(name, req, res)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "recorded scenario to %s\n", runRecord)
	}
	if err := writeResult(cmd.OutOrStdout(), res, runFormat); err != nil {
		return err
	}
	if res.Failed() {
		return &exitError{code: 1}
	}
	return nil
}

func writeResult(w io.Writer, res *schema.PipelineResult, format string) error {
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "text":
		return report.WriteResult(w, res)
	default:
		return fmt.Errorf("unknown --format %q: must be json or text", format)
	}
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline.yaml|->",
	Short: "Check a pipeline against the request schema and the registry",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := readPipeline(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}
	unknown := unknownCommands(req, a)
	for _, u := range unknown {
		fmt.Fprintf(cmd.ErrOrStderr(), "  ✗ %s\n", u)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("validation failed: %d unknown command(s)", len(unknown))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s is valid (%d steps)\n", args[0], len(req.Steps))
	return nil
}

// unknownCommands lists steps naming a command the registry lacks.
func unknownCommands(req *schema.PipelineRequest, a *app) []string {
	var out []string
	for i, s := range req.Steps {
		if _, ok := a.registry.Lookup(s.Command); !ok {
			out = append(out, fmt.Sprintf("steps/%d: unknown command %q", i, s.Command))
		}
	}
	return out
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "json", "Output format: json or text")
	runCmd.Flags().StringVar(&runRecord, "record", "", "Save the run as a regression scenario to this file")
	runCmd.Flags().StringArrayVar(&runSecrets, "secret", nil, "Env var whose value is redacted from the recording, repeatable (adds to record.secrets)")
	runCmd.Flags().BoolVar(&runContinueOnFailure, "continue-on-failure", false, "Keep running after a failed step (overrides the request options)")
}
