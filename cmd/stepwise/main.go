// Package main provides the stepwise CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/config"
	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/registry"
	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitError carries a process exit code for an outcome already reported
// on stdout.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

var (
	flagConfig   string
	flagLogLevel string
	flagTrace    string
)

var rootCmd = &cobra.Command{
	Use:           "stepwise",
	Short:         "Run declarative command pipelines",
	Long:          "stepwise runs an ordered list of registered commands, threading each step's output into the next.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("stepwise %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagTrace, "trace", "", "Append a JSONL trace to this file (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(diagramCmd)
	rootCmd.AddCommand(versionCmd)
}

// app is the wiring shared by the verbs: configuration, logger, trace sink
// and the todo command registry.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	trace    *trace.Writer
	registry *registry.Registry
}

// newApp loads configuration and applies flag overrides.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if cmd.Flags().Changed("trace") {
		cfg.Trace.Path = flagTrace
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: cfg.Logger(cmd.ErrOrStderr())}
	if cfg.Trace.Path != "" {
		a.trace, err = trace.NewFileWriter(cfg.Trace.Path)
		if err != nil {
			return nil, fmt.Errorf("open trace: %w", err)
		}
	}
	a.registry, err = todo.NewRegistry(todo.NewStore())
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) engineConfig() engine.Config {
	return engine.Config{
		ContinueOnFailure: a.cfg.Pipeline.ContinueOnFailure,
		Logger:            a.logger,
		Trace:             a.trace,
	}
}

func (a *app) engine() *engine.Engine {
	return engine.New(a.registry, a.engineConfig())
}

func (a *app) Close() {
	if a.trace != nil {
		a.trace.Close()
	}
}

// readPipeline loads a request from a file, or from stdin when path is "-".
func readPipeline(path string, stdin io.Reader) (*schema.PipelineRequest, error) {
	if path == "-" {
		return schema.Load(stdin)
	}
	return schema.LoadFile(path)
}
