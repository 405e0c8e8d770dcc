// Package main provides the stepwise-mcp binary, an MCP server over stdio.
package main

import (
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/config"
	smcp "github.com/ormasoftchile/stepwise/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/stepwise/pkg/kernel/engine"
	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
	"github.com/ormasoftchile/stepwise/pkg/todo"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "stepwise-mcp",
	Short:   "Serve the stepwise pipeline tools over MCP stdio",
	Version: version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configPath)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Config file (default: ./"+config.DefaultFile+" if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr.
	ecfg := engine.Config{
		ContinueOnFailure: cfg.Pipeline.ContinueOnFailure,
		Logger:            cfg.Logger(os.Stderr),
	}
	if cfg.Trace.Path != "" {
		tw, err := trace.NewFileWriter(cfg.Trace.Path)
		if err != nil {
			return err
		}
		defer tw.Close()
		ecfg.Trace = tw
	}

	reg, err := todo.NewRegistry(todo.NewStore())
	if err != nil {
		return err
	}
	s, err := smcp.NewServer(version, smcp.NewHandlers(engine.New(reg, ecfg), reg))
	if err != nil {
		return err
	}
	return server.ServeStdio(s)
}
