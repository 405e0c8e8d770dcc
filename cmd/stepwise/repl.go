package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/diagram"
	"github.com/ormasoftchile/stepwise/pkg/repl"
)

// --- repl ---

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Build and run a pipeline interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return repl.New(a.engine(), a.registry, cmd.OutOrStdout()).Run(cmd.Context())
	},
}

// --- diagram ---

var (
	diagramFormat string
	diagramOut    string
)

var diagramCmd = &cobra.Command{
	Use:   "diagram <pipeline.yaml|->",
	Short: "Render a pipeline's step flow as Mermaid or ASCII",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := readPipeline(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		out, err := diagram.Generate(req, args[0], diagram.Format(diagramFormat))
		if err != nil {
			return err
		}
		if diagramOut != "" {
			return os.WriteFile(diagramOut, []byte(out), 0o644)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	diagramCmd.Flags().StringVar(&diagramFormat, "format", "ascii", "Diagram format: mermaid or ascii")
	diagramCmd.Flags().StringVarP(&diagramOut, "output", "o", "", "Write to file instead of stdout")
}
