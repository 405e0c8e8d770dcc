package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/stepwise/pkg/kernel/schema"
	"github.com/ormasoftchile/stepwise/pkg/report"
)

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print JSON Schemas",
	Args:  cobra.NoArgs,
	RunE:  runSchemaRequest,
}

var schemaRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Print the PipelineRequest JSON Schema",
	Args:  cobra.NoArgs,
	RunE:  runSchemaRequest,
}

var schemaCommandCmd = &cobra.Command{
	Use:   "command <name>",
	Short: "Print a command's input JSON Schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaCommand,
}

func runSchemaRequest(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateRequestJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	return writeIndented(cmd.OutOrStdout(), data)
}

func runSchemaCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	data, ok := a.registry.InputSchema(args[0])
	if !ok {
		return fmt.Errorf("unknown command %q", args[0])
	}
	return writeIndented(cmd.OutOrStdout(), data)
}

func writeIndented(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format schema: %w", err)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// --- commands ---

var commandsRaw bool

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List registered commands with their input schemas",
	Args:  cobra.NoArgs,
	RunE:  runCommands,
}

func runCommands(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	md := report.CatalogueMarkdown(catalogue(a))
	if commandsRaw {
		_, err := fmt.Fprint(cmd.OutOrStdout(), md)
		return err
	}
	out, err := report.RenderMarkdown(md, 100)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func catalogue(a *app) []report.Entry {
	cmds := a.registry.Commands()
	entries := make([]report.Entry, 0, len(cmds))
	for _, c := range cmds {
		raw, _ := a.registry.InputSchema(c.Name)
		entries = append(entries, report.Entry{Name: c.Name, Description: c.Description, Schema: raw})
	}
	return entries
}

func init() {
	schemaCmd.AddCommand(schemaRequestCmd)
	schemaCmd.AddCommand(schemaCommandCmd)
	commandsCmd.Flags().BoolVar(&commandsRaw, "raw", false, "Print plain markdown instead of rendering it")
}
