package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/uirun/pkg/mcpserver"
	"github.com/ormasoftchile/uirun/pkg/schema"
)

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [plan.yaml...]",
	Short: "Validate step plan files (schema and domain rules)",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	failed := 0
	for _, path := range args {
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".md" || ext == ".markdown" {
			fmt.Fprintf(errOut, "%s: only .yaml, .yml and .json plans are supported\n", path)
			failed++
			continue
		}
		plan, err := schema.LoadPlanFile(path)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", path, err)
			failed++
			continue
		}
		var errs, warnings []*schema.ValidationError
		for _, e := range schema.ValidatePlan(plan) {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errs = append(errs, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(errOut, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(errOut, "    at: %s\n", w.Path)
			}
		}
		if len(errs) > 0 {
			fmt.Fprintf(errOut, "%s: validation failed: %d error(s)\n\n", path, len(errs))
			for i, e := range errs {
				fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(errOut, "     at: %s\n", e.Path)
				}
			}
			failed++
			continue
		}
		fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", path, len(plan.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d plan(s) invalid", failed, len(args))
	}
	return nil
}

// --- scan ---

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan [url]",
	Short: "List the visible buttons, links and inputs of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{skipScan: true})
		if err != nil {
			return err
		}
		defer a.close()
		inv, err := a.runner.Scan(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		if scanJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		}
		fmt.Fprintln(cmd.OutOrStdout(), inv.Summary())
		return nil
	},
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Export JSON Schema to stdout",
}

var schemaPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Export the step plan JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GeneratePlanJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var schemaRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Export the run request JSON Schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateRequestJSONSchema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// --- runs ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect finished runs in the run store",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		if err := requireRunStore(a); err != nil {
			return err
		}
		list, err := a.runs.List(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tSTEPS\tENDED\tPROMPT")
		for _, r := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.Status, r.StepCount, r.EndedAt.Local().Format(time.DateTime), truncate(r.Prompt, 48))
		}
		return tw.Flush()
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Print a stored run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		if err := requireRunStore(a); err != nil {
			return err
		}
		run, err := a.runs.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

// --- mcp ---

var mcpGenerateCmd string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve uirun tools over MCP on stdin/stdout",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if mcpGenerateCmd == "" {
			mcpGenerateCmd = os.Getenv("UIRUN_GENERATE_CMD")
		}
		opts := appOptions{metrics: true}
		if mcpGenerateCmd != "" {
			gen, err := buildGenerator("", mcpGenerateCmd)
			if err != nil {
				return err
			}
			opts.generator = gen
		}
		a, err := newApp(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer a.close()
		return mcpserver.ServeStdio(version, a.runner, a.log)
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the inventory as JSON")

	schemaCmd.AddCommand(schemaPlanCmd)
	schemaCmd.AddCommand(schemaRequestCmd)

	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)

	mcpCmd.Flags().StringVar(&mcpGenerateCmd, "generate-cmd", "", "Command that reads a prompt on stdin and prints a JSON step array")
}
