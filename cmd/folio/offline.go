package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/diff"
	"github.com/kalambet/folio/internal/engine"
	"github.com/kalambet/folio/internal/executor"
	"github.com/kalambet/folio/internal/planner"
	"github.com/kalambet/folio/internal/portfolio"
)

var planCmd = &cobra.Command{
	Use:   "plan <document-file> <instruction>",
	Short: "Generate an edit plan for a local document without a server",
	Long: `Generate an edit plan for a local JSON or YAML document using the
configured model provider. Nothing is stored; the plan is printed or written
to --out so it can be reviewed and later applied with "folio run" or
"folio apply".`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roleHint, _ := cmd.Flags().GetString("role")
		out, _ := cmd.Flags().GetString("out")

		var doc portfolio.Document
		if err := readStructured(args[0], &doc); err != nil {
			return err
		}
		instruction := strings.Join(args[1:], " ")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		backend, err := engine.Detect(cmd.Context(), engineConfig(cfg))
		if err != nil {
			return err
		}
		if err := engine.EnsureReady(cmd.Context(), backend, os.Stderr); err != nil {
			return err
		}

		gen := planner.New(backend.Completer,
			planner.WithTimeout(cfg.Generator.Timeout),
			planner.WithMaxBatchDepth(cfg.Executor.MaxBatchDepth),
		)
		notify(toneStep, "Asking %s (%s)...", backend.Provider, backend.Model)
		plan, err := gen.Generate(cmd.Context(), instruction, doc, planner.Context{Role: roleHint})
		if err != nil {
			return err
		}

		if err := writeStructured(cmd.OutOrStdout(), out, plan); err != nil {
			return err
		}
		if out != "-" {
			notify(toneOK, "Wrote plan with %d action(s) to %s", len(plan.Actions), out)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <document-file> <plan-file>",
	Short: "Apply a plan to a local document without a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		atomic, _ := cmd.Flags().GetBool("atomic")
		depth, _ := cmd.Flags().GetInt("max-batch-depth")

		var doc portfolio.Document
		if err := readStructured(args[0], &doc); err != nil {
			return err
		}
		var plan action.Plan
		if err := readStructured(args[1], &plan); err != nil {
			return err
		}

		updated, res := executor.New(executor.WithMaxBatchDepth(depth)).Apply(doc, plan)

		printPlanResult(os.Stderr, res.Plan, res.Success, res.Errors)
		printChanges(os.Stderr, diff.Document(doc, updated))
		for _, w := range res.Warnings {
			notify(toneWarn, "%s", w)
		}

		if atomic && !res.Success {
			return fmt.Errorf("plan rejected, document not written: %w", res.Err())
		}
		return writeStructured(cmd.OutOrStdout(), out, updated)
	},
}

func init() {
	planCmd.Flags().String("role", "", "portfolio owner's profession, used as a hint")
	planCmd.Flags().StringP("out", "o", "-", "write the plan to a .json/.yaml file instead of stdout")

	runCmd.Flags().StringP("out", "o", "-", "write the updated document to a .json/.yaml file instead of stdout")
	runCmd.Flags().Bool("atomic", false, "write nothing if any action fails")
	runCmd.Flags().Int("max-batch-depth", action.DefaultMaxBatchDepth, "maximum nesting of batch_update actions")
}
