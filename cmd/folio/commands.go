package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/folio/internal/action"
	"github.com/kalambet/folio/internal/config"
	"github.com/kalambet/folio/internal/portfolio"
	"github.com/kalambet/folio/internal/storage"
	"github.com/kalambet/folio/internal/workspace"
)

// withClient adapts a RunE body that needs the API client.
func withClient(run func(cmd *cobra.Command, c *apiClient, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		return run(cmd, c, args)
	}
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Create and inspect portfolios",
}

var portfolioCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a portfolio, optionally from a JSON or YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, args []string) error {
		req := struct {
			Name     string              `json:"name"`
			Document *portfolio.Document `json:"document,omitempty"`
		}{Name: args[0]}
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			req.Document = new(portfolio.Document)
			if err := readStructured(file, req.Document); err != nil {
				return err
			}
		}

		var p storage.Portfolio
		if err := c.call(cmd.Context(), http.MethodPost, "/portfolios", req, &p); err != nil {
			return err
		}
		notify(toneOK, "Created portfolio %s (%s)", p.ID, p.Name)
		return nil
	}),
}

var portfolioShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the latest revision of a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, args []string) error {
		var p storage.Portfolio
		if err := c.call(cmd.Context(), http.MethodGet, portfolioPath(args[0]), nil, &p); err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("output")
		return writeStructured(cmd.OutOrStdout(), dest, p.Document)
	}),
}

var portfolioListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently updated portfolios",
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var page struct {
			Portfolios []storage.Portfolio `json:"portfolios"`
		}
		if err := c.call(cmd.Context(), http.MethodGet, fmt.Sprintf("/portfolios?limit=%d", limit), nil, &page); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if len(page.Portfolios) == 0 {
			fmt.Fprintln(w, "No portfolios yet.")
			return nil
		}
		for _, p := range page.Portfolios {
			fmt.Fprintf(w, "%s  %-24s  rev %-4d  %s\n",
				paint(sgrCyan, p.ID), p.Name, p.Revision, p.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	}),
}

func init() {
	portfolioCreateCmd.Flags().String("file", "", "initial document (.json, .yaml or .yml)")
	portfolioShowCmd.Flags().StringP("output", "o", "-", "write the document to a .json/.yaml file instead of stdout")
	portfolioListCmd.Flags().Int("limit", 20, "maximum number of portfolios")
	portfolioCmd.AddCommand(portfolioCreateCmd, portfolioShowCmd, portfolioListCmd)
}

type editRequest struct {
	Instruction string `json:"instruction"`
	Role        string `json:"role,omitempty"`
	Revision    int    `json:"revision,omitempty"`
	Async       bool   `json:"async,omitempty"`
}

var editCmd = &cobra.Command{
	Use:   "edit <id> <instruction>",
	Short: "Edit a portfolio with a natural-language instruction",
	Long: `Edit a portfolio with a natural-language instruction.

Examples:
  folio edit 3f2a "move skills above about"
  folio edit 3f2a "use a dark theme with a teal accent" --role designer
  folio edit 3f2a "rewrite the about text to be shorter" --async`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		req := editRequest{Instruction: strings.TrimSpace(strings.Join(args[1:], " "))}
		req.Role, _ = flags.GetString("role")
		req.Revision, _ = flags.GetInt("revision")
		req.Async, _ = flags.GetBool("async")
		preview, _ := flags.GetBool("preview")
		asJSON, _ := flags.GetBool("json")
		if req.Instruction == "" {
			return errors.New("instruction is required")
		}

		c, err := newAPIClient()
		if err != nil {
			return err
		}
		notify(toneStep, "Generating edit plan...")
		w := cmd.OutOrStdout()

		switch {
		case preview:
			req.Async = false
			var pv workspace.Preview
			if err := c.call(cmd.Context(), http.MethodPost, portfolioPath(args[0], "preview"), req, &pv); err != nil {
				return err
			}
			if asJSON {
				return printJSON(w, pv)
			}
			printPlanResult(w, pv.Result.Plan, pv.Result.Success, pv.Result.Errors)
			printChanges(w, pv.Changes)
			notify(toneWarn, "Preview only, nothing was saved")

		case req.Async:
			var queued struct {
				Job storage.Job `json:"job"`
			}
			if err := c.call(cmd.Context(), http.MethodPost, portfolioPath(args[0], "edit"), req, &queued); err != nil {
				return err
			}
			notify(toneOK, "Queued edit job %s", queued.Job.ID)

		default:
			var out workspace.Outcome
			if err := c.call(cmd.Context(), http.MethodPost, portfolioPath(args[0], "edit"), req, &out); err != nil {
				return err
			}
			if asJSON {
				return printJSON(w, out)
			}
			printOutcome(w, out)
		}
		return nil
	},
}

func init() {
	editCmd.Flags().String("role", "", "portfolio owner's profession, used as a hint")
	editCmd.Flags().Int("revision", 0, "fail if the portfolio is no longer at this revision")
	editCmd.Flags().Bool("async", false, "queue the edit and return immediately")
	editCmd.Flags().Bool("preview", false, "show the result without saving it")
	editCmd.Flags().Bool("json", false, "print the raw JSON response")
}

func printPlanResult(w io.Writer, plan action.Plan, success bool, errs []string) {
	fmt.Fprintf(w, "%s %s\n", paint(sgrBold, "Plan:"), plan.Summary)
	fmt.Fprintf(w, "%s %s, %d action(s)\n", paint(sgrBold, "Confidence:"), plan.Confidence, len(plan.Actions))
	if success {
		return
	}
	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", paint(sgrRed, "✗ "+e))
	}
}

func printOutcome(w io.Writer, out workspace.Outcome) {
	res := out.Result
	printPlanResult(w, res.Plan, res.Success, res.Errors)
	printChanges(w, out.Changes)
	for _, warn := range res.Warnings {
		notify(toneWarn, "%s", warn)
	}
	rev := out.Portfolio.Revision
	switch {
	case !out.Persisted:
		notify(toneWarn, "Nothing changed, revision %d kept", rev)
	case res.Success:
		notify(toneOK, "Saved revision %d", rev)
	default:
		notify(toneWarn, "Saved revision %d with %d rejected action(s)", rev, len(res.Errors))
	}
}

var applyCmd = &cobra.Command{
	Use:   "apply <id> <plan-file>",
	Short: "Apply a hand-written plan (.json or .yaml) to a portfolio",
	Args:  cobra.ExactArgs(2),
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, args []string) error {
		var req struct {
			action.Plan
			Revision int `json:"revision,omitempty"`
		}
		if err := readStructured(args[1], &req.Plan); err != nil {
			return err
		}
		req.Revision, _ = cmd.Flags().GetInt("revision")
		path := portfolioPath(args[0], "actions")
		if atomic, _ := cmd.Flags().GetBool("atomic"); atomic {
			path += "?atomic=true"
		}

		var out workspace.Outcome
		err := c.call(cmd.Context(), http.MethodPost, path, req, &out)
		var ae *apiError
		if errors.As(err, &ae) && ae.Status == http.StatusUnprocessableEntity {
			// A rejected atomic plan still reports what went wrong.
			if jsonErr := json.Unmarshal(ae.Body, &out); jsonErr != nil {
				return err
			}
			printOutcome(cmd.OutOrStdout(), out)
			return errors.New("plan rejected, no changes were saved")
		}
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	}),
}

func init() {
	applyCmd.Flags().Bool("atomic", false, "save nothing if any action fails")
	applyCmd.Flags().Int("revision", 0, "fail if the portfolio is no longer at this revision")
}

var undoCmd = &cobra.Command{
	Use:   "undo <id>",
	Short: "Revert the most recent change to a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, args []string) error {
		var p storage.Portfolio
		if err := c.call(cmd.Context(), http.MethodPost, portfolioPath(args[0], "undo"), nil, &p); err != nil {
			return err
		}
		notify(toneOK, "Restored portfolio %s, now at revision %d", p.ID, p.Revision)
		return nil
	}),
}

var revisionsCmd = &cobra.Command{
	Use:   "revisions <id>",
	Short: "Show the revision history of a portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(cmd *cobra.Command, c *apiClient, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		var page struct {
			Revisions []storage.Revision `json:"revisions"`
		}
		path := portfolioPath(args[0], "revisions") + fmt.Sprintf("?limit=%d", limit)
		if err := c.call(cmd.Context(), http.MethodGet, path, nil, &page); err != nil {
			return err
		}

		for _, r := range page.Revisions {
			line := fmt.Sprintf("%4d  %-6s  %s", r.Revision, r.Source, r.CreatedAt.Local().Format(time.DateTime))
			if r.EditID != "" {
				line += "  edit " + r.EditID
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}),
}

func init() {
	revisionsCmd.Flags().Int("limit", 20, "maximum number of revisions")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", paint(sgrBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a value to the config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			return err
		}
		notify(toneOK, "Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configSetCmd.Long = "Write a value to the config file.\n\nKeys: " + strings.Join(config.ValidKeys(), ", ")
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
