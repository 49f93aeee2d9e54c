package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/notes-backfill/backfill"
)

type runFlags struct {
	collection    string
	field         string
	rulesFile     string
	output        string
	dryRun        bool
	skipUnchanged bool
	yes           bool
}

type runParams struct {
	target        target
	rules         []backfill.Rule
	dryRun        bool
	skipUnchanged bool
	output        string
}

func (f *runFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.collection, "collection", "", "Collection to backfill (overrides BACKFILL_COLLECTION)")
	fl.StringVar(&f.field, "field", "", "Array field holding the notes (overrides BACKFILL_FIELD)")
	fl.StringVar(&f.rulesFile, "rules", "", "JSON rules file (overrides BACKFILL_RULES_FILE)")
	fl.StringVarP(&f.output, "output", "o", "table", "Output format (table, json)")
}

func (f *runFlags) params(cmd *cobra.Command) (runParams, error) {
	cfg, err := getConfig(cmd.Context())
	if err != nil {
		return runParams{}, err
	}
	t := resolveTarget(cfg, f.collection, f.field, f.rulesFile)
	rules, err := loadRules(t.RulesFile)
	if err != nil {
		return runParams{}, err
	}
	skip := cfg.SkipUnchanged
	if cmd.Flags().Changed("skip-unchanged") {
		skip = f.skipUnchanged
	}
	return runParams{
		target:        t,
		rules:         rules,
		dryRun:        f.dryRun,
		skipUnchanged: skip,
		output:        f.output,
	}, nil
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fill missing note fields on every document",
		Long: `Scan every document of the collection, fill absent note fields with their
defaults and write the notes back. Every document is written unless
--skip-unchanged is given.`,
		Example: `  nbf run --yes
  nbf run --collection accounts --skip-unchanged
  nbf run --rules rules.json --dry-run -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := f.params(cmd)
			if err != nil {
				return err
			}
			s, err := getServices(cmd.Context())
			if err != nil {
				return err
			}
			store, err := mongoStore(s, p.target)
			if err != nil {
				return err
			}

			if !p.dryRun && !f.yes && !confirmRun(cmd, p) {
				fmt.Fprintln(cmd.OutOrStdout(), "Operation cancelled.")
				return nil
			}

			var rec backfill.Recorder
			if h := history(s); h != nil {
				rec = h
			}
			return executeRun(cmd.Context(), cmd.OutOrStdout(), store, rec, p)
		},
	}

	f.bind(cmd)
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Compute the changes without writing")
	cmd.Flags().BoolVar(&f.skipUnchanged, "skip-unchanged", false, "Skip the write for documents that need no change")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Skip confirmation prompt")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would change without writing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.dryRun = true
			p, err := f.params(cmd)
			if err != nil {
				return err
			}
			s, err := getServices(cmd.Context())
			if err != nil {
				return err
			}
			store, err := mongoStore(s, p.target)
			if err != nil {
				return err
			}
			return executeRun(cmd.Context(), cmd.OutOrStdout(), store, nil, p)
		},
	}

	f.bind(cmd)
	return cmd
}

func confirmRun(cmd *cobra.Command, p runParams) bool {
	names := make([]string, len(p.rules))
	for i, r := range p.rules {
		names[i] = r.String()
	}
	return promptConfirmation(cmd, fmt.Sprintf(
		"⚠️  About to backfill %s with %s. Continue? [y/N]: ",
		p.target, strings.Join(names, ", ")))
}

// executeRun runs the backfill, renders the report and records it when rec is
// set and the run was not a dry run.
func executeRun(ctx context.Context, w io.Writer, store backfill.Store, rec backfill.Recorder, p runParams) error {
	switch strings.ToLower(p.output) {
	case "table", "", "json":
	default:
		return fmt.Errorf("unsupported output format: %s", p.output)
	}

	runner := backfill.NewRunner(store,
		backfill.WithRules(p.rules),
		backfill.WithDryRun(p.dryRun),
		backfill.WithSkipUnchanged(p.skipUnchanged),
		backfill.WithLogger(zap.L().With(zap.String("target", p.target.String()))),
	)
	report, runErr := runner.Run(ctx)

	if rec != nil && !p.dryRun {
		if err := rec.Record(ctx, backfill.NewRunRecord(p.target.Collection, p.target.Field, p.rules, report, runErr)); err != nil {
			zap.S().Warnw("Failed to record run", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("backfill %s failed: %w", p.target, runErr)
	}
	return renderReport(w, p, report)
}
