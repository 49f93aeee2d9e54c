package cli

import (
	"github.com/spf13/cobra"
)

func newRulesCmd() *cobra.Command {
	var (
		collection string
		field      string
		rulesFile  string
		output     string
	)

	cmd := &cobra.Command{
		Use:         "rules",
		Short:       "Show the fields filled on every note and their defaults",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfig(cmd.Context())
			if err != nil {
				return err
			}
			t := resolveTarget(cfg, collection, field, rulesFile)
			rules, err := loadRules(t.RulesFile)
			if err != nil {
				return err
			}
			return renderRules(cmd.OutOrStdout(), t, rules, output)
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Collection (overrides BACKFILL_COLLECTION)")
	cmd.Flags().StringVar(&field, "field", "", "Array field holding the notes (overrides BACKFILL_FIELD)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "JSON rules file (overrides BACKFILL_RULES_FILE)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	return cmd
}
