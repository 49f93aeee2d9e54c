package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/drewjocham/notes-backfill/backfill"
	"github.com/drewjocham/notes-backfill/internal/jsonutil"
)

func newHistoryCmd() *cobra.Command {
	var (
		output string
		search string
		limit  int64
	)

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recorded backfill runs",
		Aliases: []string{"runs"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := getServices(cmd.Context())
			if err != nil {
				return err
			}
			h := history(s)
			if h == nil {
				return fmt.Errorf("run history is disabled: set BACKFILL_HISTORY_COLLECTION")
			}

			// Filtering happens client side, so only cap the query when not searching.
			queryLimit := limit
			if search != "" {
				queryLimit = 0
			}
			records, err := h.List(cmd.Context(), queryLimit)
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}

			records = filterHistory(records, search)
			if limit > 0 && int64(len(records)) > limit {
				records = records[:limit]
			}

			out := cmd.OutOrStdout()
			switch strings.ToLower(output) {
			case "json":
				return jsonutil.WriteIndented(out, records)
			case "table", "":
				renderHistoryTable(out, records)
				return nil
			default:
				return fmt.Errorf("unsupported output format: %s", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().StringVar(&search, "search", "", "Filter by collection, field or error substring")
	cmd.Flags().Int64Var(&limit, "limit", 20, "Limit number of results (0 for all)")
	return cmd
}

func filterHistory(records []backfill.RunRecord, search string) []backfill.RunRecord {
	if search == "" {
		return records
	}
	needle := strings.ToLower(search)
	filtered := make([]backfill.RunRecord, 0, len(records))
	for _, rec := range records {
		if strings.Contains(strings.ToLower(rec.Collection), needle) ||
			strings.Contains(strings.ToLower(rec.Field), needle) ||
			strings.Contains(strings.ToLower(rec.Error), needle) {
			filtered = append(filtered, rec)
		}
	}
	return filtered
}

func renderHistoryTable(w io.Writer, records []backfill.RunRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No recorded runs found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tTARGET\tSCANNED\tUPDATED\tNOTES PATCHED\tSTATUS")
	fmt.Fprintln(tw, "-------\t------\t-------\t-------\t-------------\t------")
	for _, rec := range records {
		status := "ok"
		if rec.Error != "" {
			status = "failed: " + rec.Error
		}
		fmt.Fprintf(tw, "%s\t%s.%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(rec.StartedAt),
			rec.Collection, rec.Field,
			humanize.Comma(rec.Scanned),
			humanize.Comma(rec.Updated),
			humanize.Comma(rec.NotesPatched),
			status,
		)
	}
	tw.Flush()
}
