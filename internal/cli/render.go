package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/drewjocham/notes-backfill/backfill"
	"github.com/drewjocham/notes-backfill/internal/jsonutil"
)

type reportOutput struct {
	Target string          `json:"target"`
	Rules  []string        `json:"rules"`
	Report backfill.Report `json:"report"`
}

func renderReport(w io.Writer, p runParams, r backfill.Report) error {
	if strings.ToLower(p.output) == "json" {
		names := make([]string, len(p.rules))
		for i, rule := range p.rules {
			names[i] = rule.String()
		}
		return jsonutil.WriteIndented(w, reportOutput{Target: p.target.String(), Rules: names, Report: r})
	}

	title := "BACKFILL"
	if r.DryRun {
		title = "BACKFILL PLAN (dry run)"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "--- %s: %s ---\n", title, p.target)
	fmt.Fprintln(tw, "METRIC\tVALUE")
	fmt.Fprintf(tw, "Documents scanned\t%s\n", humanize.Comma(r.Scanned))
	fmt.Fprintf(tw, "Documents updated\t%s\n", humanize.Comma(r.Updated))
	fmt.Fprintf(tw, "Documents unchanged\t%s\n", humanize.Comma(r.Unchanged))
	fmt.Fprintf(tw, "Writes skipped\t%s\n", humanize.Comma(r.Skipped))
	if r.Vanished > 0 {
		fmt.Fprintf(tw, "Documents vanished\t%s\n", humanize.Comma(r.Vanished))
	}
	fmt.Fprintf(tw, "Notes patched\t%s\n", humanize.Comma(r.NotesPatched))
	fmt.Fprintf(tw, "Fields filled\t%s\n", humanize.Comma(r.FieldsFilled))
	fmt.Fprintf(tw, "Duration\t%s\n", r.Duration())
	return tw.Flush()
}

func renderRules(w io.Writer, t target, rules []backfill.Rule, output string) error {
	switch strings.ToLower(output) {
	case "json":
		return jsonutil.WriteIndented(w, struct {
			Target string          `json:"target"`
			Rules  []backfill.Rule `json:"rules"`
		}{t.String(), rules})
	case "table", "":
	default:
		return fmt.Errorf("unsupported output format: %s", output)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "Rules for %s\n", t)
	fmt.Fprintln(tw, "#\tFIELD\tDEFAULT")
	fmt.Fprintln(tw, "-\t-----\t-------")
	for i, r := range rules {
		_, def, _ := strings.Cut(r.String(), "=")
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, r.Field, def)
	}
	return tw.Flush()
}
