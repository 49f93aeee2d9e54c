package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/notes-backfill/internal/jsonutil"
	"github.com/drewjocham/notes-backfill/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var (
		collection string
		field      string
		rulesFile  string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI assistant integration",
		Long: `Start the Model Context Protocol (MCP) server exposing the backfill_rules,
backfill_plan and backfill_run tools.
IMPORTANT: This command uses stdin/stdout for communication.
Logs are written to stderr or --log-file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := getServices(cmd.Context())
			if err != nil {
				return err
			}
			t := resolveTarget(s.Config, collection, field, rulesFile)
			rules, err := loadRules(t.RulesFile)
			if err != nil {
				return err
			}
			store, err := mongoStore(s, t)
			if err != nil {
				return err
			}

			opts := mcp.Options{
				Collection:    t.Collection,
				Field:         t.Field,
				Rules:         rules,
				SkipUnchanged: s.Config.SkipUnchanged,
				Logger:        zap.L(),
				Version:       appVersion,
			}
			if h := history(s); h != nil {
				opts.Recorder = h
			}

			server, err := mcp.NewServer(store, opts)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			zap.S().Infow("Starting MCP server", "pid", os.Getpid(), "target", t.String())
			if err := server.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				if isClosingError(err) {
					zap.S().Infow("MCP server session ended", "reason", "client disconnected")
					return nil
				}
				return fmt.Errorf("mcp server failure: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "Collection (overrides BACKFILL_COLLECTION)")
	cmd.Flags().StringVar(&field, "field", "", "Array field holding the notes (overrides BACKFILL_FIELD)")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "JSON rules file (overrides BACKFILL_RULES_FILE)")
	cmd.AddCommand(newMCPConfigCmd())
	return cmd
}

func newMCPConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "config",
		Short:       "Generate MCP configuration JSON for AI assistants",
		Annotations: map[string]string{annotationOffline: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("could not determine executable path: %w", err)
			}
			cfg, err := getConfig(cmd.Context())
			if err != nil {
				return err
			}
			return writeMCPConfig(cmd.OutOrStdout(), exePath, cfg.Masked().MongoURL, cfg.Database, cfg.Collection)
		},
	}
}

func writeMCPConfig(w io.Writer, exePath, uri, database, collection string) error {
	config := map[string]any{
		"mcpServers": map[string]any{
			"notes-backfill": map[string]any{
				"command": exePath,
				"args":    []string{"mcp"},
				"env": map[string]string{
					"MONGO_URL":           uri,
					"MONGO_DATABASE":      database,
					"BACKFILL_COLLECTION": collection,
				},
			},
		},
	}
	return jsonutil.WriteIndented(w, config)
}

func isClosingError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		strings.Contains(err.Error(), "EOF")
}
