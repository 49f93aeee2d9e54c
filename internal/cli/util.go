package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drewjocham/notes-backfill/backfill"
	"github.com/drewjocham/notes-backfill/internal/config"
)

func getServices(ctx context.Context) (*services, error) {
	s, ok := ctx.Value(ctxServicesKey).(*services)
	if !ok || s == nil {
		return nil, fmt.Errorf("internal error: services not found in context")
	}
	return s, nil
}

func getConfig(ctx context.Context) (*config.Config, error) {
	s, err := getServices(ctx)
	if err != nil {
		return nil, err
	}
	return s.Config, nil
}

// target is the collection and array field a command works on.
type target struct {
	Collection string
	Field      string
	RulesFile  string
}

func (t target) String() string {
	return t.Collection + "." + t.Field
}

// resolveTarget applies command flag overrides on top of the configuration.
func resolveTarget(cfg *config.Config, collection, field, rulesFile string) target {
	t := target{Collection: cfg.Collection, Field: cfg.Field, RulesFile: cfg.RulesFile}
	if collection != "" {
		t.Collection = collection
	}
	if field != "" {
		t.Field = field
	}
	if rulesFile != "" {
		t.RulesFile = rulesFile
	}
	return t
}

func loadRules(path string) ([]backfill.Rule, error) {
	if path == "" {
		return backfill.DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rules, err := backfill.ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

// mongoStore returns the store for t, or an error when no client is connected.
func mongoStore(s *services, t target) (*backfill.MongoStore, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("mongo services unavailable")
	}
	return backfill.NewMongoStore(s.DB.Collection(t.Collection), t.Field), nil
}

// history returns the run history store, or nil when history is disabled.
func history(s *services) *backfill.History {
	if s.DB == nil || s.Config.HistoryCollection == "" {
		return nil
	}
	return backfill.NewHistory(s.DB.Collection(s.Config.HistoryCollection))
}

func promptConfirmation(cmd *cobra.Command, message string) bool {
	fmt.Fprint(cmd.OutOrStdout(), message)

	reader := bufio.NewReader(cmd.InOrStdin())
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		zap.S().Errorw("Failed to read confirmation", "error", err)
		return false
	}

	response := strings.ToLower(strings.TrimSpace(input))
	return response == "y" || response == "yes"
}
