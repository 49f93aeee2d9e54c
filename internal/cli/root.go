package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/drewjocham/notes-backfill/internal/config"
	"github.com/drewjocham/notes-backfill/internal/jsonutil"
	"github.com/drewjocham/notes-backfill/internal/logging"
)

type contextKey string

const (
	ctxServicesKey contextKey = "services"
	ctxCancelKey   contextKey = "rootCancel"

	annotationOffline = "offline"

	maxPingRetries = 5
	pingRetryDelay = 1 * time.Second
	pingTimeout    = 2 * time.Second
)

var (
	configFile string
	debugMode  bool
	logFile    string
	showConfig bool

	appVersion, commit, date = "dev", "none", "unknown"
)

var ErrShowConfigDisplayed = errors.New("configuration displayed")

type services struct {
	Config      *config.Config
	MongoClient *mongo.Client
	DB          *mongo.Database
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nbf",
		Short: "Backfill default fields into MongoDB note sub-documents",
		Long: `nbf scans every document of a collection and fills missing fields of the
embedded notes with their defaults: created becomes the epoch, favorite becomes
false. Existing values are never overwritten, so a run can safely be repeated.`,
		Version:           fmt.Sprintf("%s (commit: %s, build date: %s)", appVersion, commit, date),
		PersistentPreRunE: setupDependencies,
		PersistentPostRun: teardown,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	pFlags := cmd.PersistentFlags()
	pFlags.StringVarP(&configFile, "config", "c", "", "Path to env file (default .env, .env.local)")
	pFlags.BoolVar(&debugMode, "debug", false, "Enable debug logging")
	pFlags.StringVar(&logFile, "log-file", "", "Path to write logs to a file")
	pFlags.BoolVar(&showConfig, "show-config", false, "Print the effective configuration (with secrets masked) and exit")

	cmd.AddCommand(
		newRunCmd(), newPlanCmd(), newRulesCmd(), newHistoryCmd(), newMCPCmd(),
		newVersionCmd(),
	)
	return cmd
}

func setupDependencies(cmd *cobra.Command, _ []string) error {
	if _, err := logging.New(debugMode, logFile); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	cfg, err := loadConfigFromFlags(configFile)
	if err != nil {
		return err
	}
	if showConfig {
		if err := renderConfig(cmd.OutOrStdout(), cfg); err != nil {
			return err
		}
		return ErrShowConfigDisplayed
	}

	svc := &services{Config: cfg}
	if isOffline(cmd) {
		cmd.SetContext(context.WithValue(cmd.Context(), ctxServicesKey, svc))
		return nil
	}

	client, cancel, err := connect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	svc.MongoClient = client
	svc.DB = client.Database(cfg.Database)

	ctx := context.WithValue(cmd.Context(), ctxServicesKey, svc)
	ctx = context.WithValue(ctx, ctxCancelKey, cancel)
	cmd.SetContext(ctx)
	return nil
}

func isOffline(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationOffline] == "true" {
		return true
	}
	offlineNames := map[string]bool{"help": true, "version": true, "completion": true}
	return offlineNames[cmd.Name()]
}

// connect opens the client. The returned cancel bounds the session context and
// is released in teardown.
func connect(ctx context.Context, cfg *config.Config) (*mongo.Client, context.CancelFunc, error) {
	opts := options.Client().
		ApplyURI(cfg.GetConnectionString()).
		SetMaxPoolSize(uint64(cfg.MaxPoolSize)).
		SetMinPoolSize(uint64(cfg.MinPoolSize)).
		SetConnectTimeout(time.Duration(cfg.Timeout) * time.Second).
		SetServerSelectionTimeout(time.Duration(cfg.Timeout) * time.Second)

	if cfg.SSLEnabled {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.SSLInsecure}) // #nosec G402 -- opt-in for dev clusters
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	sessCtx, cancel := context.WithCancel(ctx)
	if err := retryPing(sessCtx, client, 1); err != nil {
		_ = client.Disconnect(context.Background())
		cancel()
		return nil, nil, err
	}
	return client, cancel, nil
}

func retryPing(ctx context.Context, client *mongo.Client, attempt int) error {
	pCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := client.Ping(pCtx, nil)
	cancel()

	if err == nil {
		return nil
	}

	if attempt >= maxPingRetries {
		return fmt.Errorf("mongodb unreachable after %d attempts: %w", maxPingRetries, err)
	}

	zap.S().Warnf("MongoDB attempt %d/%d failed: %v", attempt, maxPingRetries, err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pingRetryDelay):
		return retryPing(ctx, client, attempt+1)
	}
}

func teardown(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		return
	}
	if cancel, ok := ctx.Value(ctxCancelKey).(context.CancelFunc); ok {
		cancel()
	}
	if svc, ok := ctx.Value(ctxServicesKey).(*services); ok && svc.MongoClient != nil {
		if err := svc.MongoClient.Disconnect(context.Background()); err != nil {
			zap.S().Warnf("failed to disconnect mongo client: %v", err)
		}
	}
	_ = zap.L().Sync()
}

// Execute runs the root command.
func Execute() error {
	err := newRootCmd().Execute()
	if errors.Is(err, ErrShowConfigDisplayed) {
		return nil
	}
	return err
}

// SetVersion overrides the build metadata shown by the version command.
func SetVersion(version, buildCommit, buildDate string) {
	appVersion, commit, date = version, buildCommit, buildDate
}

func loadConfigFromFlags(path string) (*config.Config, error) {
	paths := []string{".env", ".env.local"}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		paths = []string{path}
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func renderConfig(w io.Writer, cfg *config.Config) error {
	return jsonutil.WriteIndented(w, cfg.Masked())
}
