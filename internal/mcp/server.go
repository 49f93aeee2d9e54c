package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/drewjocham/notes-backfill/backfill"
)

const serverName = "notes-backfill"

// Options configures the tools exposed by Server.
type Options struct {
	Collection    string
	Field         string
	Rules         []backfill.Rule
	SkipUnchanged bool
	Recorder      backfill.Recorder
	Logger        *zap.Logger
	Version       string
}

// Server exposes the backfill runner as MCP tools.
type Server struct {
	// runs are serialised; a backfill is a single sequential pass.
	mu        sync.Mutex
	mcpServer *mcp.Server
	store     backfill.Store
	opts      Options
	logger    *zap.Logger
}

func NewServer(store backfill.Store, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if len(opts.Rules) == 0 {
		opts.Rules = backfill.DefaultRules()
	}
	if opts.Field == "" {
		opts.Field = backfill.DefaultField
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: opts.Version}, nil),
		store:     store,
		opts:      opts,
		logger:    logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "backfill_rules",
		Description: "List the fields that are filled on every note and their default values.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.handleRules)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "backfill_plan",
		Description: "Dry run: report how many documents and notes the backfill would change, without writing.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.handlePlan)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "backfill_run",
		Description: "Fill missing note fields with their defaults on every document of the collection.",
	}, s.handleRun)
}

func (s *Server) handleRules(
	_ context.Context, _ *mcp.CallToolRequest, _ emptyArgs,
) (*mcp.CallToolResult, any, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "### Backfill rules for `%s.%s`\n\n", s.opts.Collection, s.opts.Field)
	b.WriteString("| # | Field | Default |\n| :--- | :--- | :--- |\n")
	for i, r := range s.opts.Rules {
		_, def, _ := strings.Cut(r.String(), "=")
		fmt.Fprintf(&b, "| %d | `%s` | `%s` |\n", i+1, r.Field, def)
	}
	return textResult(b.String()), nil, nil
}

func (s *Server) handlePlan(
	ctx context.Context, _ *mcp.CallToolRequest, _ emptyArgs,
) (*mcp.CallToolResult, any, error) {
	report, err := s.run(ctx, true, s.opts.SkipUnchanged)
	if err != nil {
		return errorResult(fmt.Sprintf("Plan failed: %v", err)), nil, nil
	}
	return textResult(formatReport("Backfill plan", report)), nil, nil
}

func (s *Server) handleRun(
	ctx context.Context, _ *mcp.CallToolRequest, args runArgs,
) (*mcp.CallToolResult, any, error) {
	skip := s.opts.SkipUnchanged
	if args.SkipUnchanged != nil {
		skip = *args.SkipUnchanged
	}

	report, err := s.run(ctx, false, skip)
	s.record(ctx, report, err)
	if err != nil {
		return errorResult(fmt.Sprintf("Backfill failed after %s documents: %v",
			humanize.Comma(report.Scanned), err)), nil, nil
	}
	return textResult(formatReport("✅ Backfill completed", report)), nil, nil
}

func (s *Server) run(ctx context.Context, dryRun, skipUnchanged bool) (backfill.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runner := backfill.NewRunner(s.store,
		backfill.WithRules(s.opts.Rules),
		backfill.WithDryRun(dryRun),
		backfill.WithSkipUnchanged(skipUnchanged),
		backfill.WithLogger(s.logger),
	)
	return runner.Run(ctx)
}

func (s *Server) record(ctx context.Context, report backfill.Report, runErr error) {
	if s.opts.Recorder == nil {
		return
	}
	rec := backfill.NewRunRecord(s.opts.Collection, s.opts.Field, s.opts.Rules, report, runErr)
	if err := s.opts.Recorder.Record(ctx, rec); err != nil {
		s.logger.Warn("Failed to record run", zap.Error(err))
	}
}

// Serve runs the MCP session over r and w until the client disconnects or ctx
// is done.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return s.mcpServer.Run(ctx, &mcp.IOTransport{
		Reader: io.NopCloser(r),
		Writer: nopWriteCloser{Writer: w},
	})
}

// Connect attaches the server to an already established transport.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcpServer.Connect(ctx, t, nil)
}

func formatReport(title string, r backfill.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n| Metric | Value |\n| :--- | :--- |\n", title)
	rows := []struct {
		name  string
		value int64
	}{
		{"Documents scanned", r.Scanned},
		{"Documents updated", r.Updated},
		{"Documents unchanged", r.Unchanged},
		{"Writes skipped", r.Skipped},
		{"Documents vanished", r.Vanished},
		{"Notes patched", r.NotesPatched},
		{"Fields filled", r.FieldsFilled},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %s |\n", row.name, humanize.Comma(row.value))
	}
	fmt.Fprintf(&b, "| Duration | %s |\n", r.Duration())
	return b.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	res := textResult(text)
	res.IsError = true
	return res
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
