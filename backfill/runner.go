package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"
)

const (
	logDocumentPatched  = "Document patched"
	logDocumentVanished = "Document vanished before update"
)

// Runner backfills rule defaults into the notes of every document of a Store.
type Runner struct {
	store         Store
	rules         []Rule
	skipUnchanged bool
	dryRun        bool
	logger        *zap.Logger
	now           func() time.Time
}

type Option func(*Runner)

// WithRules replaces the default rules. Rules are applied in order.
func WithRules(rules []Rule) Option {
	return func(r *Runner) {
		r.rules = rules
	}
}

// WithSkipUnchanged skips the write for documents whose notes needed no patch.
// By default every scanned document with a notes field is written back.
func WithSkipUnchanged(skip bool) Option {
	return func(r *Runner) {
		r.skipUnchanged = skip
	}
}

// WithDryRun computes the report without writing anything.
func WithDryRun(dry bool) Option {
	return func(r *Runner) {
		r.dryRun = dry
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRunner(store Store, opts ...Option) *Runner {
	r := &Runner{
		store:  store,
		rules:  DefaultRules(),
		logger: zap.L(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns a copy of the rules the runner applies.
func (r *Runner) Rules() []Rule {
	return append([]Rule(nil), r.rules...)
}

// Run visits every document once, sequentially. It stops at the first read or
// write failure and returns the report accumulated so far with the error.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	report := Report{DryRun: r.dryRun, StartedAt: r.now()}
	if len(r.rules) == 0 {
		return report, ErrNoRules
	}

	log := r.logger.With(zap.Bool("dry_run", r.dryRun), zap.Bool("skip_unchanged", r.skipUnchanged))
	log.Info("Starting backfill", zap.Stringers("rules", r.rules))

	err := r.scan(ctx, &report, log)
	report.FinishedAt = r.now()

	if err != nil {
		log.Error("Backfill aborted", zap.Error(err), zap.Int64("scanned", report.Scanned))
		return report, err
	}

	log.Info("Backfill completed",
		zap.Int64("scanned", report.Scanned),
		zap.Int64("updated", report.Updated),
		zap.Int64("skipped", report.Skipped),
		zap.Int64("notes_patched", report.NotesPatched),
		zap.Duration("took", report.Duration()),
	)
	return report, nil
}

func (r *Runner) scan(ctx context.Context, report *Report, log *zap.Logger) error {
	for doc, err := range r.store.FindAll(ctx) {
		if err != nil {
			return fmt.Errorf("read documents: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Scanned++

		if !doc.HasNotes {
			report.Skipped++
			continue
		}

		patched, st := PatchNotes(doc.Notes, r.rules)
		if patched == nil {
			patched = bson.A{}
		}
		report.NotesPatched += int64(st.NotesPatched)
		report.FieldsFilled += int64(st.FieldsFilled)
		if !st.Changed() {
			report.Unchanged++
		}

		if r.dryRun || (r.skipUnchanged && !st.Changed()) {
			report.Skipped++
			continue
		}

		if err := r.store.UpdateOne(ctx, doc.ID, patched); err != nil {
			if errors.Is(err, ErrDocumentVanished) {
				log.Warn(logDocumentVanished, zap.Any("id", doc.ID))
				report.Vanished++
				continue
			}
			return fmt.Errorf("update document %v: %w", doc.ID, err)
		}
		report.Updated++

		if st.Changed() {
			log.Debug(logDocumentPatched, zap.Any("id", doc.ID), zap.Int("notes", st.NotesPatched))
		}
	}
	return nil
}
