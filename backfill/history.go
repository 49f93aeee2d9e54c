package backfill

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// RunRecord is the persisted trace of one backfill run.
type RunRecord struct {
	ID           bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Collection   string        `bson:"collection" json:"collection"`
	Field        string        `bson:"field" json:"field"`
	Rules        []string      `bson:"rules" json:"rules"`
	Scanned      int64         `bson:"scanned" json:"scanned"`
	Updated      int64         `bson:"updated" json:"updated"`
	Skipped      int64         `bson:"skipped" json:"skipped"`
	Vanished     int64         `bson:"vanished" json:"vanished"`
	NotesPatched int64         `bson:"notes_patched" json:"notes_patched"`
	StartedAt    time.Time     `bson:"started_at" json:"started_at"`
	FinishedAt   time.Time     `bson:"finished_at" json:"finished_at"`
	Error        string        `bson:"error,omitempty" json:"error,omitempty"`
}

// NewRunRecord builds the record of a run over collection.field.
func NewRunRecord(collection, field string, rules []Rule, report Report, runErr error) RunRecord {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.String()
	}
	rec := RunRecord{
		Collection:   collection,
		Field:        field,
		Rules:        names,
		Scanned:      report.Scanned,
		Updated:      report.Updated,
		Skipped:      report.Skipped,
		Vanished:     report.Vanished,
		NotesPatched: report.NotesPatched,
		StartedAt:    report.StartedAt,
		FinishedAt:   report.FinishedAt,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// Recorder persists the outcome of a run.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// History persists run records in a collection.
type History struct {
	coll *mongo.Collection
}

var _ Recorder = (*History)(nil)

func NewHistory(coll *mongo.Collection) *History {
	return &History{coll: coll}
}

func (h *History) Record(ctx context.Context, rec RunRecord) error {
	if _, err := h.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// List returns records newest first. A limit of zero returns all of them.
func (h *History) List(ctx context.Context, limit int64) ([]RunRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := h.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer cur.Close(ctx)

	var records []RunRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode runs: %w", err)
	}
	return records, nil
}
