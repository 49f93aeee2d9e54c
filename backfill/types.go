package backfill

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// DefaultField is the array field holding the notes of a document.
	DefaultField = "notes"

	// FieldCreated and FieldFavorite are the fields filled by DefaultRules.
	FieldCreated  = "created"
	FieldFavorite = "favorite"
)

var (
	// ErrInvalidNotes is returned when the notes field exists but is not an array.
	ErrInvalidNotes = errors.New("notes field is not an array")

	// ErrDocumentVanished is returned by a Store when the document to update
	// no longer exists.
	ErrDocumentVanished = errors.New("document no longer exists")

	ErrInvalidRules = errors.New("invalid rules")
	ErrNoRules      = errors.New("no rules defined")
)

// Document is the part of a stored record the runner works with.
type Document struct {
	// ID is the opaque _id of the document, passed back verbatim on update.
	ID any

	// Notes holds the notes sequence. It is nil when HasNotes is false.
	Notes bson.A

	// HasNotes reports whether the notes field was present and non-null.
	HasNotes bool
}

// Store is the storage boundary of a backfill: a read-all cursor and a point
// write replacing the notes field of one document.
type Store interface {
	// FindAll yields every document of the collection in the store's default
	// order. Iteration stops at the first error.
	FindAll(ctx context.Context) iter.Seq2[Document, error]

	// UpdateOne replaces the notes field of the document identified by id.
	UpdateOne(ctx context.Context, id any, notes bson.A) error
}

// Report summarises a single run.
type Report struct {
	Scanned      int64     `json:"scanned"`
	Updated      int64     `json:"updated"`
	Unchanged    int64     `json:"unchanged"`
	Skipped      int64     `json:"skipped"`
	Vanished     int64     `json:"vanished"`
	NotesPatched int64     `json:"notes_patched"`
	FieldsFilled int64     `json:"fields_filled"`
	DryRun       bool      `json:"dry_run"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
