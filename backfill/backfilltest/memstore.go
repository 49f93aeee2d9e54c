// Package backfilltest provides an in-memory backfill.Store for tests.
package backfilltest

import (
	"context"
	"errors"
	"iter"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/drewjocham/notes-backfill/backfill"
)

var ErrInjected = errors.New("injected failure")

// MemStore keeps documents as bson.D in insertion order.
type MemStore struct {
	mu    sync.Mutex
	field string
	docs  []bson.D

	// Writes counts every UpdateOne call, successful or not.
	Writes int

	// FailUpdateAt makes the n-th UpdateOne call (1-based) fail with ErrInjected.
	FailUpdateAt int

	// FailReadAt makes the n-th yielded document (1-based) an ErrInjected error.
	FailReadAt int

	// OnRead runs after a document is read and before it is yielded.
	OnRead func(id any)
}

var _ backfill.Store = (*MemStore)(nil)

func NewMemStore(docs ...bson.D) *MemStore {
	s := &MemStore{field: backfill.DefaultField}
	for _, d := range docs {
		s.docs = append(s.docs, cloneD(d))
	}
	return s
}

// Docs returns a snapshot of the stored documents.
func (s *MemStore) Docs() []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bson.D, len(s.docs))
	for i, d := range s.docs {
		out[i] = cloneD(d)
	}
	return out
}

// Get returns a copy of the document with the given _id.
func (s *MemStore) Get(id any) (bson.D, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return cloneD(s.docs[i]), true
	}
	return nil, false
}

// Delete removes the document with the given _id.
func (s *MemStore) Delete(id any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		s.docs = append(s.docs[:i], s.docs[i+1:]...)
	}
}

func (s *MemStore) FindAll(ctx context.Context) iter.Seq2[backfill.Document, error] {
	return func(yield func(backfill.Document, error) bool) {
		for i, raw := range s.Docs() {
			if err := ctx.Err(); err != nil {
				yield(backfill.Document{}, err)
				return
			}
			if s.FailReadAt == i+1 {
				yield(backfill.Document{}, ErrInjected)
				return
			}
			doc, err := toDocument(raw, s.field)
			if s.OnRead != nil {
				s.OnRead(doc.ID)
			}
			if !yield(doc, err) || err != nil {
				return
			}
		}
	}
}

func (s *MemStore) UpdateOne(_ context.Context, id any, notes bson.A) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Writes++
	if s.FailUpdateAt == s.Writes {
		return ErrInjected
	}

	i := s.indexOf(id)
	if i < 0 {
		return backfill.ErrDocumentVanished
	}
	doc := s.docs[i]
	for j := range doc {
		if doc[j].Key == s.field {
			doc[j].Value = cloneA(notes)
			return nil
		}
	}
	s.docs[i] = append(doc, bson.E{Key: s.field, Value: cloneA(notes)})
	return nil
}

func (s *MemStore) indexOf(id any) int {
	for i, d := range s.docs {
		for _, e := range d {
			if e.Key == "_id" && e.Value == id {
				return i
			}
		}
	}
	return -1
}

func toDocument(d bson.D, field string) (backfill.Document, error) {
	var doc backfill.Document
	for _, e := range d {
		switch e.Key {
		case "_id":
			doc.ID = e.Value
		case field:
			switch v := e.Value.(type) {
			case nil:
			case bson.A:
				doc.Notes = cloneA(v)
				doc.HasNotes = true
			default:
				return doc, backfill.ErrInvalidNotes
			}
		}
	}
	return doc, nil
}

func cloneD(d bson.D) bson.D {
	if d == nil {
		return nil
	}
	out := make(bson.D, len(d))
	for i, e := range d {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneA(a bson.A) bson.A {
	if a == nil {
		return nil
	}
	out := make(bson.A, len(a))
	for i, v := range a {
		out[i] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return cloneD(t)
	case bson.A:
		return cloneA(t)
	case bson.M:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
