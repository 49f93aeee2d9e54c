package backfill

import (
	"context"
	"fmt"
	"iter"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore is a Store backed by a MongoDB collection.
type MongoStore struct {
	coll  *mongo.Collection
	field string
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(coll *mongo.Collection, field string) *MongoStore {
	if field == "" {
		field = DefaultField
	}
	return &MongoStore{coll: coll, field: field}
}

func (s *MongoStore) FindAll(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		projection := bson.D{{Key: "_id", Value: 1}, {Key: s.field, Value: 1}}
		cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetProjection(projection))
		if err != nil {
			yield(Document{}, fmt.Errorf("find in %s: %w", s.coll.Name(), err))
			return
		}
		defer cur.Close(ctx)

		for cur.Next(ctx) {
			doc, err := decodeDocument(cur.Current, s.field)
			if !yield(doc, err) || err != nil {
				return
			}
		}
		if err := cur.Err(); err != nil {
			yield(Document{}, fmt.Errorf("cursor on %s: %w", s.coll.Name(), err))
		}
	}
}

func (s *MongoStore) UpdateOne(ctx context.Context, id any, notes bson.A) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: s.field, Value: notes}}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrDocumentVanished
	}
	return nil
}

func decodeDocument(raw bson.Raw, field string) (Document, error) {
	var doc Document

	idVal, err := raw.LookupErr("_id")
	if err != nil {
		return doc, fmt.Errorf("document without _id: %w", err)
	}
	if err := idVal.Unmarshal(&doc.ID); err != nil {
		return doc, fmt.Errorf("decode _id: %w", err)
	}

	// A missing field yields the zero RawValue.
	notesVal := raw.Lookup(field)
	switch notesVal.Type {
	case 0, bson.TypeNull, bson.TypeUndefined:
		return doc, nil
	case bson.TypeArray:
	default:
		return doc, fmt.Errorf("%w: document %v has %s %s", ErrInvalidNotes, doc.ID, field, notesVal.Type)
	}

	if err := notesVal.Unmarshal(&doc.Notes); err != nil {
		return doc, fmt.Errorf("decode %s of %v: %w", field, doc.ID, err)
	}
	if doc.Notes == nil {
		doc.Notes = bson.A{}
	}
	doc.HasNotes = true
	return doc, nil
}
