//go:build integration

package backfill_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/drewjocham/notes-backfill/backfill"
)

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcmongo.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	require.NoError(t, client.Ping(ctx, nil))
	return client.Database("backfill_it")
}

func TestMongoStoreBackfill(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	coll := db.Collection("user")

	created := bson.NewDateTimeFromTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	_, err := coll.InsertMany(ctx, []any{
		bson.D{
			{Key: "_id", Value: 1},
			{Key: "name", Value: "ada"},
			{Key: "notes", Value: bson.A{
				bson.D{{Key: "text", Value: "a"}},
				bson.D{{Key: "text", Value: "b"}, {Key: "created", Value: created}},
			}},
		},
		bson.D{{Key: "_id", Value: 2}, {Key: "notes", Value: bson.A{}}},
		bson.D{{Key: "_id", Value: 3}, {Key: "name", Value: "no notes"}},
	})
	require.NoError(t, err)

	store := backfill.NewMongoStore(coll, "")
	report, err := backfill.NewRunner(store).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), report.Scanned)
	assert.Equal(t, int64(2), report.Updated)
	assert.Equal(t, int64(1), report.Skipped)

	var got struct {
		Name  string `bson:"name"`
		Notes []bson.D
	}
	require.NoError(t, coll.FindOne(ctx, bson.D{{Key: "_id", Value: 1}}).Decode(&got))
	assert.Equal(t, "ada", got.Name)
	require.Len(t, got.Notes, 2)
	assert.Equal(t, bson.D{
		{Key: "text", Value: "a"},
		{Key: "created", Value: backfill.Epoch},
		{Key: "favorite", Value: false},
	}, got.Notes[0])
	assert.Equal(t, bson.D{
		{Key: "text", Value: "b"},
		{Key: "created", Value: created},
		{Key: "favorite", Value: false},
	}, got.Notes[1])

	var third bson.D
	require.NoError(t, coll.FindOne(ctx, bson.D{{Key: "_id", Value: 3}}).Decode(&third))
	assert.Len(t, third, 2)

	second, err := backfill.NewRunner(store, backfill.WithSkipUnchanged(true)).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.NotesPatched)
}

func TestMongoStoreRejectsNonArrayNotes(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	coll := db.Collection("user")

	_, err := coll.InsertOne(ctx, bson.D{{Key: "_id", Value: 1}, {Key: "notes", Value: "text"}})
	require.NoError(t, err)

	_, err = backfill.NewRunner(backfill.NewMongoStore(coll, "notes")).Run(ctx)
	require.ErrorIs(t, err, backfill.ErrInvalidNotes)
}

func TestHistoryRecordAndList(t *testing.T) {
	db := setupMongo(t)
	ctx := context.Background()
	h := backfill.NewHistory(db.Collection("backfill_runs"))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		report := backfill.Report{
			Scanned:    int64(i),
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Second),
		}
		rec := backfill.NewRunRecord("user", "notes", backfill.DefaultRules(), report, nil)
		require.NoError(t, h.Record(ctx, rec))
	}

	records, err := h.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(2), records[0].Scanned)
	assert.Equal(t, int64(1), records[1].Scanned)
	assert.Equal(t, []string{"created=1970-01-01T00:00:00Z", "favorite=false"}, records[0].Rules)
}
