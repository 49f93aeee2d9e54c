package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/drewjocham/notes-backfill/backfill"
	"github.com/drewjocham/notes-backfill/backfill/backfilltest"
	"github.com/drewjocham/notes-backfill/internal/config"
)

type fakeRecorder struct {
	records []backfill.RunRecord
}

func (f *fakeRecorder) Record(_ context.Context, rec backfill.RunRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func sampleStore() *backfilltest.MemStore {
	return backfilltest.NewMemStore(
		bson.D{{Key: "_id", Value: 1}, {Key: "notes", Value: bson.A{
			bson.D{{Key: "text", Value: "a"}},
			bson.D{{Key: "text", Value: "b"}, {Key: "created", Value: bson.DateTime(1700000000000)}},
		}}},
		bson.D{{Key: "_id", Value: 2}, {Key: "notes", Value: bson.A{}}},
	)
}

func params(output string, dryRun bool) runParams {
	return runParams{
		target: target{Collection: "user", Field: "notes"},
		rules:  backfill.DefaultRules(),
		dryRun: dryRun,
		output: output,
	}
}

func TestExecuteRunTable(t *testing.T) {
	store := sampleStore()
	rec := &fakeRecorder{}
	var buf bytes.Buffer

	require.NoError(t, executeRun(context.Background(), &buf, store, rec, params("table", false)))

	out := buf.String()
	assert.Contains(t, out, "--- BACKFILL: user.notes ---")
	assert.Regexp(t, `Documents scanned\s+2`, out)
	assert.Regexp(t, `Documents updated\s+2`, out)
	assert.Regexp(t, `Notes patched\s+2`, out)
	assert.Regexp(t, `Fields filled\s+3`, out)
	assert.Equal(t, 2, store.Writes)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "notes", rec.records[0].Field)
	assert.Empty(t, rec.records[0].Error)
}

func TestExecuteRunDryRunJSON(t *testing.T) {
	store := sampleStore()
	rec := &fakeRecorder{}
	var buf bytes.Buffer

	require.NoError(t, executeRun(context.Background(), &buf, store, rec, params("json", true)))

	out := buf.String()
	assert.Contains(t, out, `"target": "user.notes"`)
	assert.Contains(t, out, `"dry_run": true`)
	assert.Contains(t, out, `"notes_patched": 2`)
	assert.Zero(t, store.Writes)
	assert.Empty(t, rec.records, "dry runs are not recorded")
}

func TestExecuteRunRecordsFailure(t *testing.T) {
	store := sampleStore()
	store.FailUpdateAt = 1
	rec := &fakeRecorder{}

	err := executeRun(context.Background(), &bytes.Buffer{}, store, rec, params("table", false))
	require.Error(t, err)
	assert.True(t, errors.Is(err, backfilltest.ErrInjected))
	assert.Contains(t, err.Error(), "backfill user.notes failed")

	require.Len(t, rec.records, 1)
	assert.Contains(t, rec.records[0].Error, backfilltest.ErrInjected.Error())
}

func TestExecuteRunRejectsUnknownOutput(t *testing.T) {
	store := sampleStore()
	err := executeRun(context.Background(), &bytes.Buffer{}, store, nil, params("yaml", false))
	require.ErrorContains(t, err, "unsupported output format")
	assert.Zero(t, store.Writes)
}

func TestConfirmRun(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			cmd := &cobra.Command{}
			var out bytes.Buffer
			cmd.SetOut(&out)
			cmd.SetIn(strings.NewReader(tt.input))

			got := confirmRun(cmd, params("table", false))
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "About to backfill user.notes with created=1970-01-01T00:00:00Z, favorite=false")
		})
	}
}

func TestResolveTarget(t *testing.T) {
	cfg := &config.Config{Collection: "user", Field: "notes", RulesFile: "default.json"}

	assert.Equal(t, target{"user", "notes", "default.json"}, resolveTarget(cfg, "", "", ""))
	assert.Equal(t, target{"accounts", "items", "other.json"}, resolveTarget(cfg, "accounts", "items", "other.json"))
}

func TestLoadRulesDefaults(t *testing.T) {
	rules, err := loadRules("")
	require.NoError(t, err)
	assert.Equal(t, backfill.DefaultRules(), rules)

	_, err = loadRules("missing-rules.json")
	require.ErrorContains(t, err, "read rules file")
}
