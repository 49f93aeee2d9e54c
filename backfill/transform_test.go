package backfill_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/drewjocham/notes-backfill/backfill"
)

var someTime = bson.DateTime(1700000000000)

func TestPatchNote(t *testing.T) {
	rules := backfill.DefaultRules()

	tests := []struct {
		name       string
		note       any
		want       any
		wantFilled int
	}{
		{
			name:       "fills both fields",
			note:       bson.D{{Key: "text", Value: "a"}},
			want:       bson.D{{Key: "text", Value: "a"}, {Key: "created", Value: backfill.Epoch}, {Key: "favorite", Value: false}},
			wantFilled: 2,
		},
		{
			name:       "keeps existing created",
			note:       bson.D{{Key: "text", Value: "b"}, {Key: "created", Value: someTime}},
			want:       bson.D{{Key: "text", Value: "b"}, {Key: "created", Value: someTime}, {Key: "favorite", Value: false}},
			wantFilled: 1,
		},
		{
			name:       "keeps existing favorite true",
			note:       bson.D{{Key: "favorite", Value: true}},
			want:       bson.D{{Key: "favorite", Value: true}, {Key: "created", Value: backfill.Epoch}},
			wantFilled: 1,
		},
		{
			name:       "null counts as absent and keeps position",
			note:       bson.D{{Key: "created", Value: nil}, {Key: "text", Value: "c"}, {Key: "favorite", Value: false}},
			want:       bson.D{{Key: "created", Value: backfill.Epoch}, {Key: "text", Value: "c"}, {Key: "favorite", Value: false}},
			wantFilled: 1,
		},
		{
			name:       "complete note untouched",
			note:       bson.D{{Key: "created", Value: someTime}, {Key: "favorite", Value: false}},
			want:       bson.D{{Key: "created", Value: someTime}, {Key: "favorite", Value: false}},
			wantFilled: 0,
		},
		{
			name:       "map note",
			note:       bson.M{"text": "m"},
			want:       bson.M{"text": "m", "created": backfill.Epoch, "favorite": false},
			wantFilled: 2,
		},
		{
			name:       "scalar element passes through",
			note:       "just a string",
			want:       "just a string",
			wantFilled: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, filled := backfill.PatchNote(tt.note, rules)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFilled, filled)
		})
	}
}

func TestPatchNotesDoesNotMutateInput(t *testing.T) {
	notes := bson.A{
		bson.D{{Key: "text", Value: "a"}},
		bson.M{"text": "b"},
	}

	_, st := backfill.PatchNotes(notes, backfill.DefaultRules())
	require.Equal(t, 2, st.NotesPatched)
	require.Equal(t, 4, st.FieldsFilled)

	assert.Equal(t, bson.D{{Key: "text", Value: "a"}}, notes[0])
	assert.Equal(t, bson.M{"text": "b"}, notes[1])
}

func TestPatchNotesIsIdempotent(t *testing.T) {
	notes := bson.A{
		bson.D{{Key: "text", Value: "a"}},
		bson.D{{Key: "text", Value: "b"}, {Key: "created", Value: someTime}},
		bson.D{{Key: "favorite", Value: true}},
		42,
	}
	rules := backfill.DefaultRules()

	once, st1 := backfill.PatchNotes(notes, rules)
	twice, st2 := backfill.PatchNotes(once, rules)

	assert.True(t, st1.Changed())
	assert.False(t, st2.Changed())
	assert.Equal(t, once, twice)
}

func TestPatchNotesEmpty(t *testing.T) {
	out, st := backfill.PatchNotes(bson.A{}, backfill.DefaultRules())
	assert.Equal(t, bson.A{}, out)
	assert.False(t, st.Changed())

	out, _ = backfill.PatchNotes(nil, backfill.DefaultRules())
	assert.Nil(t, out)
}

func TestPatchNoteAppliesRulesInOrder(t *testing.T) {
	rules := []backfill.Rule{
		{Field: "b", Default: 2},
		{Field: "a", Default: 1},
	}
	got, _ := backfill.PatchNote(bson.D{}, rules)
	assert.Equal(t, bson.D{{Key: "b", Value: 2}, {Key: "a", Value: 1}}, got)
}
