package backfill

import (
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Stats counts what PatchNotes changed in one sequence.
type Stats struct {
	NotesPatched int
	FieldsFilled int
}

// Changed reports whether any note was patched.
func (s Stats) Changed() bool { return s.NotesPatched > 0 }

// PatchNotes applies rules to every note of notes and returns a new sequence.
// Elements that are not embedded documents are kept as they are. The input is
// never modified.
func PatchNotes(notes bson.A, rules []Rule) (bson.A, Stats) {
	var st Stats
	if notes == nil {
		return nil, st
	}

	out := make(bson.A, len(notes))
	for i, note := range notes {
		patched, filled := PatchNote(note, rules)
		out[i] = patched
		if filled > 0 {
			st.NotesPatched++
			st.FieldsFilled += filled
		}
	}
	return out, st
}

// PatchNote sets every rule's field that is absent or null on note to the
// rule default, in rule order, and returns the result together with the number
// of fields filled. Present values are never overwritten.
func PatchNote(note any, rules []Rule) (any, int) {
	switch n := note.(type) {
	case bson.D:
		return patchD(n, rules)
	case bson.M:
		return patchM(n, rules)
	case map[string]any:
		return patchM(bson.M(n), rules)
	default:
		return note, 0
	}
}

func patchD(note bson.D, rules []Rule) (any, int) {
	var out bson.D
	filled := 0
	for _, r := range rules {
		src := note
		if out != nil {
			src = out
		}
		idx := indexD(src, r.Field)
		if idx >= 0 && src[idx].Value != nil {
			continue
		}
		if out == nil {
			out = make(bson.D, len(note), len(note)+len(rules))
			copy(out, note)
		}
		if idx >= 0 {
			out[idx].Value = r.Default
		} else {
			out = append(out, bson.E{Key: r.Field, Value: r.Default})
		}
		filled++
	}
	if out == nil {
		return note, 0
	}
	return out, filled
}

func patchM(note bson.M, rules []Rule) (any, int) {
	var out bson.M
	filled := 0
	for _, r := range rules {
		src := note
		if out != nil {
			src = out
		}
		if v, ok := src[r.Field]; ok && v != nil {
			continue
		}
		if out == nil {
			out = make(bson.M, len(note)+len(rules))
			for k, v := range note {
				out[k] = v
			}
		}
		out[r.Field] = r.Default
		filled++
	}
	if out == nil {
		return note, 0
	}
	return out, filled
}

func indexD(d bson.D, key string) int {
	for i, e := range d {
		if e.Key == key {
			return i
		}
	}
	return -1
}
