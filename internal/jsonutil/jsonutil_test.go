package jsonutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteIndented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteIndented(&buf, map[string]int{"scanned": 3}))
	assert.Equal(t, "{\n  \"scanned\": 3\n}\n", buf.String())
}

func TestMarshal(t *testing.T) {
	type report struct {
		Updated int64 `json:"updated"`
	}
	data, err := Marshal(report{Updated: 7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"updated":7}`, string(data))
}
