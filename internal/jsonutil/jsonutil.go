package jsonutil

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v any) ([]byte, error) { return JSON.Marshal(v) }

// WriteIndented writes v to w as two-space indented JSON followed by a newline.
func WriteIndented(w io.Writer, v any) error {
	enc := JSON.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
