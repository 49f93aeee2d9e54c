package mcp

type emptyArgs struct{}

type runArgs struct {
	SkipUnchanged *bool `json:"skip_unchanged,omitempty" jsonschema:"Skip the write for documents whose notes need no change. Defaults to the server configuration."`
}
