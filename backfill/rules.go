package backfill

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Epoch is the default value of the created field: 1970-01-01T00:00:00Z.
var Epoch = bson.DateTime(0)

// Rule fills Field with Default on every note where Field is absent.
type Rule struct {
	Field   string `json:"field"`
	Default any    `json:"default"`
}

func (r Rule) String() string {
	return r.Field + "=" + formatDefault(r.Default)
}

// DefaultRules returns the built-in rules: created defaults to the epoch,
// favorite defaults to false.
func DefaultRules() []Rule {
	return []Rule{
		{Field: FieldCreated, Default: Epoch},
		{Field: FieldFavorite, Default: false},
	}
}

// ParseRules decodes a rules document of the form
//
//	{"rules": [{"field": "created", "type": "date", "default": "1970-01-01T00:00:00Z"}]}
//
// Supported types are date, bool, string, int and double.
func ParseRules(data []byte) ([]Rule, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidRules)
	}

	list := gjson.GetBytes(data, "rules")
	if !list.Exists() {
		return nil, fmt.Errorf("%w: missing \"rules\" array", ErrInvalidRules)
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: \"rules\" must be an array", ErrInvalidRules)
	}

	var (
		rules []Rule
		seen  = make(map[string]bool)
	)
	for i, value := range list.Array() {
		r, err := parseRule(i, value)
		if err != nil {
			return nil, err
		}
		if seen[r.Field] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidRules, r.Field)
		}
		seen[r.Field] = true
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return nil, ErrNoRules
	}
	return rules, nil
}

func parseRule(idx int, v gjson.Result) (Rule, error) {
	if !v.IsObject() {
		return Rule{}, fmt.Errorf("%w: rule %d is not an object", ErrInvalidRules, idx)
	}

	field := v.Get("field").String()
	if err := validateField(field); err != nil {
		return Rule{}, fmt.Errorf("%w: rule %d: %v", ErrInvalidRules, idx, err)
	}

	def := v.Get("default")
	if !def.Exists() {
		return Rule{}, fmt.Errorf("%w: rule %d (%s): missing default", ErrInvalidRules, idx, field)
	}

	typ := strings.ToLower(v.Get("type").String())
	value, err := convertDefault(typ, def)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %d (%s): %v", ErrInvalidRules, idx, field, err)
	}
	return Rule{Field: field, Default: value}, nil
}

func validateField(field string) error {
	switch {
	case field == "":
		return fmt.Errorf("field is required")
	case strings.Contains(field, "."):
		return fmt.Errorf("field %q must not contain '.'", field)
	case strings.HasPrefix(field, "$"):
		return fmt.Errorf("field %q must not start with '$'", field)
	}
	return nil
}

func convertDefault(typ string, def gjson.Result) (any, error) {
	switch typ {
	case "date":
		switch def.Type {
		case gjson.Number:
			return bson.DateTime(def.Int()), nil
		case gjson.String:
			t, err := time.Parse(time.RFC3339, def.Str)
			if err != nil {
				return nil, fmt.Errorf("date default: %w", err)
			}
			return bson.NewDateTimeFromTime(t), nil
		}
		return nil, fmt.Errorf("date default must be an RFC3339 string or milliseconds")
	case "bool":
		if def.Type != gjson.True && def.Type != gjson.False {
			return nil, fmt.Errorf("bool default must be true or false")
		}
		return def.Bool(), nil
	case "string":
		if def.Type != gjson.String {
			return nil, fmt.Errorf("string default must be a string")
		}
		return def.Str, nil
	case "int":
		if def.Type != gjson.Number {
			return nil, fmt.Errorf("int default must be a number")
		}
		return def.Int(), nil
	case "double":
		if def.Type != gjson.Number {
			return nil, fmt.Errorf("double default must be a number")
		}
		return def.Float(), nil
	case "":
		return nil, fmt.Errorf("type is required")
	default:
		return nil, fmt.Errorf("unsupported type %q", typ)
	}
}

func formatDefault(v any) string {
	switch d := v.(type) {
	case bson.DateTime:
		return d.Time().UTC().Format(time.RFC3339)
	case string:
		return fmt.Sprintf("%q", d)
	default:
		return fmt.Sprint(d)
	}
}
