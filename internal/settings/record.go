package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Argument is one entry of the custom argument list. Disabled entries stay
// in the list but are left off the command line.
type Argument struct {
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Record is the in-memory settings state: one value per schema field, the
// custom argument list, and any keys the schema does not know about.
//
// A Record is not safe for concurrent use; it belongs to whoever edits it.
type Record struct {
	values map[string]any
	args   []Argument
	extra  map[string]json.RawMessage
}

// Defaults returns a record with every field at its default value.
func Defaults() *Record {
	r := &Record{
		values: make(map[string]any, len(schema)),
		extra:  make(map[string]json.RawMessage),
	}
	for _, f := range schema {
		r.values[f.Key] = f.Default
	}
	return r
}

// Get returns the typed value of a field: string for text, number and
// choice fields, int for int fields, bool for bool fields.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// String returns the display form of a field's value.
func (r *Record) String(key string) string {
	switch v := r.values[key].(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Bool returns the value of a bool field.
func (r *Record) Bool(key string) bool {
	b, _ := r.values[key].(bool)
	return b
}

// Int returns the value of an int field.
func (r *Record) Int(key string) int {
	n, _ := r.values[key].(int)
	return n
}

// Set parses text input for a field according to its kind.
func (r *Record) Set(key, text string) error {
	f, ok := Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	v, err := parseText(f, text)
	if err != nil {
		return err
	}
	r.values[key] = v
	return nil
}

// SetValue stores an already typed value after validating it.
func (r *Record) SetValue(key string, value any) error {
	f, ok := Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	v, err := normalize(f, value)
	if err != nil {
		return err
	}
	r.values[key] = v
	return nil
}

// Reset puts a field back to its default.
func (r *Record) Reset(key string) error {
	f, ok := Lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	r.values[key] = f.Default
	return nil
}

// IsDefault reports whether a field holds its default value.
func (r *Record) IsDefault(key string) bool {
	f, ok := Lookup(key)
	if !ok {
		return false
	}
	return r.values[key] == f.Default
}

// Extra returns a copy of the keys the schema does not recognize.
func (r *Record) Extra() map[string]json.RawMessage {
	return maps.Clone(r.extra)
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{
		values: maps.Clone(r.values),
		args:   slices.Clone(r.args),
		extra:  make(map[string]json.RawMessage, len(r.extra)),
	}
	for k, v := range r.extra {
		c.extra[k] = slices.Clone(v)
	}
	return c
}

// Equal reports whether two records hold the same values, arguments and
// unrecognized keys.
func (r *Record) Equal(o *Record) bool {
	if !maps.Equal(r.values, o.values) || !slices.Equal(r.args, o.args) {
		return false
	}
	return maps.EqualFunc(r.extra, o.extra, func(a, b json.RawMessage) bool {
		return string(a) == string(b)
	})
}

// parseText converts user input into the canonical value for f.
func parseText(f Field, text string) (any, error) {
	switch f.Kind {
	case KindText:
		return text, nil
	case KindNumber:
		return checkNumber(f, strings.TrimSpace(text))
	case KindInt:
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			return nil, invalid(f.Key, "%q is not an integer", text)
		}
		return checkInt(f, n)
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(text))
		if err != nil {
			return nil, invalid(f.Key, "%q is not a boolean", text)
		}
		return b, nil
	case KindChoice:
		return checkChoice(f, strings.TrimSpace(text))
	}
	return nil, invalid(f.Key, "unsupported kind %s", f.Kind)
}

// normalize validates a decoded JSON or programmatic value for f.
func normalize(f Field, value any) (any, error) {
	switch f.Kind {
	case KindText:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case KindNumber:
		switch v := value.(type) {
		case string:
			return checkNumber(f, strings.TrimSpace(v))
		case json.Number:
			return checkNumber(f, v.String())
		case int:
			return strconv.Itoa(v), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		}
	case KindInt:
		switch v := value.(type) {
		case int:
			return checkInt(f, v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				fl, ferr := v.Float64()
				if ferr != nil || fl != float64(int64(fl)) {
					return nil, invalid(f.Key, "%s is not an integer", v)
				}
				n = int64(fl)
			}
			return checkInt(f, int(n))
		case float64:
			if v != float64(int64(v)) {
				return nil, invalid(f.Key, "%v is not an integer", v)
			}
			return checkInt(f, int(v))
		case string:
			return parseText(f, v)
		}
	case KindBool:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	case KindChoice:
		if s, ok := value.(string); ok {
			return checkChoice(f, strings.TrimSpace(s))
		}
	}
	return nil, invalid(f.Key, "expected %s, got %T", f.Kind, value)
}

func checkNumber(f Field, s string) (any, error) {
	if s == "" {
		return s, nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return nil, invalid(f.Key, "%q is not a number", s)
	}
	return s, nil
}

func checkInt(f Field, n int) (any, error) {
	if n < f.Min || (f.Max > f.Min && n > f.Max) {
		return nil, invalid(f.Key, "%d is outside %d..%d", n, f.Min, f.Max)
	}
	return n, nil
}

func checkChoice(f Field, s string) (any, error) {
	if f.Open || slices.Contains(f.Choices, s) {
		return s, nil
	}
	return nil, invalid(f.Key, "%q is not one of %s", s, strings.Join(f.Choices, ", "))
}
