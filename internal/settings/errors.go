package settings

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfigLoad marks a settings file that could not be read or parsed.
	// Loading still yields a usable record.
	ErrConfigLoad = errors.New("config load failed")

	// ErrConfigSave marks a settings file that could not be written.
	ErrConfigSave = errors.New("config save failed")

	ErrModelRequired     = errors.New("model path is required")
	ErrUnknownField      = errors.New("unknown settings field")
	ErrInvalidValue      = errors.New("invalid value")
	ErrDuplicateArgument = errors.New("argument already exists in the list")
	ErrEmptyArgument     = errors.New("argument is empty")
	ErrArgumentIndex     = errors.New("no argument at index")
)

// FieldIssue records a field that was reset to its default while loading.
type FieldIssue struct {
	Key string
	Err error
}

// LoadError describes what Load recovered from. The record returned next to
// it is always usable.
type LoadError struct {
	Path   string
	Err    error        // read or parse failure; nil when only fields were reset
	Fields []FieldIssue // fields reset to defaults
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %v (using defaults)", e.Path, e.Err)
	}
	keys := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		keys[i] = f.Key
	}
	return fmt.Sprintf("load %s: reset invalid fields to defaults: %s", e.Path, strings.Join(keys, ", "))
}

func (e *LoadError) Unwrap() []error {
	errs := []error{ErrConfigLoad}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func invalid(key string, format string, args ...any) error {
	return fmt.Errorf("%w for %s: %s", ErrInvalidValue, key, fmt.Sprintf(format, args...))
}
