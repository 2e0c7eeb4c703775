package settings

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileName is the settings file kept beside the launcher executable.
const FileName = "llama_server_config.json"

// Load reads a settings file. It never fails hard: a missing file yields
// defaults and a nil error, while an unreadable or corrupt file yields
// defaults plus a *LoadError describing what went wrong. Fields holding a
// value of the wrong type are reset individually and reported the same way.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Defaults(), nil
		}
		return Defaults(), &LoadError{Path: path, Err: err}
	}

	r, issues, err := decode(data)
	if err != nil {
		return Defaults(), &LoadError{Path: path, Err: err}
	}
	if len(issues) > 0 {
		return r, &LoadError{Path: path, Fields: issues}
	}
	return r, nil
}

// Save writes the record as indented JSON, replacing path atomically.
func Save(r *Record, path string) error {
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: marshal settings: %w", ErrConfigSave, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create settings dir: %w", ErrConfigSave, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigSave, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write settings: %w", ErrConfigSave, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: write settings: %w", ErrConfigSave, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigSave, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: replace settings: %w", ErrConfigSave, err)
	}
	return nil
}

// MarshalJSON renders recognized fields, the custom argument list and the
// preserved unknown keys as one flat object.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.values)+len(r.extra)+1)
	for k, v := range r.extra {
		out[k] = v
	}
	for k, v := range r.values {
		out[k] = v
	}
	args := r.args
	if args == nil {
		args = []Argument{}
	}
	out[KeyCustomArguments] = args
	return json.Marshal(out)
}

// UnmarshalJSON decodes a settings object strictly: any invalid field is an
// error. Load is the lenient entry point.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec, issues, err := decode(data)
	if err != nil {
		return err
	}
	if len(issues) > 0 {
		return fmt.Errorf("settings field %s: %w", issues[0].Key, issues[0].Err)
	}
	*r = *dec
	return nil
}

// decode parses a settings object. Invalid field values fall back to their
// defaults and are returned as issues; only a malformed document is an error.
func decode(data []byte) (*Record, []FieldIssue, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse settings: %w", err)
	}

	r := Defaults()
	var issues []FieldIssue
	var legacy string

	for key, msg := range raw {
		switch {
		case key == KeyCustomArguments:
			args, err := decodeArguments(msg)
			if err != nil {
				issues = append(issues, FieldIssue{Key: key, Err: err})
				continue
			}
			r.args = args

		case key == legacyCustomArgs:
			// Consumed by migration below; not written back.
			if err := json.Unmarshal(msg, &legacy); err != nil {
				issues = append(issues, FieldIssue{Key: key, Err: invalid(key, "want a string, got %s", msg)})
			}

		default:
			f, ok := Lookup(key)
			if !ok {
				var buf bytes.Buffer
				if err := json.Compact(&buf, msg); err != nil {
					return nil, nil, fmt.Errorf("parse settings key %s: %w", key, err)
				}
				r.extra[key] = buf.Bytes()
				continue
			}
			if key == keyFlashAttn {
				msg = migrateFlashAttn(msg)
			}
			v, err := decodeValue(f, msg)
			if err != nil {
				issues = append(issues, FieldIssue{Key: key, Err: err})
				continue
			}
			r.values[key] = v
		}
	}

	if len(r.args) == 0 {
		if legacy = strings.TrimSpace(legacy); legacy != "" {
			r.args = []Argument{{Value: legacy, Enabled: true}}
		}
	}

	sortIssues(issues)
	return r, issues, nil
}

// migrateFlashAttn maps the boolean flash_attn of older files onto the
// choice: a ticked box meant -fa, an unticked one left it off.
func migrateFlashAttn(msg json.RawMessage) json.RawMessage {
	var on bool
	if json.Unmarshal(msg, &on) != nil {
		return msg
	}
	if on {
		return json.RawMessage(`"on"`)
	}
	return json.RawMessage(`"off"`)
}

func decodeValue(f Field, msg json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, invalid(f.Key, "%v", err)
	}
	return normalize(f, v)
}

func decodeArguments(msg json.RawMessage) ([]Argument, error) {
	var entries []struct {
		Value   string `json:"value"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.Unmarshal(msg, &entries); err != nil {
		return nil, invalid(KeyCustomArguments, "%v", err)
	}
	args := make([]Argument, 0, len(entries))
	for _, e := range entries {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		args = append(args, Argument{Value: e.Value, Enabled: enabled})
	}
	return args, nil
}

// sortIssues orders issues by schema position so reports are stable.
func sortIssues(issues []FieldIssue) {
	pos := func(key string) int {
		if i, ok := schemaIndex[key]; ok {
			return i
		}
		return len(schema)
	}
	slices.SortFunc(issues, func(a, b FieldIssue) int {
		return cmp.Compare(pos(a.Key), pos(b.Key))
	})
}
