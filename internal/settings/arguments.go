package settings

import (
	"fmt"
	"slices"
	"strings"
)

// Arguments returns a copy of the custom argument list in stored order.
func (r *Record) Arguments() []Argument {
	return slices.Clone(r.args)
}

// AddArgument appends an enabled entry. Blank and duplicate values are
// rejected.
func (r *Record) AddArgument(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyArgument
	}
	if slices.ContainsFunc(r.args, func(a Argument) bool { return a.Value == value }) {
		return fmt.Errorf("%w: %s", ErrDuplicateArgument, value)
	}
	r.args = append(r.args, Argument{Value: value, Enabled: true})
	return nil
}

// RemoveArgument deletes the entry at index i.
func (r *Record) RemoveArgument(i int) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.args = slices.Delete(r.args, i, i+1)
	return nil
}

// SetArgumentEnabled toggles the entry at index i without moving it.
func (r *Record) SetArgumentEnabled(i int, enabled bool) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	r.args[i].Enabled = enabled
	return nil
}

// EditArgument replaces the text of the entry at index i. A blank value
// leaves the entry unchanged.
func (r *Record) EditArgument(i int, value string) error {
	if err := r.checkIndex(i); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	r.args[i].Value = value
	return nil
}

func (r *Record) checkIndex(i int) error {
	if i < 0 || i >= len(r.args) {
		return fmt.Errorf("%w %d (have %d)", ErrArgumentIndex, i, len(r.args))
	}
	return nil
}
