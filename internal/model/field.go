package model

import (
	"bytes"
	"encoding/json"
)

// FieldState tells a patch what to do with one field.
type FieldState uint8

const (
	Unchanged FieldState = iota
	Clear
	Set
)

func (s FieldState) String() string {
	switch s {
	case Clear:
		return "clear"
	case Set:
		return "set"
	default:
		return "unchanged"
	}
}

// Field is a three-way optional value: Unchanged (key omitted), Clear (explicit null) or Set(v).
// The zero value is Unchanged, so an absent JSON key leaves it untouched.
type Field[T any] struct {
	State FieldState
	Value T
}

func SetTo[T any](v T) Field[T] {
	return Field[T]{State: Set, Value: v}
}

func Cleared[T any]() Field[T] {
	return Field[T]{State: Clear}
}

func (f Field[T]) IsUnchanged() bool { return f.State == Unchanged }
func (f Field[T]) IsClear() bool     { return f.State == Clear }
func (f Field[T]) IsSet() bool       { return f.State == Set }

// Get returns the value and whether it is Set.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.State == Set
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.State, f.Value = Clear, zero
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.State, f.Value = Set, v
	return nil
}

// MarshalJSON writes null for both Unchanged and Clear. Use omitzero on the
// enclosing struct field to drop Unchanged keys.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.State != Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// IsZero lets encoding/json's omitzero skip Unchanged fields.
func (f Field[T]) IsZero() bool {
	return f.State == Unchanged
}
