package models

import (
	"bytes"
	"encoding/json"
)

// Opt is a value that may be absent. The zero value is absent.
type Opt[T any] struct {
	v  T
	ok bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, ok: true}
}

func None[T any]() Opt[T] {
	return Opt[T]{}
}

func (o Opt[T]) Get() (T, bool) {
	return o.v, o.ok
}

func (o Opt[T]) IsSet() bool {
	return o.ok
}

// IsZero lets encoding/json drop absent values under omitzero.
func (o Opt[T]) IsZero() bool {
	return !o.ok
}

func (o Opt[T]) OrElse(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.v)
}

func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Opt[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

type fieldOp uint8

const (
	fieldKeep fieldOp = iota
	fieldSet
	fieldUnset
)

// Field is one attribute of a patch: keep the current value (zero value),
// set a new one, or unset it. Unset is distinct from "not mentioned".
type Field[T any] struct {
	op fieldOp
	v  T
}

func Set[T any](v T) Field[T] {
	return Field[T]{op: fieldSet, v: v}
}

func Unset[T any]() Field[T] {
	return Field[T]{op: fieldUnset}
}

func (f Field[T]) IsKeep() bool {
	return f.op == fieldKeep
}

// Apply returns cur changed according to f.
func (f Field[T]) Apply(cur Opt[T]) Opt[T] {
	switch f.op {
	case fieldSet:
		return Some(f.v)
	case fieldUnset:
		return None[T]()
	default:
		return cur
	}
}
