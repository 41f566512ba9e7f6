package optional

import (
	"bytes"
	"encoding/json"
)

// Value is a field that may be absent, explicitly null, or carry a value.
// When decoded from JSON it also remembers whether the payload had the
// wrong type, so callers can report it per field instead of failing the
// whole body.
type Value[T any] struct {
	set     bool
	null    bool
	invalid bool
	value   T
}

func Some[T any](v T) Value[T] {
	return Value[T]{set: true, value: v}
}

func Null[T any]() Value[T] {
	return Value[T]{set: true, null: true}
}

func None[T any]() Value[T] {
	return Value[T]{}
}

// IsSet reports whether the field was present, null included.
func (o Value[T]) IsSet() bool {
	return o.set
}

func (o Value[T]) IsNull() bool {
	return o.set && o.null
}

// IsInvalid reports a present, non-null payload that did not decode into T.
func (o Value[T]) IsInvalid() bool {
	return o.set && o.invalid
}

// Get returns the value and true only for a present, non-null, valid field.
func (o Value[T]) Get() (T, bool) {
	if !o.set || o.null || o.invalid {
		var zero T
		return zero, false
	}

	return o.value, true
}

// Ptr returns nil unless Get would succeed.
func (o Value[T]) Ptr() *T {
	v, ok := o.Get()

	if !ok {
		return nil
	}

	return &v
}

func (o *Value[T]) UnmarshalJSON(data []byte) error {
	o.set = true
	o.null = false
	o.invalid = false

	var zero T
	o.value = zero

	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.null = true
		return nil
	}

	if err := json.Unmarshal(data, &o.value); err != nil {
		o.value = zero
		o.invalid = true
	}

	return nil
}

func (o Value[T]) MarshalJSON() ([]byte, error) {
	v, ok := o.Get()

	if !ok {
		return []byte("null"), nil
	}

	return json.Marshal(v)
}
