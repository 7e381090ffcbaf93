package model

import "encoding/json"

// Optional carries a value together with whether it was supplied at all.
// Null is true when the JSON value was an explicit null; for pointer types
// that leaves Value nil, which is how a nullable column gets cleared.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a supplied Optional holding v.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

// UnmarshalJSON is only invoked for keys present in the document, which is
// what makes Set meaningful.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	o.Null = string(b) == "null"
	return json.Unmarshal(b, &o.Value)
}

// ApplyTo writes Value into dst when the field was supplied.
func (o Optional[T]) ApplyTo(dst *T) {
	if o.Set {
		*dst = o.Value
	}
}
