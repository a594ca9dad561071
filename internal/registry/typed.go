package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Typed holds one decoded output behind a type tag so that outputs of
// different concrete types can share a single ordered history. Use As to get
// the concrete value back.
type Typed struct {
	toolID string
	tag    reflect.Type
	value  Output
}

// Empty returns a holder carrying only the type tag. Attempts that failed
// before producing output use it so the position's declared type stays known.
func Empty(toolID string, tag reflect.Type) Typed {
	return Typed{toolID: toolID, tag: tag}
}

// ToolID returns the tool that produced the output.
func (t Typed) ToolID() string {
	return t.toolID
}

// Type returns the concrete type tag.
func (t Typed) Type() reflect.Type {
	return t.tag
}

// HasValue reports whether a decoded value is present.
func (t Typed) HasValue() bool {
	return t.value != nil
}

// Value returns the decoded value as the Output interface.
func (t Typed) Value() Output {
	return t.value
}

// ToMap renders the output, or nil when no value is present.
func (t Typed) ToMap() map[string]any {
	if t.value == nil {
		return nil
	}
	return t.value.ToMap()
}

// MarshalJSON renders the output map so reports serialise cleanly.
func (t Typed) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ToMap())
}

// String implements fmt.Stringer.
func (t Typed) String() string {
	if t.tag == nil {
		return "Typed(<none>)"
	}
	return fmt.Sprintf("Typed(%s:%s)", t.toolID, t.tag)
}

// As performs a checked downcast to T. It fails with ErrEmptyOutput when the
// holder has no value and with ErrTypeMismatch when T is not the stored type.
func As[T Output](t Typed) (T, error) {
	var zero T
	if t.value == nil {
		return zero, fmt.Errorf("%w: %s", ErrEmptyOutput, t.toolID)
	}
	v, ok := t.value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %s, not %s", ErrTypeMismatch, t.toolID, t.tag, reflect.TypeFor[T]())
	}
	return v, nil
}

// MustAs is As that panics on failure.
func MustAs[T Output](t Typed) T {
	v, err := As[T](t)
	if err != nil {
		panic(err)
	}
	return v
}
