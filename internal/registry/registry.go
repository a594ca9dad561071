// Package registry maps step tool identifiers to typed output decoders.
//
// The registry provides:
//   - Tool identifier to decoder + concrete type tag mapping
//   - Tool identifier validation
//   - Checked downcasts from the type-erased Typed holder back to the
//     concrete output type
//
// A lookup for an unregistered tool always fails with ErrUnregistered; the
// registry never substitutes an untyped placeholder.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sync"
)

// Errors for registry operations.
var (
	ErrUnregistered   = errors.New("no decoder registered for tool")
	ErrDecode         = errors.New("decoding tool output failed")
	ErrTypeMismatch   = errors.New("output type mismatch")
	ErrEmptyOutput    = errors.New("attempt carries no output")
	ErrInvalidToolID  = errors.New("invalid tool id: must be alphanumeric with dots, hyphens or underscores")
	ErrNilDecoder     = errors.New("decoder cannot be nil")
	errNilOutputValue = errors.New("decoder returned a nil output")
)

// toolIDPattern validates tool identifiers.
var toolIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

const maxToolIDLen = 128

// Output is implemented by every decoded step output. ToMap renders the
// output for forwarding to a generation service and for reports.
type Output interface {
	ToMap() map[string]any
}

// Decoder turns raw generation data into a concrete output. round is the
// zero-based attempt counter of the position being decoded.
type Decoder[T Output] func(raw map[string]any, round int) (T, error)

type entry struct {
	tag    reflect.Type
	decode func(raw map[string]any, round int) (Output, error)
}

// Registry maps tool identifiers to decoders. Entries are registered before
// any flow runs; reads are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// ValidateToolID checks a tool identifier.
func ValidateToolID(toolID string) error {
	if toolID == "" {
		return ErrInvalidToolID
	}
	if len(toolID) > maxToolIDLen {
		return fmt.Errorf("%w: too long (max %d)", ErrInvalidToolID, maxToolIDLen)
	}
	if !toolIDPattern.MatchString(toolID) {
		return fmt.Errorf("%w: %q", ErrInvalidToolID, toolID)
	}
	return nil
}

// Register associates toolID with decode and the concrete type T.
// Re-registering a tool overwrites the previous entry.
func Register[T Output](r *Registry, toolID string, decode Decoder[T]) error {
	if err := ValidateToolID(toolID); err != nil {
		return err
	}
	if decode == nil {
		return fmt.Errorf("register %s: %w", toolID, ErrNilDecoder)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[toolID] = entry{
		tag: reflect.TypeFor[T](),
		decode: func(raw map[string]any, round int) (Output, error) {
			return decode(raw, round)
		},
	}
	return nil
}

// MustRegister is Register that panics on error. Intended for package-level
// pipeline definitions.
func MustRegister[T Output](r *Registry, toolID string, decode Decoder[T]) {
	if err := Register(r, toolID, decode); err != nil {
		panic(err)
	}
}

// Create decodes raw through the decoder registered for toolID.
// It fails with ErrUnregistered when nothing is registered and with ErrDecode
// when the decoder returns an error or panics.
func (r *Registry) Create(toolID string, raw map[string]any, round int) (typed Typed, err error) {
	e, ok := r.lookup(toolID)
	if !ok {
		return Typed{}, fmt.Errorf("%w: %s", ErrUnregistered, toolID)
	}

	defer func() {
		if rec := recover(); rec != nil {
			typed = Typed{}
			err = fmt.Errorf("%w: %s: decoder panicked: %v", ErrDecode, toolID, rec)
		}
	}()

	out, decodeErr := e.decode(raw, round)
	if decodeErr != nil {
		return Typed{}, fmt.Errorf("%w: %s: %w", ErrDecode, toolID, decodeErr)
	}
	if isNil(out) {
		return Typed{}, fmt.Errorf("%w: %s: %w", ErrDecode, toolID, errNilOutputValue)
	}

	return Typed{toolID: toolID, tag: e.tag, value: out}, nil
}

// Type returns the concrete output type registered for toolID.
func (r *Registry) Type(toolID string) (reflect.Type, error) {
	e, ok := r.lookup(toolID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregistered, toolID)
	}
	return e.tag, nil
}

// Has reports whether toolID is registered.
func (r *Registry) Has(toolID string) bool {
	_, ok := r.lookup(toolID)
	return ok
}

// ToolIDs returns the registered tool identifiers.
func (r *Registry) ToolIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) lookup(toolID string) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[toolID]
	return e, ok
}

// isNil catches typed nil pointers hidden inside the Output interface.
func isNil(out Output) bool {
	if out == nil {
		return true
	}
	v := reflect.ValueOf(out)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return v.IsNil()
	}
	return false
}
