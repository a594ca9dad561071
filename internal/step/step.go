// Package step declares the steps of a flow.
//
// A Definition is immutable once built. Remote steps call the generation
// service and incur token cost; Local steps run a pure function and never do.
// Both are driven by the same executor.
package step

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// ErrInvalidDefinition is wrapped by every validation failure.
var ErrInvalidDefinition = errors.New("invalid step definition")

// Kind distinguishes remote and local steps.
type Kind string

const (
	// KindRemote steps call the generation service
	KindRemote Kind = "remote"

	// KindLocal steps run a pure function
	KindLocal Kind = "local"
)

// InputBuilder builds a step's raw input from the full history.
type InputBuilder func(h history.Reader) (map[string]any, error)

// LocalFunc computes a local step's raw output from its input.
type LocalFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Sanitizer rewrites raw data; used on input before invocation and on output
// before decoding.
type Sanitizer func(raw map[string]any) map[string]any

// RetryPolicy controls how a failed audit is retried.
type RetryPolicy struct {
	// MaxRetries is the number of rounds after round 0; a step makes at most
	// MaxRetries+1 attempts.
	MaxRetries int

	// StopOnFailure halts the whole flow when retries are exhausted.
	StopOnFailure bool

	// Pass overrides audit.DefaultPass.
	Pass audit.PassFunc

	// FailureReason overrides audit.DefaultFailureReason.
	FailureReason audit.ReasonFunc

	// Delay is waited between rounds. A zero Delay falls back to the flow
	// default unless DelaySet is true, so WithRetryDelay(0) turns the wait off.
	Delay    time.Duration
	DelaySet bool

	// AuditFinalRoundOnly skips checks on every round but the last one.
	// Skipped rounds are never accepted, so a step with MaxRetries n always
	// makes n+1 attempts and the last one decides pass or fail.
	AuditFinalRoundOnly bool
}

// PassFunc returns the effective pass predicate.
func (p RetryPolicy) PassFunc() audit.PassFunc {
	if p.Pass != nil {
		return p.Pass
	}
	return audit.DefaultPass
}

// ReasonFunc returns the effective failure reason generator.
func (p RetryPolicy) ReasonFunc() audit.ReasonFunc {
	if p.FailureReason != nil {
		return p.FailureReason
	}
	return audit.DefaultFailureReason
}

// Definition describes one step.
type Definition struct {
	ToolID      string
	Kind        Kind
	Description string

	// Model overrides the flow-wide default model for remote steps.
	Model string

	BuildInput InputBuilder
	Local      LocalFunc

	Checks []audit.Check
	Retry  RetryPolicy

	// MinSeverity is the lowest issue severity surfaced as context.
	MinSeverity audit.Severity

	// Forward lists absolute history positions (0 = seed) whose final
	// attempts are surfaced to the generation call.
	Forward []int

	// OutputSchema describes the expected output fields to the generation
	// service. It is not used for decoding.
	OutputSchema map[string]any
	MaxTokens    int
	Temperature  *float64

	SanitizeInput  Sanitizer
	SanitizeOutput Sanitizer
}

// Option configures a Definition.
type Option func(*Definition)

// Remote declares a step that calls the generation service.
func Remote(toolID string, build InputBuilder, opts ...Option) Definition {
	d := Definition{
		ToolID:      toolID,
		Kind:        KindRemote,
		BuildInput:  build,
		MinSeverity: audit.SeverityLow,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// Local declares a step computed by fn.
func Local(toolID string, build InputBuilder, fn LocalFunc, opts ...Option) Definition {
	d := Definition{
		ToolID:      toolID,
		Kind:        KindLocal,
		BuildInput:  build,
		Local:       fn,
		MinSeverity: audit.SeverityLow,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// IsRemote reports whether the step calls the generation service.
func (d Definition) IsRemote() bool {
	return d.Kind == KindRemote
}

// Validate checks the definition as the step at position (1-based; 0 is the
// seed). Forward references must point strictly before position.
func (d Definition) Validate(position int) error {
	if position < 1 {
		return fmt.Errorf("%w: step position must be >= 1, got %d", ErrInvalidDefinition, position)
	}
	if err := registry.ValidateToolID(d.ToolID); err != nil {
		return fmt.Errorf("%w: position %d: %w", ErrInvalidDefinition, position, err)
	}
	switch d.Kind {
	case KindRemote:
	case KindLocal:
		if d.Local == nil {
			return fmt.Errorf("%w: %s: local step requires a function", ErrInvalidDefinition, d.ToolID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidDefinition, d.ToolID, d.Kind)
	}
	if d.BuildInput == nil {
		return fmt.Errorf("%w: %s: input builder is required", ErrInvalidDefinition, d.ToolID)
	}
	if d.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: %s: max retries must be >= 0, got %d", ErrInvalidDefinition, d.ToolID, d.Retry.MaxRetries)
	}
	if d.Retry.Delay < 0 {
		return fmt.Errorf("%w: %s: retry delay cannot be negative", ErrInvalidDefinition, d.ToolID)
	}
	if !d.MinSeverity.Valid() {
		return fmt.Errorf("%w: %s: invalid minimum severity %d", ErrInvalidDefinition, d.ToolID, int(d.MinSeverity))
	}
	if d.MaxTokens < 0 {
		return fmt.Errorf("%w: %s: max tokens cannot be negative", ErrInvalidDefinition, d.ToolID)
	}
	for _, ref := range d.Forward {
		if ref < 0 || ref >= position {
			return fmt.Errorf("%w: %s: forward reference %d outside [0, %d)", ErrInvalidDefinition, d.ToolID, ref, position)
		}
	}
	for i, check := range d.Checks {
		if check == nil {
			return fmt.Errorf("%w: %s: check %d is nil", ErrInvalidDefinition, d.ToolID, i)
		}
	}
	return nil
}
