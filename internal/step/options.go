package step

import (
	"time"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
)

// WithDescription sets the description handed to the generation service.
func WithDescription(description string) Option {
	return func(d *Definition) {
		d.Description = description
	}
}

// WithModel overrides the flow-wide default model.
func WithModel(model string) Option {
	return func(d *Definition) {
		d.Model = model
	}
}

// WithChecks appends audit checks.
func WithChecks(checks ...audit.Check) Option {
	return func(d *Definition) {
		d.Checks = append(d.Checks, checks...)
	}
}

// WithMaxRetries sets the number of retry rounds.
func WithMaxRetries(n int) Option {
	return func(d *Definition) {
		d.Retry.MaxRetries = n
	}
}

// WithStopOnFailure halts the flow when this step exhausts its retries.
func WithStopOnFailure() Option {
	return func(d *Definition) {
		d.Retry.StopOnFailure = true
	}
}

// WithPassCriteria overrides the pass predicate.
func WithPassCriteria(pass audit.PassFunc) Option {
	return func(d *Definition) {
		d.Retry.Pass = pass
	}
}

// WithFailureReason overrides the failure reason generator.
func WithFailureReason(reason audit.ReasonFunc) Option {
	return func(d *Definition) {
		d.Retry.FailureReason = reason
	}
}

// WithRetryDelay waits between rounds, overriding the flow default. Zero
// disables the wait for this step.
func WithRetryDelay(delay time.Duration) Option {
	return func(d *Definition) {
		d.Retry.Delay = delay
		d.Retry.DelaySet = true
	}
}

// WithAuditFinalRoundOnly only runs checks on the last allowed round. Earlier
// rounds are recorded unaudited and retried.
func WithAuditFinalRoundOnly() Option {
	return func(d *Definition) {
		d.Retry.AuditFinalRoundOnly = true
	}
}

// WithMinSeverity sets the lowest issue severity surfaced as context.
func WithMinSeverity(min audit.Severity) Option {
	return func(d *Definition) {
		d.MinSeverity = min
	}
}

// WithForward surfaces the final attempts at the given history positions.
func WithForward(positions ...int) Option {
	return func(d *Definition) {
		d.Forward = append(d.Forward, positions...)
	}
}

// WithOutputSchema describes the expected output to the generation service.
func WithOutputSchema(schema map[string]any) Option {
	return func(d *Definition) {
		d.OutputSchema = schema
	}
}

// WithMaxTokens caps the generated tokens per call.
func WithMaxTokens(n int) Option {
	return func(d *Definition) {
		d.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(d *Definition) {
		d.Temperature = &t
	}
}

// WithInputSanitizer rewrites the built input before invocation.
func WithInputSanitizer(fn Sanitizer) Option {
	return func(d *Definition) {
		d.SanitizeInput = fn
	}
}

// WithOutputSanitizer rewrites raw output before decoding.
func WithOutputSanitizer(fn Sanitizer) Option {
	return func(d *Definition) {
		d.SanitizeOutput = fn
	}
}
