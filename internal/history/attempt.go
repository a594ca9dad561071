package history

import (
	"time"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// Usage is the resource cost of one attempt, in tokens. Local steps and the
// seed always report zero usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the field-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// IsZero reports whether no tokens were used.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

// Outcome is the audit result of one attempt.
type Outcome struct {
	Issues        []audit.Issue `json:"issues"`
	Passed        bool          `json:"passed"`
	FailureReason string        `json:"failure_reason,omitempty"`

	// Deferred is set when checks were skipped because only the last
	// allowed round is audited. A deferred outcome never passes.
	Deferred bool `json:"deferred,omitempty"`
}

// Attempt records one execution of a step at a given round.
type Attempt struct {
	Position int            `json:"position"`
	ToolID   string         `json:"tool_id"`
	Round    int            `json:"round"`
	Input    map[string]any `json:"input,omitempty"`
	Output   registry.Typed `json:"output"`
	Usage    Usage          `json:"usage"`
	Outcome  Outcome        `json:"outcome"`
	Duration time.Duration  `json:"duration"`

	// Fault holds the invocation error message for attempts synthesised
	// after the generation call failed. Such attempts carry no output value.
	Fault string `json:"fault,omitempty"`
}

// Passed reports whether the attempt passed its audit.
func (a Attempt) Passed() bool {
	return a.Outcome.Passed
}

// Issues returns the attempt's issues.
func (a Attempt) Issues() []audit.Issue {
	return a.Outcome.Issues
}

// IssuesAtLeast returns the attempt's issues at or above min.
func (a Attempt) IssuesAtLeast(min audit.Severity) []audit.Issue {
	return audit.Filter(a.Outcome.Issues, min)
}

// Faulted reports whether the attempt was synthesised from an invocation
// failure.
func (a Attempt) Faulted() bool {
	return a.Fault != ""
}
