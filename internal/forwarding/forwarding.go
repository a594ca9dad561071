// Package forwarding decides which earlier results are surfaced to a step's
// generation call as explanatory context.
//
// Two channels are produced:
//   - Prior: final attempts of earlier positions the step references
//   - Retries: the current position's own earlier rounds
//
// In both, an attempt's issues are filtered to the step's minimum severity
// and kept together with the output that caused them. Attempts left with no
// issue after filtering are not surfaced.
//
// The input builder of a step is not restricted by this package; it always
// receives the full history.
package forwarding

import (
	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// Entry pairs one attempt's output with its surviving issues.
type Entry struct {
	Position int
	ToolID   string
	Round    int
	Output   registry.Typed
	Issues   []audit.Issue
}

// ToMap renders the entry for a generation request.
func (e Entry) ToMap() map[string]any {
	issues := make([]map[string]any, len(e.Issues))
	for i, issue := range e.Issues {
		issues[i] = issue.ToMap()
	}
	return map[string]any{
		"position": e.Position,
		"tool":     e.ToolID,
		"round":    e.Round,
		"output":   e.Output.ToMap(),
		"issues":   issues,
	}
}

// Context is what a step's generation call sees about earlier work.
type Context struct {
	// Prior holds final attempts of referenced earlier positions.
	Prior []Entry

	// Retries holds this position's earlier rounds.
	Retries []Entry
}

// IsEmpty reports whether neither channel has entries.
func (c Context) IsEmpty() bool {
	return len(c.Prior) == 0 && len(c.Retries) == 0
}

// Issues returns every surfaced issue, prior entries first.
func (c Context) Issues() []audit.Issue {
	var issues []audit.Issue
	for _, e := range c.Prior {
		issues = append(issues, e.Issues...)
	}
	for _, e := range c.Retries {
		issues = append(issues, e.Issues...)
	}
	return issues
}

// Prior resolves each referenced position to its final attempt and returns
// the ones that still carry issues at or above min. Clean outputs are not
// surfaced: this channel explains defects, and input builders read settled
// outputs from the history directly. References to positions without
// attempts are skipped.
func Prior(h history.Reader, refs []int, min audit.Severity) []Entry {
	entries := make([]Entry, 0, len(refs))
	for _, ref := range refs {
		final, ok := h.Final(ref)
		if !ok {
			continue
		}
		if entry, ok := entryFor(final, min); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Retries applies the same filter to the current position's earlier rounds.
func Retries(attempts []history.Attempt, min audit.Severity) []Entry {
	entries := make([]Entry, 0, len(attempts))
	for _, attempt := range attempts {
		if entry, ok := entryFor(attempt, min); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Select builds both channels for a step.
func Select(h history.Reader, refs []int, current []history.Attempt, min audit.Severity) Context {
	return Context{
		Prior:   Prior(h, refs, min),
		Retries: Retries(current, min),
	}
}

func entryFor(attempt history.Attempt, min audit.Severity) (Entry, bool) {
	issues := attempt.IssuesAtLeast(min)
	if len(issues) == 0 {
		return Entry{}, false
	}
	return Entry{
		Position: attempt.Position,
		ToolID:   attempt.ToolID,
		Round:    attempt.Round,
		Output:   attempt.Output,
		Issues:   issues,
	}, true
}
