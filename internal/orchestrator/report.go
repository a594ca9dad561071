package orchestrator

import (
	"fmt"
	"strings"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
)

// UsageScope selects which attempts count towards the usage summary.
type UsageScope string

const (
	// UsageAllAttempts counts every attempt, including failed rounds
	UsageAllAttempts UsageScope = "all"

	// UsageFinalAttempts counts only each position's final attempt
	UsageFinalAttempts UsageScope = "final"
)

// ParseUsageScope parses "all" or "final". An empty string means all.
func ParseUsageScope(s string) (UsageScope, error) {
	switch UsageScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", UsageAllAttempts:
		return UsageAllAttempts, nil
	case UsageFinalAttempts:
		return UsageFinalAttempts, nil
	default:
		return "", fmt.Errorf("unknown usage scope %q: must be %q or %q", s, UsageAllAttempts, UsageFinalAttempts)
	}
}

// UsageSummary breaks token usage down by history position.
type UsageSummary struct {
	Scope UsageScope `json:"scope"`

	// ByPosition is indexed like the history; index 0 is the seed and is
	// always zero.
	ByPosition []history.Usage `json:"by_position"`
	Total      history.Usage   `json:"total"`
}

// Report is the result of one run.
type Report struct {
	RunID string `json:"run_id"`

	// History holds every attempt per position, or only the final attempt
	// when the run used WithFinalAttemptsOnly.
	History   [][]history.Attempt `json:"history"`
	FinalOnly bool                `json:"final_only"`

	// Finals holds the final attempt of each position that has one, seed
	// first.
	Finals []history.Attempt `json:"finals"`

	// Passed is true when every step's final attempt passed its audit.
	Passed bool `json:"passed"`

	// Halted is set when a step with StopOnFailure exhausted its retries;
	// HaltedAt is that step's position.
	Halted   bool `json:"halted"`
	HaltedAt int  `json:"halted_at,omitempty"`

	Usage UsageSummary `json:"usage"`
}

// newReport assembles the report from the run's history.
func newReport(runID string, h *history.History, steps int, opts runOptions, haltedAt int) *Report {
	r := &Report{
		RunID:     runID,
		FinalOnly: opts.finalOnly,
		Finals:    h.Finals(),
		Halted:    haltedAt > 0,
		HaltedAt:  haltedAt,
		Usage:     summarizeUsage(h, opts.usageScope),
	}
	if opts.finalOnly {
		r.History = h.FinalOnly()
	} else {
		r.History = h.All()
	}

	r.Passed = !r.Halted
	for position := 1; position <= steps; position++ {
		final, ok := h.Final(position)
		if !ok || !final.Passed() {
			r.Passed = false
			break
		}
	}
	return r
}

// summarizeUsage sums usage per position over the attempts selected by scope.
func summarizeUsage(h *history.History, scope UsageScope) UsageSummary {
	summary := UsageSummary{
		Scope:      scope,
		ByPosition: make([]history.Usage, h.Len()),
	}
	for position := 1; position < h.Len(); position++ {
		var attempts []history.Attempt
		if scope == UsageFinalAttempts {
			if final, ok := h.Final(position); ok {
				attempts = []history.Attempt{final}
			}
		} else {
			attempts = h.Attempts(position)
		}
		for _, attempt := range attempts {
			summary.ByPosition[position] = summary.ByPosition[position].Add(attempt.Usage)
		}
		summary.Total = summary.Total.Add(summary.ByPosition[position])
	}
	return summary
}

// Issues returns every issue recorded in the report's history, in position
// and round order. It is derived on each call.
func (r *Report) Issues() []audit.Issue {
	issues := []audit.Issue{}
	for _, attempts := range r.History {
		for _, attempt := range attempts {
			issues = append(issues, attempt.Issues()...)
		}
	}
	return issues
}

// FinalIssues returns the issues of the final attempts only.
func (r *Report) FinalIssues() []audit.Issue {
	issues := []audit.Issue{}
	for _, final := range r.Finals {
		issues = append(issues, final.Issues()...)
	}
	return issues
}

// Final returns the final attempt recorded at position.
func (r *Report) Final(position int) (history.Attempt, bool) {
	if position < 0 || position >= len(r.History) {
		return history.Attempt{}, false
	}
	attempts := r.History[position]
	if len(attempts) == 0 {
		return history.Attempt{}, false
	}
	return attempts[len(attempts)-1], true
}

// Attempts returns the number of attempts recorded at position.
func (r *Report) Attempts(position int) int {
	if position < 0 || position >= len(r.History) {
		return 0
	}
	return len(r.History[position])
}

func (r *Report) outcome() string {
	switch {
	case r.Halted:
		return outcomeHalted
	case r.Passed:
		return outcomePassed
	default:
		return outcomeFailed
	}
}
