package secrets

import (
	"slices"
	"time"
)

// Result is the outcome of one scrubbing pass.
type Result struct {
	Original string `json:"-"`
	Scrubbed string `json:"scrubbed"`

	// Findings never include the matched value
	Findings []Finding `json:"findings,omitempty"`

	Duration      time.Duration  `json:"duration"`
	TotalFindings int            `json:"total_findings"`
	ByRule        map[string]int `json:"by_rule,omitempty"`
}

// Finding is one detected secret.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	StartIndex  int    `json:"start_index"`
	EndIndex    int    `json:"end_index"`
	Line        int    `json:"line,omitempty"`

	// Path locates the value inside a structured payload, e.g. "brief" or
	// "notes[2]". Empty for plain text.
	Path string `json:"path,omitempty"`
}

func newResult(content string) *Result {
	return &Result{
		Original: content,
		Scrubbed: content,
		Findings: make([]Finding, 0),
		ByRule:   make(map[string]int),
	}
}

// HasFindings returns true if any secrets were found.
func (r *Result) HasFindings() bool {
	return r.TotalFindings > 0
}

// RuleIDs returns the sorted unique rule ids that matched.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// merge folds other's findings into r, tagging them with path.
func (r *Result) merge(other *Result, path string) {
	for _, f := range other.Findings {
		f.Path = path
		r.Findings = append(r.Findings, f)
	}
	for id, n := range other.ByRule {
		r.ByRule[id] += n
	}
	r.TotalFindings += other.TotalFindings
	r.Duration += other.Duration
}

// Summary returns a brief summary of findings.
func (r *Result) Summary() string {
	if !r.HasFindings() {
		return "no secrets detected"
	}
	for _, severity := range []string{"high", "medium", "low"} {
		for _, f := range r.Findings {
			if f.Severity == severity {
				return "secrets redacted (" + severity + " severity)"
			}
		}
	}
	return "secrets redacted"
}
