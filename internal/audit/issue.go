package audit

import (
	"fmt"
	"strings"
)

// Severity indicates how serious an issue is. Severities are ordered:
// SeverityLow < SeverityMedium < SeverityHigh < SeverityCritical.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// AllSeverities returns every severity in ascending order.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// String returns the lowercase severity name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s >= min
}

// ParseSeverity parses a severity name (case-insensitive).
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Issue is a structured defect record raised by a check against one output.
// Issues are always carried by the attempt that produced them.
type Issue struct {
	ID          string         `json:"id"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Context     map[string]any `json:"context,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Round       int            `json:"round"`
}

// ToMap renders the issue for forwarding to a generation service.
func (i Issue) ToMap() map[string]any {
	m := map[string]any{
		"id":          i.ID,
		"severity":    i.Severity.String(),
		"description": i.Description,
		"round":       i.Round,
	}
	if len(i.Context) > 0 {
		m["context"] = i.Context
	}
	if len(i.Suggestions) > 0 {
		m["suggestions"] = i.Suggestions
	}
	return m
}

// Filter returns the issues at or above min, preserving order.
func Filter(issues []Issue, min Severity) []Issue {
	filtered := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.Severity.AtLeast(min) {
			filtered = append(filtered, issue)
		}
	}
	return filtered
}

// CountBySeverity tallies issues per severity.
func CountBySeverity(issues []Issue) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	return counts
}

// HighestSeverity returns the most severe level present and false when
// issues is empty.
func HighestSeverity(issues []Issue) (Severity, bool) {
	if len(issues) == 0 {
		return SeverityLow, false
	}
	highest := issues[0].Severity
	for _, issue := range issues[1:] {
		if issue.Severity > highest {
			highest = issue.Severity
		}
	}
	return highest, true
}
