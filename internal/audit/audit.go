package audit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// Check validates one decoded output and reports its defects.
//
// A check only receives the typed output, never the attempt that carries it,
// so the same check can be shared by every step producing that output type.
type Check interface {
	// Name returns the check identifier
	Name() string

	// Run inspects the output. An error means the check could not be applied
	// at all (for example the output is not the type the check expects).
	Run(out registry.Typed) ([]Issue, error)
}

// PassFunc decides whether a set of issues is acceptable.
type PassFunc func(issues []Issue) bool

// ReasonFunc explains why a set of issues was not acceptable.
type ReasonFunc func(issues []Issue) string

// funcCheck adapts a typed function to Check.
type funcCheck[T registry.Output] struct {
	name string
	fn   func(T) []Issue
}

// Func creates a Check from a function over the concrete output type T.
// The output is downcast with registry.As before fn runs.
func Func[T registry.Output](name string, fn func(T) []Issue) Check {
	return &funcCheck[T]{name: name, fn: fn}
}

// Name returns the check identifier
func (c *funcCheck[T]) Name() string {
	return c.name
}

// Run downcasts the output and applies the check function.
func (c *funcCheck[T]) Run(out registry.Typed) ([]Issue, error) {
	v, err := registry.As[T](out)
	if err != nil {
		return nil, fmt.Errorf("check %s: %w", c.name, err)
	}
	return c.fn(v), nil
}

// Engine runs a fixed list of checks against outputs.
type Engine struct {
	checks []Check
}

// NewEngine creates an engine over the given checks.
func NewEngine(checks ...Check) *Engine {
	return &Engine{checks: checks}
}

// Len returns the number of checks.
func (e *Engine) Len() int {
	return len(e.checks)
}

// Run applies every check in order and concatenates their issues. Each issue
// is stamped with round, and issues without an ID get "<check>-<n>".
func (e *Engine) Run(out registry.Typed, round int) ([]Issue, error) {
	var all []Issue
	for _, check := range e.checks {
		issues, err := check.Run(out)
		if err != nil {
			return nil, fmt.Errorf("check %s failed: %w", check.Name(), err)
		}
		// Stamp a copy; checks may return shared slices.
		stamped := append([]Issue(nil), issues...)
		for i := range stamped {
			stamped[i].Round = round
			if stamped[i].ID == "" {
				stamped[i].ID = fmt.Sprintf("%s-%d", check.Name(), i+1)
			}
		}
		all = append(all, stamped...)
	}
	if all == nil {
		all = []Issue{}
	}
	return all, nil
}

// DefaultPass passes when no issue is critical.
func DefaultPass(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity.AtLeast(SeverityCritical) {
			return false
		}
	}
	return true
}

// DefaultWeights are the per-severity weights used by WeightedThreshold when
// no weights are supplied.
func DefaultWeights() map[Severity]float64 {
	return map[Severity]float64{
		SeverityLow:      1,
		SeverityMedium:   3,
		SeverityHigh:     7,
		SeverityCritical: 15,
	}
}

// WeightedScore sums the weight of every issue.
func WeightedScore(issues []Issue, weights map[Severity]float64) float64 {
	var score float64
	for _, issue := range issues {
		score += weights[issue.Severity]
	}
	return score
}

// WeightedThreshold passes while the weighted issue score stays at or below
// limit. A nil weights map uses DefaultWeights.
func WeightedThreshold(weights map[Severity]float64, limit float64) PassFunc {
	if weights == nil {
		weights = DefaultWeights()
	}
	return func(issues []Issue) bool {
		return WeightedScore(issues, weights) <= limit
	}
}

// DefaultFailureReason summarises the issues by severity, most severe first.
func DefaultFailureReason(issues []Issue) string {
	if len(issues) == 0 {
		return "audit failed without issues"
	}
	counts := CountBySeverity(issues)
	severities := make([]Severity, 0, len(counts))
	for s := range counts {
		severities = append(severities, s)
	}
	sort.Slice(severities, func(i, j int) bool { return severities[i] > severities[j] })

	parts := make([]string, 0, len(severities))
	for _, s := range severities {
		parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
	}
	return "audit failed: " + strings.Join(parts, ", ")
}

// Describe renders issues as "[severity] id: description" joined by "; ".
func Describe(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", issue.Severity, issue.ID, issue.Description))
	}
	return strings.Join(parts, "; ")
}
