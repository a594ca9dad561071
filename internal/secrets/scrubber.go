package secrets

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Scrubber detects and redacts secrets.
type Scrubber interface {
	// Scrub redacts secrets from text.
	Scrub(content string) *Result

	// ScrubMap returns a deep copy of data with every string value scrubbed.
	ScrubMap(data map[string]any) (map[string]any, *Result)

	// IsEnabled returns whether scrubbing is enabled.
	IsEnabled() bool
}

type scrubber struct {
	config *Config
}

type span struct {
	start, end int
}

// New creates a Scrubber. A nil config uses DefaultConfig().
func New(cfg *Config) (Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &scrubber{config: cfg}, nil
}

// MustNew creates a Scrubber, panicking on error.
func MustNew(cfg *Config) Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *scrubber) Scrub(content string) *Result {
	start := time.Now()
	result := newResult(content)
	if !s.config.Enabled || content == "" {
		result.Duration = time.Since(start)
		return result
	}

	var spans []span
	for _, rule := range s.config.compiledRules {
		if !rule.applies(content) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			if s.isAllowed(content[m[0]:m[1]]) {
				continue
			}
			result.Findings = append(result.Findings, Finding{
				RuleID:      rule.ID,
				Description: rule.Description,
				Severity:    rule.Severity,
				StartIndex:  m[0],
				EndIndex:    m[1],
				Line:        strings.Count(content[:m[0]], "\n") + 1,
			})
			result.ByRule[rule.ID]++
			spans = append(spans, span{start: m[0], end: m[1]})
		}
	}
	result.TotalFindings = len(result.Findings)

	if len(spans) > 0 {
		result.Scrubbed = redact(content, mergeSpans(spans), s.config.RedactionString)
	}
	result.Duration = time.Since(start)
	return result
}

func (s *scrubber) ScrubMap(data map[string]any) (map[string]any, *Result) {
	result := newResult("")
	if data == nil {
		return nil, result
	}
	out, _ := s.scrubValue(data, "", result).(map[string]any)
	return out, result
}

func (s *scrubber) scrubValue(v any, path string, result *Result) any {
	switch val := v.(type) {
	case string:
		r := s.Scrub(val)
		if r.HasFindings() {
			result.merge(r, path)
		}
		return r.Scrubbed
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = s.scrubValue(item, joinPath(path, k), result)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.scrubValue(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i], _ = s.scrubValue(item, fmt.Sprintf("%s[%d]", path, i), result).(string)
		}
		return out
	default:
		return v
	}
}

func (s *scrubber) IsEnabled() bool {
	return s.config.Enabled
}

func (s *scrubber) isAllowed(match string) bool {
	for _, pattern := range s.config.compiledAllowList {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

func (r *compiledRule) applies(content string) bool {
	if len(r.keywords) == 0 {
		return true
	}
	for _, kw := range r.keywords {
		if kw.MatchString(content) {
			return true
		}
	}
	return false
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// mergeSpans sorts spans and merges overlapping or adjacent ones.
func mergeSpans(spans []span) []span {
	slices.SortFunc(spans, func(a, b span) int {
		return cmp.Compare(a.start, b.start)
	})
	merged := []span{spans[0]}
	for _, curr := range spans[1:] {
		last := &merged[len(merged)-1]
		if curr.start <= last.end {
			last.end = max(last.end, curr.end)
			continue
		}
		merged = append(merged, curr)
	}
	return merged
}

// redact replaces spans, which must be sorted and disjoint.
func redact(content string, spans []span, replacement string) string {
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		b.WriteString(content[prev:sp.start])
		b.WriteString(replacement)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

// SanitizeFunc adapts a Scrubber to a raw payload rewriter.
func SanitizeFunc(s Scrubber) func(map[string]any) map[string]any {
	return func(raw map[string]any) map[string]any {
		out, _ := s.ScrubMap(raw)
		return out
	}
}

// NoopScrubber leaves content unchanged.
type NoopScrubber struct{}

// Scrub returns content unchanged.
func (n *NoopScrubber) Scrub(content string) *Result {
	return newResult(content)
}

// ScrubMap returns data unchanged.
func (n *NoopScrubber) ScrubMap(data map[string]any) (map[string]any, *Result) {
	return data, newResult("")
}

// IsEnabled returns false.
func (n *NoopScrubber) IsEnabled() bool {
	return false
}

var (
	_ Scrubber = (*scrubber)(nil)
	_ Scrubber = (*NoopScrubber)(nil)
)
