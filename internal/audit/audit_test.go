package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

type palette struct {
	Colors []string `json:"colors"`
}

func (p palette) ToMap() map[string]any {
	return map[string]any{"colors": p.Colors}
}

type other struct{}

func (other) ToMap() map[string]any { return nil }

func newPalette(t *testing.T, colors ...string) registry.Typed {
	t.Helper()
	r := registry.New()
	registry.MustRegister(r, "palette", func(raw map[string]any, round int) (palette, error) {
		return palette{Colors: colors}, nil
	})
	out, err := r.Create("palette", map[string]any{}, 0)
	require.NoError(t, err)
	return out
}

var minColors = Func[palette]("min-colors", func(p palette) []Issue {
	if len(p.Colors) < 3 {
		return []Issue{{Severity: SeverityHigh, Description: "fewer than 3 colors"}}
	}
	return nil
})

var noDuplicates = Func[palette]("duplicates", func(p palette) []Issue {
	seen := map[string]bool{}
	var issues []Issue
	for _, c := range p.Colors {
		if seen[c] {
			issues = append(issues, Issue{ID: "dup-" + c, Severity: SeverityMedium, Description: c + " repeats"})
		}
		seen[c] = true
	}
	return issues
})

func TestSeverity_Ordering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))
	assert.Equal(t, []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}, AllSeverities())
	assert.False(t, Severity(9).Valid())
	assert.Equal(t, "severity(9)", Severity(9).String())
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		input   string
		want    Severity
		wantErr bool
	}{
		{"low", SeverityLow, false},
		{"MEDIUM", SeverityMedium, false},
		{" high ", SeverityHigh, false},
		{"critical", SeverityCritical, false},
		{"fatal", SeverityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIssue_JSON(t *testing.T) {
	data, err := json.Marshal(Issue{ID: "a", Severity: SeverityHigh, Description: "d", Round: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","severity":"high","description":"d","round":1}`, string(data))

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(`{"id":"b","severity":"critical"}`), &issue))
	assert.Equal(t, SeverityCritical, issue.Severity)

	_, err = json.Marshal(Issue{Severity: Severity(7)})
	assert.Error(t, err)
}

func TestIssue_ToMap(t *testing.T) {
	m := Issue{
		ID:          "contrast-1",
		Severity:    SeverityMedium,
		Description: "low contrast",
		Context:     map[string]any{"ratio": 3.1},
		Suggestions: []string{"darken the text"},
		Round:       2,
	}.ToMap()

	assert.Equal(t, "medium", m["severity"])
	assert.Equal(t, 2, m["round"])
	assert.Equal(t, map[string]any{"ratio": 3.1}, m["context"])
	assert.Equal(t, []string{"darken the text"}, m["suggestions"])

	bare := Issue{ID: "x"}.ToMap()
	assert.NotContains(t, bare, "context")
	assert.NotContains(t, bare, "suggestions")
}

func TestFilter(t *testing.T) {
	issues := []Issue{
		{ID: "l", Severity: SeverityLow},
		{ID: "c", Severity: SeverityCritical},
		{ID: "m", Severity: SeverityMedium},
		{ID: "h", Severity: SeverityHigh},
	}

	tests := []struct {
		min  Severity
		want []string
	}{
		{SeverityLow, []string{"l", "c", "m", "h"}},
		{SeverityMedium, []string{"c", "m", "h"}},
		{SeverityHigh, []string{"c", "h"}},
		{SeverityCritical, []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.min.String(), func(t *testing.T) {
			var ids []string
			for _, issue := range Filter(issues, tt.min) {
				ids = append(ids, issue.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	assert.NotNil(t, Filter(nil, SeverityLow))
}

func TestCountAndHighest(t *testing.T) {
	issues := []Issue{{Severity: SeverityLow}, {Severity: SeverityHigh}, {Severity: SeverityLow}}

	assert.Equal(t, map[Severity]int{SeverityLow: 2, SeverityHigh: 1}, CountBySeverity(issues))

	highest, ok := HighestSeverity(issues)
	assert.True(t, ok)
	assert.Equal(t, SeverityHigh, highest)

	_, ok = HighestSeverity(nil)
	assert.False(t, ok)
}

func TestEngine_Run(t *testing.T) {
	engine := NewEngine(minColors, noDuplicates)
	assert.Equal(t, 2, engine.Len())

	issues, err := engine.Run(newPalette(t, "#111111", "#111111"), 3)
	require.NoError(t, err)

	require.Len(t, issues, 2)
	assert.Equal(t, "min-colors-1", issues[0].ID)
	assert.Equal(t, SeverityHigh, issues[0].Severity)
	assert.Equal(t, "dup-#111111", issues[1].ID, "explicit ids are kept")
	for _, issue := range issues {
		assert.Equal(t, 3, issue.Round)
	}
}

func TestEngine_RunLeavesCheckIssuesUntouched(t *testing.T) {
	shared := []Issue{{Severity: SeverityLow, Description: "always"}}
	fixed := Func[palette]("fixed", func(palette) []Issue { return shared })

	issues, err := NewEngine(fixed).Run(newPalette(t), 3)
	require.NoError(t, err)

	require.Len(t, issues, 1)
	assert.Equal(t, "fixed-1", issues[0].ID)
	assert.Equal(t, 3, issues[0].Round)
	assert.Empty(t, shared[0].ID)
	assert.Zero(t, shared[0].Round)
}

func TestEngine_RunClean(t *testing.T) {
	issues, err := NewEngine(minColors, noDuplicates).Run(newPalette(t, "#111111", "#222222", "#333333"), 0)
	require.NoError(t, err)
	assert.NotNil(t, issues)
	assert.Empty(t, issues)

	issues, err = NewEngine().Run(newPalette(t), 0)
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEngine_TypeMismatch(t *testing.T) {
	wrong := Func[other]("other", func(other) []Issue { return nil })

	_, err := NewEngine(wrong).Run(newPalette(t), 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrTypeMismatch)
	assert.Contains(t, err.Error(), "check other failed")
}

func TestDefaultPass(t *testing.T) {
	assert.True(t, DefaultPass(nil))
	assert.True(t, DefaultPass([]Issue{{Severity: SeverityHigh}, {Severity: SeverityMedium}}))
	assert.False(t, DefaultPass([]Issue{{Severity: SeverityLow}, {Severity: SeverityCritical}}))
}

func TestWeightedThreshold(t *testing.T) {
	tests := []struct {
		name    string
		weights map[Severity]float64
		limit   float64
		issues  []Issue
		want    bool
	}{
		{"no issues", nil, 0, nil, true},
		{"under limit", nil, 10, []Issue{{Severity: SeverityHigh}, {Severity: SeverityLow}}, true},
		{"at limit", nil, 8, []Issue{{Severity: SeverityHigh}, {Severity: SeverityLow}}, true},
		{"over limit", nil, 7, []Issue{{Severity: SeverityHigh}, {Severity: SeverityLow}}, false},
		{"custom weights", map[Severity]float64{SeverityMedium: 5}, 9, []Issue{{Severity: SeverityMedium}, {Severity: SeverityMedium}}, false},
		{"unweighted severity counts zero", map[Severity]float64{SeverityMedium: 5}, 0, []Issue{{Severity: SeverityCritical}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightedThreshold(tt.weights, tt.limit)(tt.issues))
		})
	}

	assert.Equal(t, float64(22), WeightedScore([]Issue{{Severity: SeverityCritical}, {Severity: SeverityHigh}}, DefaultWeights()))
}

func TestDefaultFailureReason(t *testing.T) {
	assert.Equal(t, "audit failed without issues", DefaultFailureReason(nil))
	assert.Equal(t, "audit failed: 1 critical, 2 low", DefaultFailureReason([]Issue{
		{Severity: SeverityLow}, {Severity: SeverityCritical}, {Severity: SeverityLow},
	}))
}

func TestDescribe(t *testing.T) {
	got := Describe([]Issue{
		{ID: "a", Severity: SeverityHigh, Description: "first"},
		{ID: "b", Severity: SeverityLow, Description: "second"},
	})
	assert.Equal(t, "[high] a: first; [low] b: second", got)
}
