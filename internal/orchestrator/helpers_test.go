package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
	"github.com/dancout/openai-tool-flow-sub001/internal/step"
)

type draft struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

func (d draft) ToMap() map[string]any {
	return map[string]any{"text": d.Text, "score": d.Score}
}

type summary struct {
	Words int `json:"words"`
}

func (s summary) ToMap() map[string]any {
	return map[string]any{"words": s.Words}
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, registry.Register(reg, "draft", registry.StructDecoder[draft]()))
	require.NoError(t, registry.Register(reg, "summary", registry.StructDecoder[summary]()))
	return reg
}

// scoreCheck raises a critical issue for drafts scoring below 5.
var scoreCheck = audit.Func[draft]("score", func(d draft) []audit.Issue {
	if d.Score < 5 {
		return []audit.Issue{{
			Severity:    audit.SeverityCritical,
			Description: fmt.Sprintf("score %d is below 5", d.Score),
		}}
	}
	return nil
})

// lengthCheck raises a high issue for empty drafts.
var lengthCheck = audit.Func[draft]("length", func(d draft) []audit.Issue {
	if d.Text == "" {
		return []audit.Issue{{Severity: audit.SeverityHigh, Description: "text is empty"}}
	}
	return nil
})

func passThrough(h history.Reader) (map[string]any, error) {
	return map[string]any{"positions": h.Len()}, nil
}

func scored(score int, tokens int) scriptedResponse {
	return scriptedResponse{
		output: map[string]any{"text": "draft text", "score": score},
		usage:  history.Usage{PromptTokens: tokens - 2, CompletionTokens: 2, TotalTokens: tokens},
	}
}

type scriptedResponse struct {
	output map[string]any
	usage  history.Usage
	err    error
}

// scripted replays responses in order and records every request.
type scripted struct {
	responses []scriptedResponse
	requests  []generation.Request
}

func newScripted(responses ...scriptedResponse) *scripted {
	return &scripted{responses: responses}
}

func (s *scripted) Invoke(ctx context.Context, req generation.Request) (*generation.Response, error) {
	s.requests = append(s.requests, req)
	n := len(s.requests)
	if n > len(s.responses) {
		return nil, fmt.Errorf("unexpected call %d for %s", n, req.ToolID)
	}
	r := s.responses[n-1]
	if r.err != nil {
		return nil, r.err
	}
	return &generation.Response{Output: r.output, Usage: r.usage}, nil
}

// MockCollaborator is a mock implementation of generation.Collaborator
type MockCollaborator struct {
	mock.Mock
}

func (m *MockCollaborator) Invoke(ctx context.Context, req generation.Request) (*generation.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generation.Response), args.Error(1)
}

func newTestFlow(t *testing.T, collab generation.Collaborator, steps []step.Definition, opts ...Option) *Flow {
	t.Helper()
	flow, err := NewFlow(newTestRegistry(t), collab, steps, opts...)
	require.NoError(t, err)
	return flow
}

func seedInput() map[string]any {
	return map[string]any{"text": "seed", "score": 10}
}
