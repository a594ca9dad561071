package generation

import (
	"context"
	"errors"

	"github.com/dancout/openai-tool-flow-sub001/internal/forwarding"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
)

var (
	// ErrEmptyResponse indicates the service returned no choices
	ErrEmptyResponse = errors.New("generation returned no choices")

	// ErrMalformedOutput indicates the returned data is not a JSON object
	ErrMalformedOutput = errors.New("generation output is not a JSON object")

	// ErrInvalidConfig indicates invalid adapter configuration
	ErrInvalidConfig = errors.New("invalid generation configuration")
)

// Request is everything a collaborator needs to produce one step output.
type Request struct {
	ToolID       string
	Description  string
	Model        string
	Input        map[string]any
	OutputSchema map[string]any
	MaxTokens    int
	Temperature  *float64

	// Round is the zero-based attempt counter of the step.
	Round int

	// Context carries filtered earlier results (Prior) and this step's own
	// earlier rounds (Retries).
	Context forwarding.Context
}

// Response is the unstructured result of one invocation.
type Response struct {
	Output map[string]any
	Usage  history.Usage
}

// Collaborator produces raw step output. Implementations own deadlines;
// any error they return is treated as a retryable invocation fault.
type Collaborator interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Collaborator.
type Func func(ctx context.Context, req Request) (*Response, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

var _ Collaborator = Func(nil)
