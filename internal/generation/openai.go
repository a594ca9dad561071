package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/secrets"
)

// ContentGenerator is the part of llms.Model the adapter uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Config configures the OpenAI adapter.
type Config struct {
	APIKey  string
	BaseURL string

	// Model is used when a request does not name one.
	Model string

	// Timeout bounds each call. Zero disables the per-call deadline.
	Timeout time.Duration

	// RequestsPerMinute limits call rate. Zero disables limiting.
	RequestsPerMinute float64
	Burst             int

	// MaxTokens and Temperature apply when the request leaves them unset.
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns adapter defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		Timeout:           60 * time.Second,
		RequestsPerMinute: 60,
		Burst:             1,
		MaxTokens:         1024,
		Temperature:       0.2,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests per minute cannot be negative", ErrInvalidConfig)
	}
	if c.RequestsPerMinute > 0 && c.Burst < 1 {
		return fmt.Errorf("%w: burst must be >= 1 when rate limiting", ErrInvalidConfig)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens cannot be negative", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %f", ErrInvalidConfig, c.Temperature)
	}
	return nil
}

// OpenAI calls an OpenAI-compatible chat completion service through
// langchaingo. Each step is declared as a function tool and the tool choice
// is forced, so the arguments of the tool call are the step output.
type OpenAI struct {
	llm      ContentGenerator
	cfg      Config
	limiter  *rate.Limiter
	scrubber secrets.Scrubber
	logger   *logging.Logger
}

// Option configures the adapter.
type Option func(*OpenAI)

// WithClient replaces the langchaingo client.
func WithClient(llm ContentGenerator) Option {
	return func(o *OpenAI) {
		o.llm = llm
	}
}

// WithScrubber redacts secrets from every outgoing message.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *OpenAI) {
		o.scrubber = s
	}
}

// WithLogger sets the adapter logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *OpenAI) {
		o.logger = l
	}
}

// NewOpenAI creates the adapter. Unless WithClient is given, an API key is
// required.
func NewOpenAI(cfg Config, opts ...Option) (*OpenAI, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &OpenAI{
		cfg:      cfg,
		scrubber: &secrets.NoopScrubber{},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.llm == nil {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
		}
		clientOpts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		o.llm = llm
	}

	if cfg.RequestsPerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60), cfg.Burst)
	}

	return o, nil
}

// Invoke implements Collaborator.
func (o *OpenAI) Invoke(ctx context.Context, req Request) (*Response, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	messages, err := o.buildMessages(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := o.llm.GenerateContent(ctx, messages, o.callOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("generating content for %s: %w", req.ToolID, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", req.ToolID, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	output, err := outputFromChoice(choice)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.ToolID, err)
	}

	usage := usageFromInfo(choice.GenerationInfo)
	o.log(ctx).Debug(ctx, "generation completed",
		zap.String("tool", req.ToolID),
		zap.Int("round", req.Round),
		zap.Int("tokens.total", usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{Output: output, Usage: usage}, nil
}

func (o *OpenAI) log(ctx context.Context) *logging.Logger {
	if o.logger != nil {
		return o.logger
	}
	return logging.FromContext(ctx)
}

func (o *OpenAI) buildMessages(ctx context.Context, req Request) ([]llms.MessageContent, error) {
	system, err := buildSystemText(req)
	if err != nil {
		return nil, err
	}
	user, err := buildUserText(req)
	if err != nil {
		return nil, err
	}

	system = o.scrub(ctx, req.ToolID, system)
	user = o.scrub(ctx, req.ToolID, user)

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}, nil
}

func (o *OpenAI) scrub(ctx context.Context, toolID, text string) string {
	if o.scrubber == nil || !o.scrubber.IsEnabled() {
		return text
	}
	result := o.scrubber.Scrub(text)
	if result.HasFindings() {
		o.log(ctx).Warn(ctx, "redacted secrets from generation request",
			zap.String("tool", toolID),
			zap.Int("findings", result.TotalFindings),
			zap.Strings("rules", result.RuleIDs()),
		)
	}
	return result.Scrubbed
}

func (o *OpenAI) callOptions(req Request) []llms.CallOption {
	model := req.Model
	if model == "" {
		model = o.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.cfg.MaxTokens
	}
	temperature := o.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	schema := req.OutputSchema
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	name := functionName(req.ToolID)

	opts := []llms.CallOption{
		llms.WithModel(model),
		llms.WithTemperature(temperature),
		llms.WithTools([]llms.Tool{{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: req.Description,
				Parameters:  schema,
			},
		}}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: name},
		}),
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return opts
}

// outputFromChoice prefers tool-call arguments and falls back to content.
func outputFromChoice(choice *llms.ContentChoice) (map[string]any, error) {
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil || strings.TrimSpace(call.FunctionCall.Arguments) == "" {
			continue
		}
		return parseObject(call.FunctionCall.Arguments)
	}
	if choice.FuncCall != nil && choice.FuncCall.Arguments != "" {
		return parseObject(choice.FuncCall.Arguments)
	}
	return parseObject(choice.Content)
}

// usageFromInfo reads token counts from generation info.
func usageFromInfo(info map[string]any) history.Usage {
	usage := history.Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

var _ Collaborator = (*OpenAI)(nil)
