package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
	"github.com/dancout/openai-tool-flow-sub001/internal/step"
	"github.com/dancout/openai-tool-flow-sub001/internal/telemetry"
)

// Flow is a validated, immutable sequence of steps. It holds no per-run
// state and can be reused by sequential, non-overlapping runs.
type Flow struct {
	registry *registry.Registry
	steps    []step.Definition
	exec     *executor
	logger   *logging.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

type flowOptions struct {
	logger       *logging.Logger
	tel          *telemetry.Telemetry
	metrics      *Metrics
	progress     ProgressCallback
	defaultModel string
	defaultDelay time.Duration
}

// Option configures a Flow.
type Option func(*flowOptions)

// WithLogger sets the flow logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *flowOptions) {
		o.logger = l
	}
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *flowOptions) {
		o.tel = t
	}
}

// WithMetrics replaces the default unregistered metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *flowOptions) {
		o.metrics = m
	}
}

// WithProgress sets the progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(o *flowOptions) {
		o.progress = cb
	}
}

// WithDefaultModel sets the model for remote steps that do not name one.
func WithDefaultModel(model string) Option {
	return func(o *flowOptions) {
		o.defaultModel = model
	}
}

// WithDefaultRetryDelay sets the delay for steps that do not set one.
func WithDefaultRetryDelay(d time.Duration) Option {
	return func(o *flowOptions) {
		o.defaultDelay = d
	}
}

// NewFlow validates the steps and builds a flow. Remote steps require a
// collaborator; a flow of local steps may pass nil. Tool registration is
// checked at run time, so the registry may be filled after NewFlow.
func NewFlow(reg *registry.Registry, collaborator generation.Collaborator, steps []step.Definition, opts ...Option) (*Flow, error) {
	if reg == nil {
		return nil, configError(0, "", errors.New("registry is required"))
	}
	if len(steps) == 0 {
		return nil, configError(0, "", errors.New("at least one step is required"))
	}
	for i, def := range steps {
		position := i + 1
		if err := def.Validate(position); err != nil {
			return nil, configError(position, def.ToolID, err)
		}
		if def.IsRemote() && collaborator == nil {
			return nil, configError(position, def.ToolID, fmt.Errorf("%w: remote step requires a collaborator", step.ErrInvalidDefinition))
		}
	}

	var o flowOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.defaultDelay < 0 {
		return nil, configError(0, "", errors.New("default retry delay cannot be negative"))
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil, o.tel.Meter(instrumentationName), o.logger.Underlying())
	}

	logger := o.logger.Named("orchestrator")
	f := &Flow{
		registry: reg,
		steps:    append([]step.Definition(nil), steps...),
		logger:   logger,
		tracer:   o.tel.Tracer(instrumentationName),
		metrics:  o.metrics,
	}
	f.exec = &executor{
		registry:     reg,
		collaborator: collaborator,
		defaultModel: o.defaultModel,
		defaultDelay: o.defaultDelay,
		logger:       logger,
		metrics:      o.metrics,
		progress:     o.progress,
	}
	return f, nil
}

// Len returns the number of steps.
func (f *Flow) Len() int {
	return len(f.steps)
}

type runOptions struct {
	finalOnly  bool
	usageScope UsageScope
}

// RunOption configures a single run.
type RunOption func(*runOptions)

// WithFinalAttemptsOnly prunes the report history to each position's final
// attempt. Usage is still computed before pruning.
func WithFinalAttemptsOnly() RunOption {
	return func(o *runOptions) {
		o.finalOnly = true
	}
}

// WithUsageScope selects which attempts count towards usage.
func WithUsageScope(scope UsageScope) RunOption {
	return func(o *runOptions) {
		o.usageScope = scope
	}
}

// Run executes the flow over input. It returns a report for completed and
// halted runs and an error for decode, input and configuration faults or a
// cancelled context.
func (f *Flow) Run(ctx context.Context, input map[string]any, opts ...RunOption) (*Report, error) {
	ro := runOptions{usageScope: UsageAllAttempts}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.usageScope != UsageAllAttempts && ro.usageScope != UsageFinalAttempts {
		return nil, configError(0, "", fmt.Errorf("unknown usage scope %q", ro.usageScope))
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithLogger(ctx, f.logger)
	ctx, span := f.tracer.Start(ctx, "toolflow.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("flow.steps", len(f.steps)),
	))
	defer span.End()

	start := time.Now()
	f.logger.Info(ctx, "flow run started", zap.Int("steps", len(f.steps)))

	report, err := f.run(ctx, runID, input, ro)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.metrics.recordRun(outcomeError)
		f.logger.Error(ctx, "flow run failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("flow.passed", report.Passed),
		attribute.Bool("flow.halted", report.Halted),
		attribute.Int("flow.tokens.total", report.Usage.Total.TotalTokens),
	)
	f.metrics.recordRun(report.outcome())
	f.logger.Info(ctx, "flow run completed",
		zap.Bool("passed", report.Passed),
		zap.Bool("halted", report.Halted),
		zap.Int("tokens.total", report.Usage.Total.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (f *Flow) run(ctx context.Context, runID string, input map[string]any, opts runOptions) (*Report, error) {
	if input == nil {
		return nil, &FlowError{Kind: FaultInput, Err: errNilRunInput}
	}
	for i, def := range f.steps {
		if !f.registry.Has(def.ToolID) {
			return nil, &FlowError{
				Kind:     FaultDecode,
				Position: i + 1,
				ToolID:   def.ToolID,
				Err:      fmt.Errorf("%w: %s", registry.ErrUnregistered, def.ToolID),
			}
		}
	}

	h, err := f.seed(input)
	if err != nil {
		return nil, err
	}

	haltedAt := 0
	for i, def := range f.steps {
		position := i + 1
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("flow cancelled before position %d: %w", position, err)
		}

		result, err := f.runStep(ctx, position, def, h)
		for _, attempt := range result.attempts {
			if appendErr := h.Append(position, attempt); appendErr != nil {
				return nil, fmt.Errorf("recording attempt: %w", appendErr)
			}
		}
		if err != nil {
			return nil, err
		}

		if result.exhausted && def.Retry.StopOnFailure {
			haltedAt = position
			f.logger.Warn(ctx, "flow halted",
				zap.Int("position", position),
				zap.String("tool", def.ToolID),
				zap.Int("skipped_steps", len(f.steps)-position),
			)
			break
		}
	}

	return newReport(runID, h, len(f.steps), opts, haltedAt), nil
}

// seed decodes the run input through the first step's tool and stores it at
// position 0 with round 0 and zero usage.
func (f *Flow) seed(input map[string]any) (*history.History, error) {
	toolID := f.steps[0].ToolID
	out, err := f.registry.Create(toolID, input, 0)
	if err != nil {
		return nil, &FlowError{Kind: FaultDecode, ToolID: toolID, Err: fmt.Errorf("decoding seed: %w", err)}
	}
	return history.New(history.Attempt{
		ToolID:  toolID,
		Input:   input,
		Output:  out,
		Outcome: history.Outcome{Issues: []audit.Issue{}, Passed: true},
	}, len(f.steps)), nil
}

func (f *Flow) runStep(ctx context.Context, position int, def step.Definition, h history.Reader) (stepResult, error) {
	ctx = logging.WithStep(ctx, logging.Step{Position: position, ToolID: def.ToolID})
	ctx, span := f.tracer.Start(ctx, "toolflow.step", trace.WithAttributes(
		attribute.Int("step.position", position),
		attribute.String("step.tool", def.ToolID),
		attribute.String("step.kind", string(def.Kind)),
	))
	defer span.End()

	start := time.Now()
	f.logger.Debug(ctx, "step started", zap.Int("max_retries", def.Retry.MaxRetries))

	result, err := f.exec.execute(ctx, position, def, h)
	f.metrics.recordStep(ctx, def.ToolID, time.Since(start))

	span.SetAttributes(attribute.Int("step.attempts", len(result.attempts)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	final := result.attempts[len(result.attempts)-1]
	span.SetAttributes(
		attribute.Bool("step.passed", final.Passed()),
		attribute.Bool("step.exhausted", result.exhausted),
	)
	if !final.Passed() {
		span.SetStatus(codes.Error, final.Outcome.FailureReason)
	}
	return result, nil
}
