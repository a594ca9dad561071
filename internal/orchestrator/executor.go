package orchestrator

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/forwarding"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
	"github.com/dancout/openai-tool-flow-sub001/internal/step"
)

// State is a step executor state.
type State string

const (
	StatePending   State = "pending"
	StateInvoking  State = "invoking"
	StateDecoding  State = "decoding"
	StateAuditing  State = "auditing"
	StateAccepted  State = "accepted"
	StateRetrying  State = "retrying"
	StateExhausted State = "exhausted"
)

// Progress reports a state change of the step executor
type Progress struct {
	RunID    string `json:"run_id"`
	Position int    `json:"position"`
	ToolID   string `json:"tool_id"`
	Round    int    `json:"round"`
	State    State  `json:"state"`
	Message  string `json:"message,omitempty"`
}

// ProgressCallback receives progress updates during execution
type ProgressCallback func(progress Progress)

const auditDeferredReason = "audit deferred to final round"

// stepResult holds the attempts made for one position, in round order.
type stepResult struct {
	attempts  []history.Attempt
	exhausted bool
}

// stepRun is the per-position execution state.
type stepRun struct {
	position int
	def      step.Definition
	tag      reflect.Type
	engine   *audit.Engine
	pass     audit.PassFunc
	reason   audit.ReasonFunc
	delay    time.Duration
}

// executor drives one step through invoke, decode and audit rounds.
// It never mutates history; the caller appends the returned attempts.
type executor struct {
	registry     *registry.Registry
	collaborator generation.Collaborator
	defaultModel string
	defaultDelay time.Duration
	logger       *logging.Logger
	metrics      *Metrics
	progress     ProgressCallback
}

// execute runs the step at position until an attempt is accepted or its
// retries are exhausted.
func (e *executor) execute(ctx context.Context, position int, def step.Definition, h history.Reader) (stepResult, error) {
	tag, err := e.registry.Type(def.ToolID)
	if err != nil {
		return stepResult{}, &FlowError{Kind: FaultDecode, Position: position, ToolID: def.ToolID, Err: err}
	}

	run := &stepRun{
		position: position,
		def:      def,
		tag:      tag,
		engine:   audit.NewEngine(def.Checks...),
		pass:     def.Retry.PassFunc(),
		reason:   def.Retry.ReasonFunc(),
		delay:    def.Retry.Delay,
	}
	if run.delay == 0 && !def.Retry.DelaySet {
		run.delay = e.defaultDelay
	}

	e.report(ctx, run, 0, StatePending, "")

	var attempts []history.Attempt
	for round := 0; ; round++ {
		attempt, err := e.attempt(ctx, run, round, h, attempts)
		if err != nil {
			return stepResult{attempts: attempts}, err
		}
		attempts = append(attempts, attempt)
		e.metrics.recordAttempt(ctx, attempt)

		if attempt.Passed() {
			e.report(ctx, run, round, StateAccepted, "")
			e.logger.Debug(ctx, "step attempt accepted",
				zap.Int("round", round),
				zap.Int("issues", len(attempt.Issues())),
			)
			return stepResult{attempts: attempts}, nil
		}

		if round >= def.Retry.MaxRetries {
			e.logger.Error(ctx, "step exhausted retries",
				zap.Int("round", round),
				zap.String("reason", attempt.Outcome.FailureReason),
				zap.Bool("stop_on_failure", def.Retry.StopOnFailure),
			)
			if def.Retry.StopOnFailure {
				e.report(ctx, run, round, StateExhausted, attempt.Outcome.FailureReason)
			} else {
				e.report(ctx, run, round, StateAccepted, "accepted after exhausting retries: "+attempt.Outcome.FailureReason)
			}
			return stepResult{attempts: attempts, exhausted: true}, nil
		}

		if attempt.Outcome.Deferred {
			e.logger.Debug(ctx, "step audit deferred to final round",
				zap.Int("round", round),
				zap.Int("max_retries", def.Retry.MaxRetries),
			)
		} else {
			e.logger.Warn(ctx, "step attempt failed, retrying",
				zap.Int("round", round),
				zap.Int("max_retries", def.Retry.MaxRetries),
				zap.String("reason", attempt.Outcome.FailureReason),
				zap.Duration("delay", run.delay),
			)
		}
		e.report(ctx, run, round, StateRetrying, attempt.Outcome.FailureReason)

		if err := sleepWithContext(ctx, run.delay); err != nil {
			return stepResult{attempts: attempts}, fmt.Errorf("waiting to retry %s: %w", def.ToolID, err)
		}
	}
}

// attempt performs one round. Returned errors abort the run; invocation
// failures come back as a faulted attempt instead.
func (e *executor) attempt(ctx context.Context, run *stepRun, round int, h history.Reader, prior []history.Attempt) (history.Attempt, error) {
	def := run.def
	start := time.Now()

	e.report(ctx, run, round, StateInvoking, "")
	input, err := def.BuildInput(h)
	if err != nil {
		return history.Attempt{}, &FlowError{Kind: FaultInput, Position: run.position, ToolID: def.ToolID, Round: round, Err: err}
	}
	if input == nil {
		return history.Attempt{}, &FlowError{Kind: FaultInput, Position: run.position, ToolID: def.ToolID, Round: round, Err: errNilStepInput}
	}
	if def.SanitizeInput != nil {
		input = def.SanitizeInput(input)
	}

	attempt := history.Attempt{
		Position: run.position,
		ToolID:   def.ToolID,
		Round:    round,
		Input:    input,
	}

	raw, usage, err := e.invoke(ctx, run, round, input, h, prior)
	attempt.Usage = usage
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return history.Attempt{}, fmt.Errorf("invoking %s: %w", def.ToolID, ctxErr)
		}
		e.logger.Warn(ctx, "step invocation failed", zap.Int("round", round), zap.Error(err))

		issues := []audit.Issue{invocationIssue(err, round)}
		attempt.Output = registry.Empty(def.ToolID, run.tag)
		attempt.Fault = err.Error()
		attempt.Outcome = history.Outcome{
			Issues:        issues,
			Passed:        false,
			FailureReason: run.reason(issues),
		}
		attempt.Duration = time.Since(start)
		return attempt, nil
	}

	e.report(ctx, run, round, StateDecoding, "")
	if def.SanitizeOutput != nil {
		raw = def.SanitizeOutput(raw)
	}
	out, err := e.registry.Create(def.ToolID, raw, round)
	if err != nil {
		return history.Attempt{}, &FlowError{Kind: FaultDecode, Position: run.position, ToolID: def.ToolID, Round: round, Err: err}
	}
	attempt.Output = out

	e.report(ctx, run, round, StateAuditing, "")
	outcome, err := e.audit(run, out, round)
	if err != nil {
		return history.Attempt{}, &FlowError{Kind: FaultDecode, Position: run.position, ToolID: def.ToolID, Round: round, Err: err}
	}
	attempt.Outcome = outcome
	attempt.Duration = time.Since(start)
	return attempt, nil
}

// invoke calls the collaborator for remote steps and the local function
// otherwise. Local steps always report zero usage.
func (e *executor) invoke(ctx context.Context, run *stepRun, round int, input map[string]any, h history.Reader, prior []history.Attempt) (map[string]any, history.Usage, error) {
	def := run.def
	if !def.IsRemote() {
		out, err := def.Local(ctx, input)
		if err != nil {
			return nil, history.Usage{}, fmt.Errorf("local step %s: %w", def.ToolID, err)
		}
		return out, history.Usage{}, nil
	}

	model := def.Model
	if model == "" {
		model = e.defaultModel
	}

	resp, err := e.collaborator.Invoke(ctx, generation.Request{
		ToolID:       def.ToolID,
		Description:  def.Description,
		Model:        model,
		Input:        input,
		OutputSchema: def.OutputSchema,
		MaxTokens:    def.MaxTokens,
		Temperature:  def.Temperature,
		Round:        round,
		Context:      forwarding.Select(h, def.Forward, prior, def.MinSeverity),
	})
	if err != nil {
		return nil, history.Usage{}, err
	}
	if resp == nil {
		return nil, history.Usage{}, errNilResponse
	}
	return resp.Output, resp.Usage, nil
}

// audit runs the checks. A step that only audits its last allowed round gets a
// deferred, unaccepted outcome on earlier rounds so the loop moves on.
func (e *executor) audit(run *stepRun, out registry.Typed, round int) (history.Outcome, error) {
	if run.def.Retry.AuditFinalRoundOnly && round < run.def.Retry.MaxRetries {
		return history.Outcome{
			Issues:        []audit.Issue{},
			Passed:        false,
			FailureReason: auditDeferredReason,
			Deferred:      true,
		}, nil
	}

	issues, err := run.engine.Run(out, round)
	if err != nil {
		return history.Outcome{}, err
	}

	outcome := history.Outcome{Issues: issues, Passed: run.pass(issues)}
	if !outcome.Passed {
		outcome.FailureReason = run.reason(issues)
	}
	return outcome, nil
}

// report sends progress updates to the callback
func (e *executor) report(ctx context.Context, run *stepRun, round int, state State, msg string) {
	if e.progress == nil {
		return
	}
	e.progress(Progress{
		RunID:    logging.RunIDFromContext(ctx),
		Position: run.position,
		ToolID:   run.def.ToolID,
		Round:    round,
		State:    state,
		Message:  msg,
	})
}

func invocationIssue(err error, round int) audit.Issue {
	return audit.Issue{
		ID:          InvocationFaultID,
		Severity:    audit.SeverityCritical,
		Description: fmt.Sprintf("invocation failed: %v", err),
		Context:     map[string]any{"error": err.Error()},
		Suggestions: []string{"retry the call", "check the generation service status"},
		Round:       round,
	}
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
