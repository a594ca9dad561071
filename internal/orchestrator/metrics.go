package orchestrator

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/dancout/openai-tool-flow-sub001/internal/history"
)

const instrumentationName = "github.com/dancout/openai-tool-flow-sub001/internal/orchestrator"

// Attempt and run outcome labels.
const (
	outcomePassed   = "passed"
	outcomeFailed   = "failed"
	outcomeDeferred = "deferred"
	outcomeFaulted  = "faulted"
	outcomeHalted   = "halted"
	outcomeError    = "error"
)

// Metrics records flow activity to Prometheus and to an OpenTelemetry meter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts     *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	runs         *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	attemptCounter metric.Int64Counter
	tokenCounter   metric.Int64Counter
	stepHistogram  metric.Float64Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered; a nil meter uses the global meter provider.
func NewMetrics(reg prometheus.Registerer, meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	factory := promauto.With(reg)

	m := &Metrics{
		// Labels: tool, outcome (passed, failed, faulted)
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolflow",
				Subsystem: "step",
				Name:      "attempts_total",
				Help:      "Total number of step attempts by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		// Labels: tool, kind (prompt, completion)
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolflow",
				Subsystem: "step",
				Name:      "tokens_total",
				Help:      "Total number of tokens used by step attempts",
			},
			[]string{"tool", "kind"},
		),
		// Labels: outcome (passed, failed, halted, error)
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "toolflow",
				Subsystem: "flow",
				Name:      "runs_total",
				Help:      "Total number of flow runs by outcome",
			},
			[]string{"outcome"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "toolflow",
				Subsystem: "step",
				Name:      "duration_seconds",
				Help:      "Duration of step execution across all rounds in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"tool"},
		),
	}

	var err error
	m.attemptCounter, err = meter.Int64Counter(
		"toolflow.step.attempts",
		metric.WithDescription("Step attempts labeled by tool and outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		logger.Warn("failed to create attempts counter", zap.Error(err))
	}

	m.tokenCounter, err = meter.Int64Counter(
		"toolflow.step.tokens",
		metric.WithDescription("Tokens used by step attempts labeled by tool"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		logger.Warn("failed to create tokens counter", zap.Error(err))
	}

	m.stepHistogram, err = meter.Float64Histogram(
		"toolflow.step.duration",
		metric.WithDescription("Step duration across all rounds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("failed to create step duration histogram", zap.Error(err))
	}

	return m
}

func (m *Metrics) recordAttempt(ctx context.Context, attempt history.Attempt) {
	if m == nil {
		return
	}
	outcome := attemptOutcome(attempt)
	m.attempts.WithLabelValues(attempt.ToolID, outcome).Inc()
	m.tokens.WithLabelValues(attempt.ToolID, "prompt").Add(float64(attempt.Usage.PromptTokens))
	m.tokens.WithLabelValues(attempt.ToolID, "completion").Add(float64(attempt.Usage.CompletionTokens))

	tool := attribute.String("tool", attempt.ToolID)
	if m.attemptCounter != nil {
		m.attemptCounter.Add(ctx, 1, metric.WithAttributes(tool, attribute.String("outcome", outcome)))
	}
	if m.tokenCounter != nil && attempt.Usage.TotalTokens > 0 {
		m.tokenCounter.Add(ctx, int64(attempt.Usage.TotalTokens), metric.WithAttributes(tool))
	}
}

func (m *Metrics) recordStep(ctx context.Context, toolID string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(toolID).Observe(d.Seconds())
	if m.stepHistogram != nil {
		m.stepHistogram.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", toolID)))
	}
}

func (m *Metrics) recordRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func attemptOutcome(attempt history.Attempt) string {
	switch {
	case attempt.Faulted():
		return outcomeFaulted
	case attempt.Passed():
		return outcomePassed
	case attempt.Outcome.Deferred:
		return outcomeDeferred
	default:
		return outcomeFailed
	}
}
