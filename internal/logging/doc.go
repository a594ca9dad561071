// Package logging provides structured logging for toolflow.
//
// It wraps Zap with:
//   - a Trace level (-2, below Debug) for full generation payloads
//   - stderr output (stdout is reserved for run reports) and an optional
//     OpenTelemetry bridge
//   - correlation fields pulled from the context: trace_id, span_id, run.id,
//     step.position and step.tool
//   - key and pattern based secret redaction
//   - sampling below error level
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithStep(ctx, logging.Step{Position: 1, ToolID: "extract_seed_colors"})
//	logger.Info(ctx, "step accepted", zap.Int("round", 2))
//
// # Testing
//
//	tl := logging.NewTestLogger()
//	flow.Run(logging.WithLogger(ctx, tl.Logger), input)
//	tl.AssertLogged(t, zapcore.WarnLevel, "retrying step")
package logging
