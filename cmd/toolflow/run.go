package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dancout/openai-tool-flow-sub001/internal/config"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/orchestrator"
	"github.com/dancout/openai-tool-flow-sub001/internal/telemetry"
)

// errNotPassed is returned after the report is printed for runs that did not
// pass, so the exit status reflects the outcome.
var errNotPassed = errors.New("flow did not pass")

type runOptions struct {
	input       string
	finalOnly   bool
	usage       string
	metricsFile string
	progress    bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline and print its report as JSON",
		Long: `Run a pipeline and print the flow report as JSON on stdout.

--input takes a JSON object, @path to a file holding one, or plain text
that the pipeline turns into its input.

Examples:
  toolflow run palette --input "calm harbor at dawn"
  toolflow run palette --input '{"brief":"desert sunset"}' --usage final
  toolflow run palette --input @brief.json --metrics-file run.prom`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: pipelineNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, root, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.input, "input", "", "run input: JSON object, @file, or plain text")
	cmd.Flags().BoolVar(&opts.finalOnly, "final-only", false, "report only the final attempt of each step")
	cmd.Flags().StringVar(&opts.usage, "usage", "", "usage scope: all or final (default from config)")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "print step progress to stderr")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runPipeline(cmd *cobra.Command, root *rootOptions, opts *runOptions, name string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := lookupPipeline(name)
	if err != nil {
		return err
	}

	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	if opts.finalOnly {
		cfg.Flow.FinalOnly = true
	}
	if opts.usage != "" {
		cfg.Flow.UsageScope = strings.ToLower(opts.usage)
	}
	scope, err := orchestrator.ParseUsageScope(cfg.Flow.UsageScope)
	if err != nil {
		return err
	}

	input, err := parseInput(opts.input, p)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return err
	}
	defer func() {
		_ = tel.Shutdown(context.Background())
	}()

	logger, err := newLogger(cfg, tel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()
	if derr := tel.Degraded(); derr != nil {
		logger.Warn(ctx, "telemetry degraded", zap.Error(derr))
	}

	scrubber, err := newScrubber(cfg)
	if err != nil {
		return err
	}
	collab, err := newCollaborator(cfg, logger, scrubber)
	if err != nil {
		return err
	}
	reg, err := p.registry()
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(promReg, tel.Meter("toolflow"), logger.Underlying())

	flowOpts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithTelemetry(tel),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithDefaultModel(cfg.Provider.Model),
		orchestrator.WithDefaultRetryDelay(cfg.Flow.RetryDelay.Duration()),
	}
	if opts.progress {
		flowOpts = append(flowOpts, orchestrator.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}
	flow, err := orchestrator.NewFlow(reg, collab, p.steps(scrubber), flowOpts...)
	if err != nil {
		return err
	}

	runOpts := []orchestrator.RunOption{orchestrator.WithUsageScope(scope)}
	if cfg.Flow.FinalOnly {
		runOpts = append(runOpts, orchestrator.WithFinalAttemptsOnly())
	}
	report, err := flow.Run(ctx, input, runOpts...)
	if err != nil {
		return err
	}

	if opts.metricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.metricsFile, promReg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	if !report.Passed {
		if report.Halted {
			return fmt.Errorf("%w: halted at position %d", errNotPassed, report.HaltedAt)
		}
		return errNotPassed
	}
	return nil
}

// parseInput reads --input. A leading @ names a file; content starting with
// { is a JSON object; anything else goes through the pipeline's input builder.
func parseInput(raw string, p pipeline) (map[string]any, error) {
	if strings.HasPrefix(raw, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("reading input file: %w", err)
		}
		raw = string(data)
	}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return p.input(trimmed)
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return nil, fmt.Errorf("parsing input JSON: %w", err)
	}
	return input, nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry, w io.Writer) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logCfg.Output.Writer = w
	logCfg.Output.OTEL = tel.IsEnabled()
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

func progressPrinter(w io.Writer) orchestrator.ProgressCallback {
	return func(p orchestrator.Progress) {
		line := fmt.Sprintf("[%d %s round %d] %s", p.Position, p.ToolID, p.Round, p.State)
		if p.Message != "" {
			line += ": " + p.Message
		}
		fmt.Fprintln(w, line)
	}
}
