package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dancout/openai-tool-flow-sub001/internal/config"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/orchestrator"
)

// offline stands in for the remote collaborator when only definitions are
// checked.
var offline = generation.Func(func(context.Context, generation.Request) (*generation.Response, error) {
	return nil, errors.New("collaborator unavailable during validation")
})

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and pipeline definitions",
		Long: `Load the configuration and build every pipeline without calling the
generation service. Exits non-zero on the first problem found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config: ok (model %s, usage scope %s)\n", cfg.Provider.Model, cfg.Flow.UsageScope)
			if !cfg.Provider.APIKey.IsSet() {
				fmt.Fprintln(out, "warning: provider.api_key is not set; run will fail")
			}

			scrubber, err := newScrubber(cfg)
			if err != nil {
				return err
			}
			for _, name := range pipelineNames() {
				p := pipelines[name]
				reg, err := p.registry()
				if err != nil {
					return fmt.Errorf("pipeline %s: %w", name, err)
				}
				flow, err := orchestrator.NewFlow(reg, offline, p.steps(scrubber),
					orchestrator.WithLogger(logging.NewNop()),
					orchestrator.WithDefaultModel(cfg.Provider.Model),
				)
				if err != nil {
					return fmt.Errorf("pipeline %s: %w", name, err)
				}
				fmt.Fprintf(out, "pipeline %s: ok (%d steps) - %s\n", name, flow.Len(), p.description)
			}
			return nil
		},
	}
}
