package main

import (
	"fmt"
	"sort"

	"github.com/dancout/openai-tool-flow-sub001/internal/config"
	"github.com/dancout/openai-tool-flow-sub001/internal/generation"
	"github.com/dancout/openai-tool-flow-sub001/internal/logging"
	"github.com/dancout/openai-tool-flow-sub001/internal/palette"
	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
	"github.com/dancout/openai-tool-flow-sub001/internal/secrets"
	"github.com/dancout/openai-tool-flow-sub001/internal/step"
)

// pipeline is a named step list the CLI can run.
type pipeline struct {
	description string
	registry    func() (*registry.Registry, error)
	steps       func(scrubber secrets.Scrubber) []step.Definition
	// input turns a plain-text argument into the run input.
	input func(text string) (map[string]any, error)
}

var pipelines = map[string]pipeline{
	"palette": {
		description: "generate a color palette from a brief",
		registry:    palette.NewRegistry,
		steps: func(scrubber secrets.Scrubber) []step.Definition {
			cfg := palette.DefaultConfig()
			cfg.Scrubber = scrubber
			return palette.Steps(cfg)
		},
		input: palette.Input,
	},
}

func pipelineNames() []string {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupPipeline(name string) (pipeline, error) {
	p, ok := pipelines[name]
	if !ok {
		return pipeline{}, fmt.Errorf("unknown pipeline %q (available: %v)", name, pipelineNames())
	}
	return p, nil
}

// newScrubber returns nil when scrubbing is disabled.
func newScrubber(cfg *config.Config) (secrets.Scrubber, error) {
	if !cfg.Scrub.Enabled {
		return nil, nil
	}
	s, err := secrets.New(secrets.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("creating scrubber: %w", err)
	}
	return s, nil
}

// newCollaborator builds the remote generation client. Tests replace it.
var newCollaborator = func(cfg *config.Config, logger *logging.Logger, scrubber secrets.Scrubber) (generation.Collaborator, error) {
	opts := []generation.Option{generation.WithLogger(logger)}
	if scrubber != nil {
		opts = append(opts, generation.WithScrubber(scrubber))
	}
	return generation.NewOpenAI(generation.Config{
		APIKey:            cfg.Provider.APIKey.Value(),
		BaseURL:           cfg.Provider.BaseURL,
		Model:             cfg.Provider.Model,
		Timeout:           cfg.Provider.Timeout.Duration(),
		RequestsPerMinute: cfg.Provider.RequestsPerMinute,
		Burst:             cfg.Provider.Burst,
		MaxTokens:         cfg.Provider.MaxTokens,
		Temperature:       cfg.Provider.Temperature,
	}, opts...)
}
