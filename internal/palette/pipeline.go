// Package palette is an example pipeline that generates a color palette from
// a short brief:
//
//  1. extract_seed_colors (remote) proposes seed hex colors
//  2. refine_palette (remote) assigns the seeds to named roles
//  3. contrast_report (local) measures each role against the background
package palette

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
	"github.com/dancout/openai-tool-flow-sub001/internal/history"
	"github.com/dancout/openai-tool-flow-sub001/internal/secrets"
	"github.com/dancout/openai-tool-flow-sub001/internal/step"
)

// Positions of the steps in history.
const (
	PositionSeeds    = 1
	PositionPalette  = 2
	PositionContrast = 3
)

// Config tunes the pipeline.
type Config struct {
	// SeedCount is the number of seed colors requested.
	SeedCount int

	SeedRetries   int
	RefineRetries int

	// RefineLimit is the weighted issue score refine_palette may carry and
	// still pass.
	RefineLimit float64

	// Scrubber redacts secrets from step inputs. Nil disables scrubbing.
	Scrubber secrets.Scrubber
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		SeedCount:     5,
		SeedRetries:   2,
		RefineRetries: 2,
		RefineLimit:   6,
	}
}

// ErrEmptyBrief is returned by Input for a blank brief.
var ErrEmptyBrief = errors.New("brief is required")

// Input builds the run input for a brief.
func Input(brief string) (map[string]any, error) {
	brief = strings.TrimSpace(brief)
	if brief == "" {
		return nil, ErrEmptyBrief
	}
	return map[string]any{"brief": brief}, nil
}

// Steps returns the step definitions.
func Steps(cfg Config) []step.Definition {
	var sanitize []step.Option
	if cfg.Scrubber != nil {
		sanitize = append(sanitize, step.WithInputSanitizer(secrets.SanitizeFunc(cfg.Scrubber)))
	}

	seeds := step.Remote(ToolExtractSeedColors, seedInput(cfg.SeedCount), append([]step.Option{
		step.WithDescription("Propose seed colors for a palette matching the brief."),
		step.WithOutputSchema(seedSchema),
		step.WithChecks(HexCheck, MinColorsCheck),
		step.WithMaxRetries(cfg.SeedRetries),
		step.WithStopOnFailure(),
	}, sanitize...)...)

	refine := step.Remote(ToolRefinePalette, paletteInput, append([]step.Option{
		step.WithDescription("Assign the seed colors to palette roles and pick a background."),
		step.WithOutputSchema(paletteSchema),
		step.WithChecks(MissingRolesCheck, DuplicateCheck),
		step.WithPassCriteria(audit.WeightedThreshold(nil, cfg.RefineLimit)),
		step.WithFailureReason(refineFailureReason),
		step.WithMaxRetries(cfg.RefineRetries),
		step.WithForward(PositionSeeds),
		step.WithMinSeverity(audit.SeverityMedium),
	}, sanitize...)...)

	contrast := step.Local(ToolContrastReport, contrastInput, computeContrast,
		step.WithDescription("Measure WCAG contrast of each role against the background."),
		step.WithChecks(ContrastCheck),
	)

	return []step.Definition{seeds, refine, contrast}
}

func seedInput(count int) step.InputBuilder {
	return func(h history.Reader) (map[string]any, error) {
		seed, err := history.OutputAt[SeedColors](h, 0)
		if err != nil {
			return nil, fmt.Errorf("reading brief: %w", err)
		}
		return map[string]any{
			"brief": seed.Brief,
			"count": count,
		}, nil
	}
}

func paletteInput(h history.Reader) (map[string]any, error) {
	brief, err := history.OutputAt[SeedColors](h, 0)
	if err != nil {
		return nil, fmt.Errorf("reading brief: %w", err)
	}
	seeds, err := history.OutputAt[SeedColors](h, PositionSeeds)
	if err != nil {
		return nil, fmt.Errorf("reading seed colors: %w", err)
	}
	return map[string]any{
		"brief": brief.Brief,
		"seeds": seeds.Colors,
		"roles": RequiredRoles,
	}, nil
}

func contrastInput(h history.Reader) (map[string]any, error) {
	p, err := history.OutputAt[Palette](h, PositionPalette)
	if err != nil {
		return nil, fmt.Errorf("reading palette: %w", err)
	}
	return p.ToMap(), nil
}

// computeContrast is the local contrast_report step.
func computeContrast(_ context.Context, input map[string]any) (map[string]any, error) {
	background, _ := input["background"].(string)
	roles, _ := input["roles"].(map[string]any)
	p := Palette{Background: background, Roles: make(map[string]string, len(roles))}
	for role, v := range roles {
		hex, _ := v.(string)
		p.Roles[role] = hex
	}

	report := ContrastReport{Background: background, Pairs: []ContrastPair{}}
	if !ValidHex(background) {
		return report.ToMap(), nil
	}
	// Invalid role colors were already flagged by refine_palette's checks.
	for _, role := range p.SortedRoles() {
		ratio, err := ContrastRatio(p.Roles[role], background)
		if err != nil {
			continue
		}
		ratio = roundRatio(ratio)
		report.Pairs = append(report.Pairs, ContrastPair{Role: role, Hex: p.Roles[role], Ratio: ratio})
		if report.MinRatio == 0 || ratio < report.MinRatio {
			report.MinRatio = ratio
		}
	}
	return report.ToMap(), nil
}

func refineFailureReason(issues []audit.Issue) string {
	score := audit.WeightedScore(issues, audit.DefaultWeights())
	return fmt.Sprintf("palette issue score %.0f over limit: %s", score, audit.Describe(issues))
}

var seedSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"colors": map[string]any{
			"type":        "array",
			"description": "Seed colors as #RRGGBB hex codes",
			"items":       map[string]any{"type": "string", "pattern": "^#[0-9a-fA-F]{6}$"},
		},
	},
	"required": []string{"colors"},
}

var paletteSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name":       map[string]any{"type": "string", "description": "Short evocative palette name"},
		"background": map[string]any{"type": "string", "description": "Background color as #RRGGBB"},
		"roles": map[string]any{
			"type":        "object",
			"description": "Role name to #RRGGBB color; must include primary, secondary, accent and text",
			"additionalProperties": map[string]any{
				"type": "string",
			},
		},
	},
	"required": []string{"name", "background", "roles"},
}
