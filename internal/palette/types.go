package palette

import (
	"sort"
	"strings"

	"github.com/dancout/openai-tool-flow-sub001/internal/registry"
)

// Tool identifiers of the pipeline steps.
const (
	ToolExtractSeedColors = "extract_seed_colors"
	ToolRefinePalette     = "refine_palette"
	ToolContrastReport    = "contrast_report"
)

// RequiredRoles are the roles every refined palette must assign.
var RequiredRoles = []string{"primary", "secondary", "accent", "text"}

// SeedColors is the output of extract_seed_colors. The run input decodes
// into it as well, carrying only the brief.
type SeedColors struct {
	Brief  string   `json:"brief"`
	Colors []string `json:"colors"`
}

// ToMap implements registry.Output.
func (s SeedColors) ToMap() map[string]any {
	return map[string]any{
		"brief":  s.Brief,
		"colors": s.Colors,
	}
}

// Palette is the output of refine_palette.
type Palette struct {
	Name       string            `json:"name"`
	Background string            `json:"background"`
	Roles      map[string]string `json:"roles"`
}

// ToMap implements registry.Output.
func (p Palette) ToMap() map[string]any {
	roles := make(map[string]any, len(p.Roles))
	for role, hex := range p.Roles {
		roles[role] = hex
	}
	return map[string]any{
		"name":       p.Name,
		"background": p.Background,
		"roles":      roles,
	}
}

// SortedRoles returns the role names in lexical order.
func (p Palette) SortedRoles() []string {
	roles := make([]string, 0, len(p.Roles))
	for role := range p.Roles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// ContrastPair is the contrast of one role color against the background.
type ContrastPair struct {
	Role  string  `json:"role"`
	Hex   string  `json:"hex"`
	Ratio float64 `json:"ratio"`
}

// ContrastReport is the output of contrast_report.
type ContrastReport struct {
	Background string         `json:"background"`
	Pairs      []ContrastPair `json:"pairs"`
	MinRatio   float64        `json:"min_ratio"`
}

// ToMap implements registry.Output.
func (c ContrastReport) ToMap() map[string]any {
	pairs := make([]map[string]any, len(c.Pairs))
	for i, p := range c.Pairs {
		pairs[i] = map[string]any{"role": p.Role, "hex": p.Hex, "ratio": p.Ratio}
	}
	return map[string]any{
		"background": c.Background,
		"pairs":      pairs,
		"min_ratio":  c.MinRatio,
	}
}

// Register adds the pipeline decoders to r.
func Register(r *registry.Registry) error {
	if err := registry.Register(r, ToolExtractSeedColors, decodeSeedColors); err != nil {
		return err
	}
	if err := registry.Register(r, ToolRefinePalette, decodePalette); err != nil {
		return err
	}
	return registry.Register(r, ToolContrastReport, registry.StructDecoder[ContrastReport]())
}

// NewRegistry returns a registry holding only the pipeline decoders.
func NewRegistry() (*registry.Registry, error) {
	r := registry.New()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}

var (
	seedDecoder    = registry.StructDecoder[SeedColors]()
	paletteDecoder = registry.StructDecoder[Palette]()
)

// decodeSeedColors normalises hex codes so checks compare like with like.
func decodeSeedColors(raw map[string]any, round int) (SeedColors, error) {
	s, err := seedDecoder(raw, round)
	if err != nil {
		return s, err
	}
	for i, c := range s.Colors {
		s.Colors[i] = normalizeHex(c)
	}
	return s, nil
}

func decodePalette(raw map[string]any, round int) (Palette, error) {
	p, err := paletteDecoder(raw, round)
	if err != nil {
		return p, err
	}
	p.Background = normalizeHex(p.Background)
	roles := make(map[string]string, len(p.Roles))
	for role, hex := range p.Roles {
		roles[strings.ToLower(strings.TrimSpace(role))] = normalizeHex(hex)
	}
	p.Roles = roles
	return p, nil
}

func normalizeHex(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
