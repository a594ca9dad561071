package palette

import (
	"fmt"

	"github.com/dancout/openai-tool-flow-sub001/internal/audit"
)

// MinSeedColors is the fewest seed colors extract_seed_colors may return.
const MinSeedColors = 3

// HexCheck raises a critical issue for every seed that is not #RRGGBB.
var HexCheck = audit.Func[SeedColors]("hex", func(s SeedColors) []audit.Issue {
	var issues []audit.Issue
	for i, c := range s.Colors {
		if ValidHex(c) {
			continue
		}
		issues = append(issues, audit.Issue{
			ID:          fmt.Sprintf("hex-%d", i),
			Severity:    audit.SeverityCritical,
			Description: fmt.Sprintf("color %q is not a #RRGGBB hex code", c),
			Context:     map[string]any{"index": i, "value": c},
			Suggestions: []string{"use six hex digits prefixed with #"},
		})
	}
	return issues
})

// MinColorsCheck raises a high issue when fewer than MinSeedColors seeds
// were returned.
var MinColorsCheck = audit.Func[SeedColors]("min-colors", func(s SeedColors) []audit.Issue {
	if len(s.Colors) >= MinSeedColors {
		return nil
	}
	return []audit.Issue{{
		Severity:    audit.SeverityHigh,
		Description: fmt.Sprintf("expected at least %d colors, got %d", MinSeedColors, len(s.Colors)),
		Context:     map[string]any{"count": len(s.Colors)},
	}}
})

// DuplicateCheck raises a medium issue for each role reusing a color that an
// earlier role (in lexical order) already uses.
var DuplicateCheck = audit.Func[Palette]("duplicates", func(p Palette) []audit.Issue {
	var issues []audit.Issue
	seen := make(map[string]string, len(p.Roles))
	for _, role := range p.SortedRoles() {
		hex := p.Roles[role]
		if first, ok := seen[hex]; ok {
			issues = append(issues, audit.Issue{
				ID:          "duplicate-" + role,
				Severity:    audit.SeverityMedium,
				Description: fmt.Sprintf("role %s reuses %s from %s", role, hex, first),
				Context:     map[string]any{"role": role, "hex": hex, "first": first},
				Suggestions: []string{"pick a distinct shade for " + role},
			})
			continue
		}
		seen[hex] = role
	}
	return issues
})

// MissingRolesCheck raises a high issue for each required role without a
// valid color.
var MissingRolesCheck = audit.Func[Palette]("roles", func(p Palette) []audit.Issue {
	var issues []audit.Issue
	for _, role := range RequiredRoles {
		hex, ok := p.Roles[role]
		if ok && ValidHex(hex) {
			continue
		}
		issues = append(issues, audit.Issue{
			ID:          "missing-" + role,
			Severity:    audit.SeverityHigh,
			Description: fmt.Sprintf("role %s has no valid color", role),
			Context:     map[string]any{"role": role, "value": hex},
		})
	}
	if !ValidHex(p.Background) {
		issues = append(issues, audit.Issue{
			ID:          "missing-background",
			Severity:    audit.SeverityHigh,
			Description: fmt.Sprintf("background %q is not a #RRGGBB hex code", p.Background),
		})
	}
	return issues
})

// ContrastCheck raises a medium issue for every pair under MinContrast.
var ContrastCheck = audit.Func[ContrastReport]("contrast", func(c ContrastReport) []audit.Issue {
	var issues []audit.Issue
	for _, pair := range c.Pairs {
		if pair.Ratio >= MinContrast {
			continue
		}
		issues = append(issues, audit.Issue{
			ID:          "contrast-" + pair.Role,
			Severity:    audit.SeverityMedium,
			Description: fmt.Sprintf("%s (%s) has contrast %.2f:1 against %s, below %.1f:1", pair.Role, pair.Hex, pair.Ratio, c.Background, MinContrast),
			Context:     map[string]any{"role": pair.Role, "ratio": pair.Ratio},
		})
	}
	return issues
})
