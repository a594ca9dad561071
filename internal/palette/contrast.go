package palette

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// MinContrast is the WCAG AA ratio for normal text.
const MinContrast = 4.5

var hexPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidHex reports whether s is a #RRGGBB color.
func ValidHex(s string) bool {
	return hexPattern.MatchString(s)
}

// RelativeLuminance returns the WCAG 2 relative luminance of a #RRGGBB color.
func RelativeLuminance(hex string) (float64, error) {
	if !ValidHex(hex) {
		return 0, fmt.Errorf("invalid hex color %q", hex)
	}
	var channels [3]float64
	for i := range channels {
		v, err := strconv.ParseUint(hex[1+2*i:3+2*i], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", hex, err)
		}
		c := float64(v) / 255
		if c <= 0.03928 {
			channels[i] = c / 12.92
		} else {
			channels[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
	return 0.2126*channels[0] + 0.7152*channels[1] + 0.0722*channels[2], nil
}

// ContrastRatio returns the WCAG contrast ratio of two colors, from 1 to 21.
func ContrastRatio(a, b string) (float64, error) {
	la, err := RelativeLuminance(a)
	if err != nil {
		return 0, err
	}
	lb, err := RelativeLuminance(b)
	if err != nil {
		return 0, err
	}
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05), nil
}

// roundRatio keeps two decimals, as contrast checkers usually report.
func roundRatio(r float64) float64 {
	return math.Round(r*100) / 100
}
