package action

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// NormalizeColor reports whether s is a hex color (#rgb or #rrggbb) or a
// CSS named color and returns it in canonical form: lowercase hex, or the
// lowercase color name.
func NormalizeColor(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(s, "#") {
		if len(s) != 4 && len(s) != 7 {
			return "", false
		}
		for _, r := range s[1:] {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
				return "", false
			}
		}
		if _, err := colorful.Hex(s); err != nil {
			return "", false
		}
		return s, true
	}
	if _, ok := colornames.Map[s]; ok {
		return s, true
	}
	return "", false
}

// ContrastRatio returns the WCAG contrast ratio between two valid colors,
// or 0 when either cannot be parsed.
func ContrastRatio(a, b string) float64 {
	ca, ok := parseColor(a)
	if !ok {
		return 0
	}
	cb, ok := parseColor(b)
	if !ok {
		return 0
	}
	la, lb := luminance(ca), luminance(cb)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}

func parseColor(s string) (colorful.Color, bool) {
	norm, ok := NormalizeColor(s)
	if !ok {
		return colorful.Color{}, false
	}
	if strings.HasPrefix(norm, "#") {
		c, err := colorful.Hex(norm)
		return c, err == nil
	}
	c, ok := colorful.MakeColor(colornames.Map[norm])
	return c, ok
}

func luminance(c colorful.Color) float64 {
	r, g, b := c.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}
