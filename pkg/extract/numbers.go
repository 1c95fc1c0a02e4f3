package extract

import (
	"math"
	"strconv"
	"strings"
)

// NumberStyle identifies the separator convention a numeric string follows.
type NumberStyle string

const (
	StyleUS    NumberStyle = "us"    // 1,234.56
	StyleEU    NumberStyle = "eu"    // 1.234,56
	StylePlain NumberStyle = "plain" // 1234.56 or 1234
)

var currencyReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "₹", "", " ", "")

// ParseNumber parses a numeric cell value. Digits are normalized first, then
// currency symbols stripped, then the US, European and no-separator
// conventions are tried in order. preferred biases the attempt order toward
// the column's majority pattern; pass "" for no preference.
//
// Returns the parsed value, the style that succeeded, and ok=false when no
// convention yields a finite value.
func ParseNumber(s string, preferred NumberStyle) (float64, NumberStyle, bool) {
	s = NormalizeDigits(strings.TrimSpace(s))
	s = currencyReplacer.Replace(s)
	if s == "" {
		return 0, "", false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}

	styles := []NumberStyle{StyleUS, StyleEU, StylePlain}
	if preferred != "" {
		styles = append([]NumberStyle{preferred}, styles...)
	}

	for _, style := range styles {
		if v, ok := parseWithStyle(s, style); ok {
			if neg {
				v = -v
			}
			return v, style, true
		}
	}
	return 0, "", false
}

func parseWithStyle(s string, style NumberStyle) (float64, bool) {
	var candidate string
	switch style {
	case StyleUS:
		// ',' thousands, '.' decimal
		if !validGrouping(s, ',', '.') {
			return 0, false
		}
		candidate = strings.ReplaceAll(s, ",", "")
	case StyleEU:
		// '.' thousands, ',' decimal
		if !validGrouping(s, '.', ',') {
			return 0, false
		}
		candidate = strings.ReplaceAll(s, ".", "")
		candidate = strings.ReplaceAll(candidate, ",", ".")
	case StylePlain:
		if strings.ContainsAny(s, ",") {
			return 0, false
		}
		candidate = s
	default:
		return 0, false
	}

	v, err := strconv.ParseFloat(candidate, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// validGrouping checks that thousands separators, when present, split digit
// groups of exactly three and that at most one decimal separator follows.
func validGrouping(s string, thousands, decimal rune) bool {
	intPart := s
	if i := strings.IndexRune(s, decimal); i >= 0 {
		intPart = s[:i]
		frac := s[i+1:]
		if strings.ContainsRune(frac, decimal) || strings.ContainsRune(frac, thousands) {
			return false
		}
	}

	if !strings.ContainsRune(intPart, thousands) {
		return true
	}

	groups := strings.Split(intPart, string(thousands))
	if len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// DetectColumnStyle returns the majority number style across a column's
// non-empty values, or "" when nothing parses.
func DetectColumnStyle(values []string) NumberStyle {
	counts := map[NumberStyle]int{}
	for _, v := range values {
		if _, style, ok := ParseNumber(v, ""); ok {
			counts[style]++
		}
	}
	var best NumberStyle
	bestCount := 0
	for _, style := range []NumberStyle{StyleUS, StyleEU, StylePlain} {
		if counts[style] > bestCount {
			best, bestCount = style, counts[style]
		}
	}
	return best
}
