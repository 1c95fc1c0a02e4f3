package extract

import "strings"

// ValidGTIN reports whether s is a well-formed GTIN: digits only, length in
// {8, 12, 13, 14}, and a correct check digit computed with alternating 1/3
// weights from the right.
func ValidGTIN(s string) bool {
	s = strings.TrimSpace(NormalizeDigits(s))
	switch len(s) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	sum := 0
	// Weights alternate 3,1,3,... starting from the digit immediately left
	// of the check digit.
	weight := 3
	for i := len(s) - 2; i >= 0; i-- {
		sum += int(s[i]-'0') * weight
		if weight == 3 {
			weight = 1
		} else {
			weight = 3
		}
	}
	check := (10 - sum%10) % 10
	return int(s[len(s)-1]-'0') == check
}

// looksLikeGTIN reports whether s has GTIN shape (right length, all digits)
// without validating the check digit. Used for column pattern scoring.
func looksLikeGTIN(s string) bool {
	s = strings.TrimSpace(NormalizeDigits(s))
	switch len(s) {
	case 8, 12, 13, 14:
	default:
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// looksLikeSKU reports whether s has typical SKU shape: short, alphanumeric
// with separators, at least one letter or dash, not a plain number.
func looksLikeSKU(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 32 {
		return false
	}
	hasAlpha, hasSep := false, false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasAlpha = true
		case r == '-' || r == '_' || r == '.':
			hasSep = true
		case r >= '0' && r <= '9':
		case r == ' ':
		default:
			return false
		}
	}
	return hasAlpha || hasSep
}

// looksLikeCurrency reports whether s carries a currency symbol or a
// two-decimal money pattern.
func looksLikeCurrency(s string) bool {
	s = strings.TrimSpace(s)
	if strings.ContainsAny(s, "$€£¥₹") {
		return true
	}
	if _, _, ok := ParseNumber(s, ""); ok {
		n := NormalizeDigits(s)
		if i := strings.LastIndexAny(n, ".,"); i >= 0 && len(n)-i-1 == 2 {
			return true
		}
	}
	return false
}
