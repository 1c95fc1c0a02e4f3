package extract

import "strings"

// NormalizeDigits converts Persian (U+06F0..U+06F9) and Arabic-Indic
// (U+0660..U+0669) digits to their ASCII equivalents. It also maps the
// Arabic decimal (U+066B) and thousands (U+066C) separators to '.' and ','.
// The function is idempotent: normalizing already-normalized text is a no-op.
func NormalizeDigits(s string) string {
	if !needsDigitNormalization(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹': // Extended Arabic-Indic (Persian)
			b.WriteRune('0' + (r - '۰'))
		case r >= '٠' && r <= '٩': // Arabic-Indic
			b.WriteRune('0' + (r - '٠'))
		case r == '٫': // Arabic decimal separator
			b.WriteRune('.')
		case r == '٬': // Arabic thousands separator
			b.WriteRune(',')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsDigitNormalization(s string) bool {
	for _, r := range s {
		if (r >= '۰' && r <= '۹') ||
			(r >= '٠' && r <= '٩') ||
			r == '٫' || r == '٬' {
			return true
		}
	}
	return false
}
