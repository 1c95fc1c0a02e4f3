package extract

import "testing"

func TestNormalizeDigits(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"۱۵", "15"},
		{"۰۱۲۳۴۵۶۷۸۹", "0123456789"},
		{"٠١٢٣٤٥٦٧٨٩", "0123456789"},
		{"۱۲٫۵", "12.5"},
		{"۱٬۲۳۴", "1,234"},
		{"abc", "abc"},
		{"123.45", "123.45"},
		{"", ""},
		{"qty ۱۰ pcs", "qty 10 pcs"},
	}

	for _, tt := range tests {
		if got := NormalizeDigits(tt.in); got != tt.want {
			t.Errorf("NormalizeDigits(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDigits_Idempotent(t *testing.T) {
	inputs := []string{"۱۵", "٠١٢", "123", "۱۲٫۵", "mixed ۷ and 7"}
	for _, in := range inputs {
		once := NormalizeDigits(in)
		twice := NormalizeDigits(once)
		if once != twice {
			t.Errorf("normalization not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}
