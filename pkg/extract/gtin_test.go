package extract

import "testing"

func TestValidGTIN(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		// Valid check digits at each legal length
		{"96385074", true},       // GTIN-8
		{"036000291452", true},   // GTIN-12
		{"4006381333931", true},  // GTIN-13
		{"00012345600012", true}, // GTIN-14

		// Wrong check digit
		{"96385075", false},
		{"4006381333932", false},

		// Wrong lengths
		{"1234567", false},
		{"123456789", false},
		{"123456789012345", false},
		{"", false},

		// Non-digits
		{"40063813339a1", false},

		// Persian digits normalize before validation
		{"۹۶۳۸۵۰۷۴", true},
	}

	for _, tt := range tests {
		if got := ValidGTIN(tt.in); got != tt.want {
			t.Errorf("ValidGTIN(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLooksLikeSKU(t *testing.T) {
	yes := []string{"SKU-001", "AB_12", "X9", "A-1.2"}
	for _, s := range yes {
		if !looksLikeSKU(s) {
			t.Errorf("expected %q to look like a SKU", s)
		}
	}

	no := []string{"", "12345", "a very long product description that is not a sku at all"}
	for _, s := range no {
		if looksLikeSKU(s) {
			t.Errorf("expected %q to not look like a SKU", s)
		}
	}
}
