package logging

import (
	"log/slog"
	"testing"
)

func TestRedactAttr_SensitiveKeys(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		key  string
		want string
	}{
		{"token", "[REDACTED]"},
		{"access_token", "[REDACTED]"},
		{"api_key", "[REDACTED]"},
		{"client_secret", "[REDACTED]"},
		{"password", "[REDACTED]"},
	}
	for _, tt := range tests {
		got := r.RedactAttr(slog.String(tt.key, "supersecret"))
		if got.Value.String() != tt.want {
			t.Errorf("key %s: value %q, want %q", tt.key, got.Value.String(), tt.want)
		}
	}

	plain := r.RedactAttr(slog.String("case_id", "case-1"))
	if plain.Value.String() != "case-1" {
		t.Errorf("non-sensitive key was redacted: %q", plain.Value.String())
	}
}

func TestRedactAttr_TokenShapesInValues(t *testing.T) {
	r := NewRedactor()

	got := r.RedactAttr(slog.String("error", "call failed: Bearer abc.def-123 rejected"))
	if got.Value.String() == "call failed: Bearer abc.def-123 rejected" {
		t.Error("bearer token survived redaction")
	}

	got = r.RedactAttr(slog.String("detail", "header Zoho-oauthtoken 1000.abcd.efgh"))
	if got.Value.String() == "header Zoho-oauthtoken 1000.abcd.efgh" {
		t.Error("oauth token survived redaction")
	}
}
