package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys are argument names whose values never reach a log line.
var sensitiveKeys = []string{
	"token", "access_token", "refresh_token", "api_key", "apikey",
	"secret", "password", "authorization", "client_secret",
}

// Redactor scrubs sensitive values from log attributes.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the built-in value patterns: bearer
// tokens and OAuth-token shapes embedded in strings.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)bearer\s+[a-z0-9._\-]+`),
			regexp.MustCompile(`(?i)zoho-oauthtoken\s+[a-z0-9._\-]+`),
		},
	}
}

// RedactAttr replaces a sensitive attribute's value with "[REDACTED]" and
// scrubs token shapes inside string values.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if key == s || strings.HasSuffix(key, "_"+s) {
			return slog.String(a.Key, "[REDACTED]")
		}
	}

	if a.Value.Kind() == slog.KindString {
		v := a.Value.String()
		for _, p := range r.patterns {
			v = p.ReplaceAllString(v, "[REDACTED]")
		}
		if v != a.Value.String() {
			return slog.String(a.Key, v)
		}
	}
	return a
}
