package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// Validate checks structural invariants after defaults and overrides.
func Validate(cfg *Config) error {
	if cfg.Server.MaxUploadBytes <= 0 {
		return &ValidationError{Field: "server.max_upload_bytes", Message: "must be positive"}
	}
	if cfg.State.Endpoint == "" {
		return &ValidationError{Field: "state.endpoint", Message: "is required"}
	}
	if cfg.Blob.Endpoint == "" {
		return &ValidationError{Field: "blob.endpoint", Message: "is required"}
	}

	if !strings.HasPrefix(cfg.Secrets.URL, "env:") && !strings.HasPrefix(cfg.Secrets.URL, "file://") {
		return &ValidationError{Field: "secrets.url", Message: "scheme must be env: or file://"}
	}

	if cfg.Extractor.AmbiguityMargin <= 0 || cfg.Extractor.AmbiguityMargin >= 1 {
		return &ValidationError{Field: "extractor.ambiguity_margin", Message: "must be in (0,1)"}
	}

	families := map[string]bool{}
	seen := map[string]bool{}
	for i, p := range cfg.Committee.Pool {
		field := fmt.Sprintf("committee.pool[%d]", i)
		if p.Name == "" {
			return &ValidationError{Field: field + ".name", Message: "is required"}
		}
		if seen[p.Name] {
			return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate provider name %q", p.Name)}
		}
		seen[p.Name] = true
		switch p.Family {
		case "anthropic", "openai", "generic":
		default:
			return &ValidationError{Field: field + ".family", Message: fmt.Sprintf("unknown family %q", p.Family)}
		}
		if p.BaseURL == "" {
			return &ValidationError{Field: field + ".base_url", Message: "is required"}
		}
		if p.APIKeySecret == "" {
			return &ValidationError{Field: field + ".api_key_secret", Message: "is required"}
		}
		families[p.Family] = true
	}
	if len(cfg.Committee.Pool) > 0 && len(families) < 3 {
		return &ValidationError{
			Field:   "committee.pool",
			Message: fmt.Sprintf("needs 3 distinct provider families, has %d", len(families)),
		}
	}

	if cfg.Resolver.CustomerFuzzyHigh <= cfg.Resolver.CustomerFuzzyLow {
		return &ValidationError{Field: "resolver.customer_fuzzy_high", Message: "must exceed customer_fuzzy_low"}
	}
	if cfg.Resolver.CustomerFuzzyHigh > 1 {
		return &ValidationError{Field: "resolver.customer_fuzzy_high", Message: "must be at most 1"}
	}

	if cfg.Submitter.RetryCap < cfg.Submitter.RetryBase {
		return &ValidationError{Field: "submitter.retry_cap", Message: "must be at least retry_base"}
	}
	if cfg.Submitter.MaxAttempts < 1 {
		return &ValidationError{Field: "submitter.max_attempts", Message: "must be at least 1"}
	}

	return nil
}
