package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults, applies
// environment overrides and validates the result. A missing file is not an
// error: the defaults-plus-environment configuration is returned, so the
// engine can run entirely from environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
			ApplyDefaults(cfg)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides maps the documented environment variables onto the
// configuration. Environment always wins over the file.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("STATE_STORE_ENDPOINT"); val != "" {
		cfg.State.Endpoint = val
	}
	if val := os.Getenv("BLOB_ENDPOINT"); val != "" {
		cfg.Blob.Endpoint = val
	}
	if val := os.Getenv("SECRET_STORE_URL"); val != "" {
		cfg.Secrets.URL = val
	}

	if val := os.Getenv("EXTRACTOR_STRICT_FORMULAS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Extractor.StrictFormulas = b
		}
	}

	if val := os.Getenv("COMMITTEE_PROVIDER_POOL"); val != "" {
		cfg.Committee.Pool = parseProviderPool(val)
	}
	if val := os.Getenv("COMMITTEE_WEIGHTS_FILE"); val != "" {
		cfg.Committee.WeightsFile = val
	}

	if val := os.Getenv("RESOLVER_FUZZY_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Resolver.ItemNameFuzzy = b
		}
	}
	if val := os.Getenv("CUSTOMER_FUZZY_HIGH"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Resolver.CustomerFuzzyHigh = f
		}
	}

	if val := os.Getenv("RETRY_BASE_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			cfg.Submitter.RetryBase = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("RETRY_CAP_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			cfg.Submitter.RetryCap = time.Duration(ms) * time.Millisecond
		}
	}
	if val := os.Getenv("RETRY_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Submitter.MaxAttempts = n
		}
	}

	if val := os.Getenv("CASE_WAIT_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Orchestr.CaseWaitTimeout = d
		}
	}

	if val := os.Getenv("CALLISTO_LISTEN_ADDRESS"); val != "" {
		cfg.Server.ListenAddress = val
	}
	if val := os.Getenv("CALLISTO_LOG_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("CALLISTO_TRACING_ENDPOINT"); val != "" {
		cfg.Telemetry.Tracing.Endpoint = val
		cfg.Telemetry.Tracing.Enabled = true
	}
}

// parseProviderPool parses the compact pool syntax
// "name:family:model[,name:family:model...]" used by the environment
// override. Base URLs and key names follow the family conventions.
func parseProviderPool(val string) []ProviderConfig {
	var pool []ProviderConfig
	for _, entry := range strings.Split(val, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			continue
		}
		name, family, model := parts[0], parts[1], parts[2]
		pc := ProviderConfig{
			Name:         name,
			Family:       family,
			Model:        model,
			APIKeySecret: name + "_api_key",
		}
		switch family {
		case "anthropic":
			pc.BaseURL = "https://api.anthropic.com"
		case "openai":
			pc.BaseURL = "https://api.openai.com"
		}
		pool = append(pool, pc)
	}
	return pool
}
