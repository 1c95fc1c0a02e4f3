package config

import "time"

// ApplyDefaults fills zero-valued fields with the documented defaults.
// Booleans whose default is true (strict formulas, PII redaction) are
// handled by DefaultConfig; loading a file starts from DefaultConfig so an
// absent key keeps the default rather than flipping to false.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		cfg.Server.MaxUploadBytes = 25 << 20 // 25 MiB
	}

	if cfg.State.Endpoint == "" {
		cfg.State.Endpoint = "data/callisto.db"
	}
	if cfg.State.MaxOpenConns <= 0 {
		cfg.State.MaxOpenConns = 10
	}
	if cfg.State.MaxIdleConns <= 0 {
		cfg.State.MaxIdleConns = 5
	}
	if cfg.State.BusyTimeout <= 0 {
		cfg.State.BusyTimeout = 5 * time.Second
	}

	if cfg.Blob.Endpoint == "" {
		cfg.Blob.Endpoint = "data/blobs"
	}
	if cfg.Blob.DownloadTTL <= 0 {
		cfg.Blob.DownloadTTL = 15 * time.Minute
	}

	if cfg.Secrets.URL == "" {
		cfg.Secrets.URL = "env:"
	}
	if cfg.Secrets.CacheTTL <= 0 {
		cfg.Secrets.CacheTTL = 5 * time.Minute
	}

	if cfg.Extractor.AmbiguityMargin <= 0 {
		cfg.Extractor.AmbiguityMargin = 0.1
	}
	if cfg.Extractor.AbsTolerance <= 0 {
		cfg.Extractor.AbsTolerance = 0.02
	}
	if cfg.Extractor.RelTolerance <= 0 {
		cfg.Extractor.RelTolerance = 0.01
	}

	if cfg.Committee.ProviderTimeout <= 0 {
		cfg.Committee.ProviderTimeout = 30 * time.Second
	}
	if cfg.Committee.AmbiguityMargin <= 0 {
		cfg.Committee.AmbiguityMargin = 0.1
	}
	if cfg.Committee.ConsensusFloor <= 0 {
		cfg.Committee.ConsensusFloor = 0.5
	}
	for i := range cfg.Committee.Pool {
		if cfg.Committee.Pool[i].Timeout <= 0 {
			cfg.Committee.Pool[i].Timeout = cfg.Committee.ProviderTimeout
		}
	}

	if cfg.Resolver.CustomerFuzzyHigh <= 0 {
		cfg.Resolver.CustomerFuzzyHigh = 0.75
	}
	if cfg.Resolver.CustomerFuzzyLow <= 0 {
		cfg.Resolver.CustomerFuzzyLow = 0.60
	}
	if cfg.Resolver.Margin <= 0 {
		cfg.Resolver.Margin = 0.1
	}
	if cfg.Resolver.CacheTTL <= 0 {
		cfg.Resolver.CacheTTL = time.Hour
	}
	if cfg.Resolver.RefreshSchedule == "" {
		cfg.Resolver.RefreshSchedule = "@every 30m"
	}

	if cfg.Submitter.RetryBase <= 0 {
		cfg.Submitter.RetryBase = time.Second
	}
	if cfg.Submitter.RetryCap <= 0 {
		cfg.Submitter.RetryCap = 16 * time.Second
	}
	if cfg.Submitter.MaxAttempts <= 0 {
		cfg.Submitter.MaxAttempts = 5
	}
	if cfg.Submitter.OutboxInterval <= 0 {
		cfg.Submitter.OutboxInterval = 5 * time.Second
	}

	if cfg.Orchestr.CaseWaitTimeout <= 0 {
		cfg.Orchestr.CaseWaitTimeout = 7 * 24 * time.Hour
	}
	if cfg.Orchestr.LeaseTTL <= 0 {
		cfg.Orchestr.LeaseTTL = 60 * time.Second
	}
	if cfg.Orchestr.RetryVisibility <= 0 {
		cfg.Orchestr.RetryVisibility = 60 * time.Second
	}
	if cfg.Orchestr.ExpirySchedule == "" {
		cfg.Orchestr.ExpirySchedule = "@every 1m"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
	if cfg.Telemetry.Tracing.SampleRatio <= 0 {
		cfg.Telemetry.Tracing.SampleRatio = 1.0
	}
}

// DefaultConfig returns the full default configuration, including the
// booleans that default to true.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Extractor.StrictFormulas = true
	cfg.Telemetry.Logging.RedactPII = true
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
