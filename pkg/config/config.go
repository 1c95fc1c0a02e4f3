// Package config defines the engine's configuration: YAML file, defaults,
// validation and environment overrides, in that order.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	State     StateConfig        `yaml:"state"`
	Blob      BlobConfig         `yaml:"blob"`
	Secrets   SecretsConfig      `yaml:"secrets"`
	Extractor ExtractorConfig    `yaml:"extractor"`
	Committee CommitteeConfig    `yaml:"committee"`
	Resolver  ResolverConfig     `yaml:"resolver"`
	Submitter SubmitterConfig    `yaml:"submitter"`
	Orchestr  OrchestratorConfig `yaml:"orchestrator"`
	Telemetry TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`

	// MaxUploadBytes caps inbound files. Default: 25 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// JWTKeySecret names the HMAC key for bearer-token validation.
	JWTKeySecret string `yaml:"jwt_key_secret"`

	// ToolsKeySecret names the subscription key for the internal tool
	// endpoints.
	ToolsKeySecret string `yaml:"tools_key_secret"`
}

// StateConfig configures the state store.
type StateConfig struct {
	// Endpoint is the SQLite database path.
	Endpoint     string        `yaml:"endpoint"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// BlobConfig configures the evidence store.
type BlobConfig struct {
	// Endpoint is the blob root directory.
	Endpoint string `yaml:"endpoint"`

	// SigningKeySecret names the HMAC key for download URLs.
	SigningKeySecret string `yaml:"signing_key_secret"`

	// DownloadTTL bounds signed download URLs. Default: 15m.
	DownloadTTL time.Duration `yaml:"download_ttl"`
}

// SecretsConfig configures the secret store chain.
type SecretsConfig struct {
	// URL points at the secret backend. Supported schemes: "env:" and
	// "file:///path/to/dir".
	URL string `yaml:"url"`

	// CacheTTL bounds secret caching. Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ExtractorConfig configures the deterministic extractor.
type ExtractorConfig struct {
	StrictFormulas  bool    `yaml:"strict_formulas"`
	AmbiguityMargin float64 `yaml:"ambiguity_margin"`
	AbsTolerance    float64 `yaml:"abs_tolerance"`
	RelTolerance    float64 `yaml:"rel_tolerance"`
}

// ProviderConfig is one committee provider pool entry.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	Family       string        `yaml:"family"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	APIKeySecret string        `yaml:"api_key_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CommitteeConfig configures the provider committee.
type CommitteeConfig struct {
	Pool            []ProviderConfig `yaml:"pool"`
	WeightsFile     string           `yaml:"weights_file"`
	WatchWeights    bool             `yaml:"watch_weights"`
	ProviderTimeout time.Duration    `yaml:"provider_timeout"`
	AmbiguityMargin float64          `yaml:"ambiguity_margin"`
	ConsensusFloor  float64          `yaml:"consensus_floor"`
}

// ResolverConfig configures catalog resolution.
type ResolverConfig struct {
	CustomerFuzzyHigh float64       `yaml:"customer_fuzzy_high"`
	CustomerFuzzyLow  float64       `yaml:"customer_fuzzy_low"`
	Margin            float64       `yaml:"margin"`
	ItemNameFuzzy     bool          `yaml:"item_name_fuzzy"`
	CacheTTL          time.Duration `yaml:"cache_ttl"`
	RefreshSchedule   string        `yaml:"refresh_schedule"`
}

// SubmitterConfig configures the external submission engine.
type SubmitterConfig struct {
	BooksBaseURL   string `yaml:"books_base_url"`
	OrganizationID string `yaml:"organization_id"`
	TokenURL       string `yaml:"token_url"`

	ClientIDSecret     string `yaml:"client_id_secret"`
	ClientSecretSecret string `yaml:"client_secret_secret"`
	RefreshTokenSecret string `yaml:"refresh_token_secret"`

	RetryBase   time.Duration `yaml:"retry_base"`
	RetryCap    time.Duration `yaml:"retry_cap"`
	MaxAttempts int           `yaml:"max_attempts"`

	OutboxInterval time.Duration `yaml:"outbox_interval"`
}

// OrchestratorConfig configures the case engine.
type OrchestratorConfig struct {
	CaseWaitTimeout time.Duration `yaml:"case_wait_timeout"`
	LeaseTTL        time.Duration `yaml:"lease_ttl"`
	RetryVisibility time.Duration `yaml:"retry_visibility"`
	ExpirySchedule  string        `yaml:"expiry_schedule"`
}

// TelemetryConfig configures logging, metrics and tracing.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
	RedactPII bool   `yaml:"redact_pii"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}
