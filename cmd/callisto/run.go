package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"orderdesk-hq/callisto/pkg/api"
	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/catalog"
	"orderdesk-hq/callisto/pkg/committee"
	"orderdesk-hq/callisto/pkg/config"
	"orderdesk-hq/callisto/pkg/extract"
	"orderdesk-hq/callisto/pkg/orchestrate"
	"orderdesk-hq/callisto/pkg/security/auth"
	"orderdesk-hq/callisto/pkg/security/secrets"
	"orderdesk-hq/callisto/pkg/store"
	"orderdesk-hq/callisto/pkg/submit"
	"orderdesk-hq/callisto/pkg/telemetry/logging"
	"orderdesk-hq/callisto/pkg/telemetry/metrics"
	"orderdesk-hq/callisto/pkg/telemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the case engine: API server, workers and schedulers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runServer wires every component in dependency order, starts the workers
// and serves until interrupted. Teardown runs in reverse.
func runServer(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logCfg := cfg.Telemetry.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	if _, err := logging.Setup(logging.Config{
		Level:     logCfg.Level,
		Format:    logCfg.Format,
		AddSource: logCfg.AddSource,
		RedactPII: logCfg.RedactPII,
	}); err != nil {
		return err
	}
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
		ServiceName: "callisto",
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// Secrets
	secretSource, err := buildSecrets(cfg)
	if err != nil {
		return err
	}

	// State store
	st, err := store.Open(&store.Config{
		Path:         cfg.State.Endpoint,
		MaxOpenConns: cfg.State.MaxOpenConns,
		MaxIdleConns: cfg.State.MaxIdleConns,
		WALMode:      true,
		BusyTimeout:  cfg.State.BusyTimeout,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	// Evidence store
	var signingKey []byte
	if cfg.Blob.SigningKeySecret != "" {
		key, err := secretSource.GetSecret(ctx, cfg.Blob.SigningKeySecret)
		if err != nil {
			return fmt.Errorf("failed to load blob signing key: %w", err)
		}
		signingKey = []byte(key)
	}
	blobs, err := blob.Open(&blob.Config{Root: cfg.Blob.Endpoint, SigningKey: signingKey})
	if err != nil {
		return err
	}
	defer blobs.Close()

	// Extractor
	extractor := extract.New(extract.Config{
		StrictFormulas:  cfg.Extractor.StrictFormulas,
		AmbiguityMargin: cfg.Extractor.AmbiguityMargin,
		AbsTol:          cfg.Extractor.AbsTolerance,
		RelTol:          cfg.Extractor.RelTolerance,
		SampleSize:      5,
	}, nil)

	// Committee
	weights, err := committee.LoadWeights(cfg.Committee.WeightsFile)
	if err != nil {
		return err
	}
	defer weights.Close()
	if cfg.Committee.WatchWeights && cfg.Committee.WeightsFile != "" {
		if err := weights.Watch(cfg.Committee.WeightsFile); err != nil {
			return err
		}
	}
	pool := make([]committee.Provider, 0, len(cfg.Committee.Pool))
	for _, pc := range cfg.Committee.Pool {
		p, err := committee.NewHTTPProvider(committee.ProviderConfig{
			Name:         pc.Name,
			Family:       pc.Family,
			BaseURL:      pc.BaseURL,
			Model:        pc.Model,
			APIKeySecret: pc.APIKeySecret,
			Timeout:      pc.Timeout,
		}, secretSource)
		if err != nil {
			return err
		}
		pool = append(pool, p)
	}
	reviewer := committee.New(committee.Config{
		PerProviderTimeout: cfg.Committee.ProviderTimeout,
		Aggregate: committee.AggregateConfig{
			AmbiguityMargin: cfg.Committee.AmbiguityMargin,
			ConsensusFloor:  cfg.Committee.ConsensusFloor,
		},
	}, pool, weights)

	// External books client + token store
	tokens := submit.NewTokenStore(submit.TokenConfig{
		TokenURL:           cfg.Submitter.TokenURL,
		ClientIDSecret:     cfg.Submitter.ClientIDSecret,
		ClientSecretSecret: cfg.Submitter.ClientSecretSecret,
		RefreshTokenSecret: cfg.Submitter.RefreshTokenSecret,
	}, secretSource)
	booksClient := submit.NewClient(submit.ClientConfig{
		BaseURL:        cfg.Submitter.BooksBaseURL,
		OrganizationID: cfg.Submitter.OrganizationID,
	}, tokens)

	// Catalog cache + resolver
	cache := catalog.NewCache(catalog.CacheConfig{TTL: cfg.Resolver.CacheTTL}, st, booksClient)
	if err := cache.Warm(ctx); err != nil {
		logger.Warn("catalog warm-up failed, first resolution will fetch", "error", err)
	}
	refresher := catalog.NewRefresher(cache, cfg.Resolver.RefreshSchedule)
	if err := refresher.Start(ctx); err != nil {
		return err
	}
	defer refresher.Stop()
	resolver := catalog.NewResolver(catalog.ResolverConfig{
		CustomerFuzzyHigh: cfg.Resolver.CustomerFuzzyHigh,
		CustomerFuzzyLow:  cfg.Resolver.CustomerFuzzyLow,
		Margin:            cfg.Resolver.Margin,
		TopK:              5,
		ItemNameFuzzy:     cfg.Resolver.ItemNameFuzzy,
	}, cache)

	// Submitter
	submitter := submit.NewSubmitter(st, booksClient, submit.RetryPolicy{
		Base:        cfg.Submitter.RetryBase,
		Cap:         cfg.Submitter.RetryCap,
		MaxAttempts: cfg.Submitter.MaxAttempts,
	})

	// Metrics
	m := metrics.New()

	// Orchestrator
	engine := orchestrate.New(orchestrate.Config{
		WaitTimeout:     cfg.Orchestr.CaseWaitTimeout,
		LeaseTTL:        cfg.Orchestr.LeaseTTL,
		RetryVisibility: cfg.Orchestr.RetryVisibility,
	}, st, blobs, extractor, reviewer, resolver, submitter)
	engine.SetMetrics(m)

	// Replay anything a previous worker left mid-flight.
	if err := engine.Resume(ctx); err != nil {
		return err
	}

	// Background workers
	go engine.RunRetryWorker(ctx, 0)
	sweeper, err := engine.StartExpirySweeper(ctx, cfg.Orchestr.ExpirySchedule)
	if err != nil {
		return err
	}
	defer sweeper.Stop()

	outbox := submit.NewOutboxWorker(st, logSink{logger: logger}, cfg.Submitter.OutboxInterval)
	go outbox.Run(ctx)

	// Auth + API server
	jwtKey, err := secretSource.GetSecret(ctx, cfg.Server.JWTKeySecret)
	if err != nil {
		return fmt.Errorf("failed to load jwt key: %w", err)
	}
	toolsKey := ""
	if cfg.Server.ToolsKeySecret != "" {
		toolsKey, err = secretSource.GetSecret(ctx, cfg.Server.ToolsKeySecret)
		if err != nil {
			return fmt.Errorf("failed to load tools key: %w", err)
		}
	}
	verifier := auth.NewVerifier([]byte(jwtKey), "", "")

	var serverMetrics *metrics.Metrics
	if cfg.Telemetry.Metrics.Enabled {
		serverMetrics = m
	}
	server := api.New(api.Options{
		ListenAddress:  cfg.Server.ListenAddress,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ToolsKey:       toolsKey,
		DownloadTTL:    cfg.Blob.DownloadTTL,
		MetricsPath:    cfg.Telemetry.Metrics.Path,
	}, engine, st, blobs, extractor, reviewer, submitter, verifier, serverMetrics)

	return server.Start(ctx)
}

// buildSecrets maps the secret store URL onto the provider chain.
func buildSecrets(cfg *config.Config) (*secrets.Manager, error) {
	switch {
	case cfg.Secrets.URL == "env:" || strings.HasPrefix(cfg.Secrets.URL, "env:"):
		return secrets.NewManager(cfg.Secrets.CacheTTL, secrets.NewEnvProvider("")), nil
	case strings.HasPrefix(cfg.Secrets.URL, "file://"):
		dir := strings.TrimPrefix(cfg.Secrets.URL, "file://")
		return secrets.NewManager(cfg.Secrets.CacheTTL,
			secrets.NewFileProvider(dir), secrets.NewEnvProvider("")), nil
	default:
		return nil, fmt.Errorf("unsupported secret store url %q", cfg.Secrets.URL)
	}
}

// logSink delivers outbox entries to the log until a chat notification
// adapter is attached. Delivery is acknowledged so entries drain.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) Deliver(ctx context.Context, entry *store.OutboxEntry) error {
	s.logger.Info("outbox event",
		"case_id", entry.CaseID,
		"event_type", entry.EventType,
	)
	return nil
}
