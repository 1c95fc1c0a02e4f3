package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/extract"
	"orderdesk-hq/callisto/pkg/orchestrate"
	"orderdesk-hq/callisto/pkg/security/auth"
	"orderdesk-hq/callisto/pkg/store"
	"orderdesk-hq/callisto/pkg/telemetry/metrics"
)

// Options configures the HTTP server.
type Options struct {
	ListenAddress  string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64

	// ToolsKey is the subscription key for the internal tool endpoints.
	ToolsKey string

	// DownloadTTL bounds signed download URLs.
	DownloadTTL time.Duration

	// MetricsPath serves Prometheus when Metrics is set. Default /metrics.
	MetricsPath string
}

// Server is the HTTP boundary server.
type Server struct {
	options   Options
	engine    *orchestrate.Engine
	store     *store.Store
	blobs     *blob.Store
	extractor *extract.Extractor
	reviewer  orchestrate.Reviewer
	submitter orchestrate.DraftSubmitter
	verifier  *auth.Verifier
	metrics   *metrics.Metrics
	logger    *slog.Logger

	httpServer   *http.Server
	shutdownOnce sync.Once
}

// New creates the server over its collaborators.
func New(options Options, engine *orchestrate.Engine, st *store.Store, blobs *blob.Store,
	extractor *extract.Extractor, reviewer orchestrate.Reviewer, submitter orchestrate.DraftSubmitter,
	verifier *auth.Verifier, m *metrics.Metrics) *Server {

	if options.MaxUploadBytes <= 0 {
		options.MaxUploadBytes = 25 << 20
	}
	if options.DownloadTTL <= 0 {
		options.DownloadTTL = 15 * time.Minute
	}
	if options.MetricsPath == "" {
		options.MetricsPath = "/metrics"
	}
	return &Server{
		options:   options,
		engine:    engine,
		store:     st,
		blobs:     blobs,
		extractor: extractor,
		reviewer:  reviewer,
		submitter: submitter,
		verifier:  verifier,
		metrics:   m,
		logger:    slog.Default().With("component", "api"),
	}
}

// Routes builds the handler tree with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// Bot webhook and human events (JWT, bot or user identity)
	mux.HandleFunc("POST /bot/file-uploaded", s.requireJWT(s.handleFileUploaded))
	mux.HandleFunc("POST /bot/corrections-submitted", s.requireJWT(s.handleCorrections))
	mux.HandleFunc("POST /bot/approval", s.requireJWT(s.handleApproval))
	mux.HandleFunc("POST /bot/customer-selected", s.requireJWT(s.handleCustomerSelected))
	mux.HandleFunc("POST /bot/item-selected", s.requireJWT(s.handleItemSelected))
	mux.HandleFunc("POST /bot/file-reuploaded", s.requireJWT(s.handleFileReuploaded))
	mux.HandleFunc("POST /bot/cancel", s.requireJWT(s.handleCancel))

	// Case browser (JWT, role matrix)
	mux.HandleFunc("GET /cases", s.requireJWT(s.handleListCases))
	mux.HandleFunc("GET /cases/{id}", s.requireJWT(s.handleGetCase))
	mux.HandleFunc("GET /cases/{id}/audit", s.requireJWT(s.handleGetAudit))
	mux.HandleFunc("GET /cases/{id}/download-sas", s.requireJWT(s.handleDownloadSAS))

	// Internal tool endpoints (subscription key)
	mux.HandleFunc("POST /tools/parse", s.requireToolsKey(s.handleToolParse))
	mux.HandleFunc("POST /tools/committee-review", s.requireToolsKey(s.handleToolCommitteeReview))
	mux.HandleFunc("POST /tools/zoho/create-draft-salesorder", s.requireToolsKey(s.handleToolCreateDraft))

	// Operational endpoints
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET "+s.options.MetricsPath, s.metrics.Handler())
	}

	return s.correlationMiddleware(s.metricsMiddleware(mux))
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.options.ListenAddress,
		Handler:      s.Routes(),
		ReadTimeout:  s.options.ReadTimeout,
		WriteTimeout: s.options.WriteTimeout,
		IdleTimeout:  s.options.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "address", s.options.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(shutdownCtx)
		s.logger.Info("api server stopped")
	})
	return err
}
