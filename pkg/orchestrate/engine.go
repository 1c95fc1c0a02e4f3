package orchestrate

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/catalog"
	"orderdesk-hq/callisto/pkg/committee"
	"orderdesk-hq/callisto/pkg/extract"
	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/store"
	"orderdesk-hq/callisto/pkg/submit"
	"orderdesk-hq/callisto/pkg/telemetry/metrics"
)

// Reviewer runs the committee review. *committee.Committee implements it.
type Reviewer interface {
	Review(ctx context.Context, pack *committee.Pack, seed int64) (*committee.Result, error)
}

// EntityResolver matches the order against the catalog. *catalog.Resolver
// implements it.
type EntityResolver interface {
	ResolveCustomer(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, error)
	ResolveItems(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, []catalog.PriceDelta, error)
}

// DraftSubmitter performs the idempotent external submission.
// *submit.Submitter implements it.
type DraftSubmitter interface {
	Submit(ctx context.Context, o *order.CanonicalOrder, attempt int) *submit.Result
	EnqueueRetry(ctx context.Context, o *order.CanonicalOrder, attempt int, res *submit.Result) error
	EmitOutbox(ctx context.Context, caseID, eventType string, payload any) error
	MaxAttempts() int
}

// Config contains orchestrator configuration.
type Config struct {
	// WorkerID identifies this worker in leases. Default: a random UUID.
	WorkerID string

	// WaitTimeout is how long a case may sit in a waiting state before it
	// is cancelled with CASE_EXPIRED. Default: 7 days.
	WaitTimeout time.Duration

	// LeaseTTL is the per-case lease duration. Default: 60s.
	LeaseTTL time.Duration

	// RetryVisibility is the claim window for retry items. Default: 60s.
	RetryVisibility time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		WorkerID:        uuid.NewString(),
		WaitTimeout:     7 * 24 * time.Hour,
		LeaseTTL:        60 * time.Second,
		RetryVisibility: 60 * time.Second,
	}
}

// Engine is the case orchestrator.
type Engine struct {
	config    Config
	store     *store.Store
	blobs     *blob.Store
	extractor *extract.Extractor
	reviewer  Reviewer
	resolver  EntityResolver
	submitter DraftSubmitter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	nowFunc   func() time.Time
}

// SetMetrics attaches the collector set. Safe to skip in tests.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// New creates the engine. All collaborators are constructed at startup and
// injected; the engine holds no mutable global state.
func New(config Config, st *store.Store, blobs *blob.Store, extractor *extract.Extractor,
	reviewer Reviewer, resolver EntityResolver, submitter DraftSubmitter) *Engine {
	if config.WorkerID == "" {
		config.WorkerID = uuid.NewString()
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 7 * 24 * time.Hour
	}
	if config.LeaseTTL <= 0 {
		config.LeaseTTL = 60 * time.Second
	}
	if config.RetryVisibility <= 0 {
		config.RetryVisibility = 60 * time.Second
	}
	return &Engine{
		config:    config,
		store:     st,
		blobs:     blobs,
		extractor: extractor,
		reviewer:  reviewer,
		resolver:  resolver,
		submitter: submitter,
		logger:    slog.Default().With("component", "orchestrate"),
		tracer:    otel.Tracer("orderdesk-hq/callisto/orchestrate"),
		nowFunc:   time.Now,
	}
}

// appendTransition writes the next audit event for a case, advancing its
// status. The wait deadline is set when entering a waiting state and
// cleared otherwise.
func (e *Engine) appendTransition(ctx context.Context, c *cases.Case, eventType string,
	after cases.Status, actor cases.Actor, data map[string]any, pointers map[string]string) error {

	if after != "" && !cases.CanTransition(c.Status, after) {
		return fmt.Errorf("illegal transition %s -> %s for case %s", c.Status, after, c.ID)
	}

	var deadline sql.NullTime
	if after.IsAwaiting() {
		deadline = sql.NullTime{Time: e.nowFunc().UTC().Add(e.config.WaitTimeout), Valid: true}
	}

	ev := &cases.AuditEvent{
		ID:          uuid.NewString(),
		CaseID:      c.ID,
		Sequence:    c.LastSequence + 1,
		Timestamp:   e.nowFunc().UTC(),
		EventType:   eventType,
		StatusAfter: after,
		Actor:       actor,
		Data:        data,
		Pointers:    pointers,
	}
	if err := e.store.AppendEvent(ctx, ev, deadline); err != nil {
		return err
	}

	c.LastSequence = ev.Sequence
	if after != "" {
		c.Status = after
		if e.metrics != nil {
			e.metrics.CaseTransitions.WithLabelValues(string(after)).Inc()
		}
	}
	e.logger.InfoContext(ctx, "case transition",
		"case_id", c.ID,
		"correlation_id", c.CorrelationID,
		"event_type", eventType,
		"status", c.Status,
		"sequence", ev.Sequence,
	)
	return nil
}

// Advance drives a case forward until it parks in a waiting state, reaches
// a terminal state, or queues for retry. The per-case lease guarantees
// single-writer semantics; losing the lease stops quietly, the holder will
// finish the work.
func (e *Engine) Advance(ctx context.Context, caseID string) error {
	ok, err := e.store.AcquireLease(ctx, caseID, e.config.WorkerID, e.config.LeaseTTL, e.nowFunc().UTC())
	if err != nil {
		return err
	}
	if !ok {
		e.logger.Debug("case is leased elsewhere", "case_id", caseID)
		return nil
	}
	defer e.store.ReleaseLease(ctx, caseID, e.config.WorkerID)

	for {
		c, err := e.store.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if c.Status.IsTerminal() || c.Status.IsAwaiting() || c.Status == cases.StatusQueuedForRetry {
			return nil
		}

		stepCtx, span := e.tracer.Start(ctx, "orchestrate.step",
			trace.WithAttributes(
				attribute.String("case_id", c.ID),
				attribute.String("correlation_id", c.CorrelationID),
				attribute.String("status", string(c.Status)),
			))

		var stepErr error
		switch c.Status {
		case cases.StatusCreated:
			stepErr = e.stepStoreFile(stepCtx, c)
		case cases.StatusStoringFile:
			stepErr = e.stepStartParse(stepCtx, c)
		case cases.StatusParsing:
			stepErr = e.stepParse(stepCtx, c)
		case cases.StatusRunningCommittee:
			stepErr = e.stepCommittee(stepCtx, c)
		case cases.StatusResolvingCustomer:
			stepErr = e.stepResolveCustomer(stepCtx, c)
		case cases.StatusResolvingItems:
			stepErr = e.stepResolveItems(stepCtx, c)
		case cases.StatusCreatingDraft:
			stepErr = e.stepSubmit(stepCtx, c)
		default:
			stepErr = fmt.Errorf("case %s: no step for status %s", c.ID, c.Status)
		}
		span.End()
		if stepErr != nil {
			return stepErr
		}

		// Keep the lease alive across long steps.
		if _, err := e.store.AcquireLease(ctx, caseID, e.config.WorkerID, e.config.LeaseTTL, e.nowFunc().UTC()); err != nil {
			return err
		}
	}
}

// stepStoreFile confirms the uploaded blob is present and advances.
func (e *Engine) stepStoreFile(ctx context.Context, c *cases.Case) error {
	uri := e.incomingURI(c)
	exists, err := e.blobs.Exists(ctx, uri)
	if err != nil {
		return err
	}
	if !exists {
		return e.failCase(ctx, c, "uploaded file is missing from the evidence store", nil)
	}
	return e.appendTransition(ctx, c, cases.EventFileStored, cases.StatusStoringFile,
		cases.Actor{Type: cases.ActorSystem}, nil, map[string]string{"original": uri})
}

// stepStartParse marks the parse as the intended effect before running it.
func (e *Engine) stepStartParse(ctx context.Context, c *cases.Case) error {
	return e.appendTransition(ctx, c, cases.EventParseStarted, cases.StatusParsing,
		cases.Actor{Type: cases.ActorSystem}, nil, nil)
}

// stepParse runs the deterministic extractor over the stored workbook.
func (e *Engine) stepParse(ctx context.Context, c *cases.Case) error {
	data, err := e.blobs.Get(ctx, e.incomingURI(c))
	if err != nil {
		return err
	}

	meta := order.Meta{
		CaseID:     c.ID,
		TenantID:   c.TenantID,
		ReceivedAt: c.CreatedAt,
		FileName:   c.FileName,
		FileHash:   c.FileHash,
	}

	wb, err := extract.NewExcelDecoder().Decode(data)
	if err != nil {
		// PARSE_FATAL: unrecoverable decode failure.
		return e.failCase(ctx, c, fmt.Sprintf("workbook could not be decoded: %v", err),
			map[string]any{"code": order.CodeParseFatal})
	}

	overrides, valueOverrides, err := e.loadCorrections(ctx, c.ID)
	if err != nil {
		return err
	}

	o := e.extractor.ExtractWorkbookWithOverrides(meta, wb, overrides)
	if v, ok := valueOverrides[order.FieldCustomerName]; ok && v != "" {
		o.Customer.RawText = v
	}
	o.Version = e.nextVersion(ctx, c)

	uri, err := e.putCanonical(ctx, c, o)
	if err != nil {
		return err
	}

	// Formula gate parks the case for a re-upload; structural emptiness is
	// unrecoverable without a new file too, but NO_LINE_ITEMS fails the
	// case outright per the data contract.
	for _, is := range o.Issues {
		switch is.Code {
		case order.CodeFormulasBlocked, order.CodeEmptySpreadsheet:
			return e.appendTransition(ctx, c, cases.EventParseBlocked, cases.StatusParseBlocked,
				cases.Actor{Type: cases.ActorSystem},
				map[string]any{"code": is.Code, "message": is.Message},
				map[string]string{"canonical": uri})
		case order.CodeNoLineItems:
			return e.failCase(ctx, c, is.Message, map[string]any{"code": is.Code})
		}
	}

	return e.appendTransition(ctx, c, cases.EventParseCompleted, cases.StatusRunningCommittee,
		cases.Actor{Type: cases.ActorSystem},
		map[string]any{
			"line_items": len(o.LineItems),
			"language":   o.Meta.LanguageHint,
			"confidence": o.Conf.Overall,
			"version":    o.Version,
		},
		map[string]string{"canonical": uri})
}

// stepCommittee cross-checks the column mapping with the provider committee.
func (e *Engine) stepCommittee(ctx context.Context, c *cases.Case) error {
	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}

	data, err := e.blobs.Get(ctx, e.incomingURI(c))
	if err != nil {
		return err
	}
	wb, err := extract.NewExcelDecoder().Decode(data)
	if err != nil {
		return e.failCase(ctx, c, fmt.Sprintf("workbook could not be decoded: %v", err),
			map[string]any{"code": order.CodeParseFatal})
	}

	headers, columns := extract.PackInputs(wb, o.Schema.Sheet, o.Schema.HeaderRow)
	pack := committee.BuildPack(headers, columns, o.Meta.LanguageHint)

	// The selection seed is logged with the intended effect so the pick is
	// reproducible on replay.
	seed := e.seedFor(c)
	if err := e.appendTransition(ctx, c, cases.EventCommitteeSelected, "",
		cases.Actor{Type: cases.ActorSystem}, map[string]any{"seed": seed}, nil); err != nil {
		return err
	}

	result, err := e.reviewer.Review(ctx, pack, seed)
	if err != nil {
		// Below quorum: pause for corrections with a clear message.
		return e.appendTransition(ctx, c, cases.EventCommitteeCompleted, cases.StatusAwaitingCorrections,
			cases.Actor{Type: cases.ActorSystem},
			map[string]any{"code": order.CodeCommitteeUnavailable, "error": err.Error()}, nil)
	}

	votesJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}
	votesURI, _, err := e.blobs.Put(ctx, blob.ContainerAudit, c.ID, blob.ArtifactCommitteeVotes, votesJSON)
	if err != nil {
		if _, ok := err.(*blob.WriteOnceError); !ok {
			return err
		}
		votesURI = blob.URI(blob.ContainerAudit, c.ID, blob.ArtifactCommitteeVotes)
	}

	if result.RequiresHumanInput {
		return e.appendTransition(ctx, c, cases.EventCommitteeCompleted, cases.StatusAwaitingCorrections,
			cases.Actor{Type: cases.ActorSystem},
			map[string]any{"code": order.CodeCommitteeDisagreement},
			map[string]string{"committee_votes": votesURI})
	}

	return e.appendTransition(ctx, c, cases.EventCommitteeCompleted, cases.StatusResolvingCustomer,
		cases.Actor{Type: cases.ActorSystem},
		map[string]any{"valid_votes": len(result.ValidVotes)},
		map[string]string{"committee_votes": votesURI})
}

// stepResolveCustomer matches the customer against the catalog.
func (e *Engine) stepResolveCustomer(ctx context.Context, c *cases.Case) error {
	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}

	issues, err := e.resolver.ResolveCustomer(ctx, o)
	if err != nil {
		return err
	}
	o.Issues = append(o.Issues, issues...)

	uri, err := e.putCanonicalVersion(ctx, c, o)
	if err != nil {
		return err
	}

	if o.Customer.Status != order.ResolutionResolved {
		return e.appendTransition(ctx, c, cases.EventCustomerResolved, cases.StatusAwaitingCustomerSelection,
			cases.Actor{Type: cases.ActorSystem},
			map[string]any{"resolution": string(o.Customer.Status), "candidates": len(o.Customer.Candidates)},
			map[string]string{"canonical": uri})
	}

	return e.appendTransition(ctx, c, cases.EventCustomerResolved, cases.StatusResolvingItems,
		cases.Actor{Type: cases.ActorSystem},
		map[string]any{"customer_id": o.Customer.ResolvedID},
		map[string]string{"canonical": uri})
}

// stepResolveItems matches every line against the catalog and requests
// approval when everything resolved.
func (e *Engine) stepResolveItems(ctx context.Context, c *cases.Case) error {
	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}

	issues, deltas, err := e.resolver.ResolveItems(ctx, o)
	if err != nil {
		return err
	}
	o.Issues = append(o.Issues, issues...)

	uri, err := e.putCanonicalVersion(ctx, c, o)
	if err != nil {
		return err
	}

	data := map[string]any{"price_deltas": len(deltas)}
	if !o.AllItemsResolved() {
		unresolved := 0
		for _, li := range o.LineItems {
			if li.Status != order.ResolutionResolved {
				unresolved++
			}
		}
		data["unresolved"] = unresolved
		return e.appendTransition(ctx, c, cases.EventItemsResolved, cases.StatusAwaitingItemSelection,
			cases.Actor{Type: cases.ActorSystem}, data,
			map[string]string{"canonical": uri})
	}

	return e.appendTransition(ctx, c, cases.EventApprovalRequested, cases.StatusAwaitingApproval,
		cases.Actor{Type: cases.ActorSystem}, data,
		map[string]string{"canonical": uri})
}

// stepSubmit performs one submission attempt. The intended effect is logged
// before the external call so replay can dedupe on restart.
func (e *Engine) stepSubmit(ctx context.Context, c *cases.Case) error {
	o, err := e.loadCanonical(ctx, c.ID)
	if err != nil {
		return err
	}

	attempt := e.currentAttempt(ctx, c) + 1

	payload, err := submit.BuildPayload(o)
	if err != nil {
		return e.failCase(ctx, c, err.Error(), nil)
	}
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	reqURI, _, err := e.blobs.Put(ctx, blob.ContainerAudit, c.ID, blob.ArtifactExternalRequest, reqJSON)
	if err != nil {
		if _, ok := err.(*blob.WriteOnceError); !ok {
			return err
		}
		reqURI = blob.URI(blob.ContainerAudit, c.ID, blob.ArtifactExternalRequest)
	}

	if err := e.appendTransition(ctx, c, cases.EventSubmitIntended, "",
		cases.Actor{Type: cases.ActorSystem},
		map[string]any{"attempt": attempt, "fingerprint": submit.Fingerprint(o)},
		map[string]string{"external_request": reqURI}); err != nil {
		return err
	}

	res := e.submitter.Submit(ctx, o, attempt)
	if e.metrics != nil {
		e.metrics.SubmitAttempts.WithLabelValues(string(res.Outcome)).Inc()
	}

	switch res.Outcome {
	case submit.OutcomeCreated, submit.OutcomeDuplicate:
		respJSON, _ := json.Marshal(map[string]any{
			"external_order_id": res.ExternalOrderID,
			"external_number":   res.ExternalNumber,
			"duplicate":         res.Outcome == submit.OutcomeDuplicate,
		})
		respURI, _, putErr := e.blobs.Put(ctx, blob.ContainerAudit, c.ID, blob.ArtifactExternalResponse, respJSON)
		if putErr != nil {
			if _, ok := putErr.(*blob.WriteOnceError); !ok {
				return putErr
			}
			respURI = blob.URI(blob.ContainerAudit, c.ID, blob.ArtifactExternalResponse)
		}

		if err := e.submitter.EmitOutbox(ctx, c.ID, store.OutboxSalesOrderCreated, map[string]any{
			"case_id":           c.ID,
			"external_order_id": res.ExternalOrderID,
			"duplicate":         res.Outcome == submit.OutcomeDuplicate,
		}); err != nil {
			return err
		}
		if err := e.store.DeleteRetry(ctx, c.ID); err != nil {
			return err
		}
		return e.appendTransition(ctx, c, cases.EventSubmitSucceeded, cases.StatusCompleted,
			cases.Actor{Type: cases.ActorSystem},
			map[string]any{
				"external_order_id": res.ExternalOrderID,
				"duplicate":         res.Outcome == submit.OutcomeDuplicate,
			},
			map[string]string{"external_response": respURI})

	case submit.OutcomeRetryable:
		if attempt >= e.submitter.MaxAttempts() {
			if err := e.submitter.EmitOutbox(ctx, c.ID, store.OutboxRetryExhausted, map[string]any{
				"case_id": c.ID,
				"error":   res.Err.Error(),
			}); err != nil {
				return err
			}
			if err := e.store.DeleteRetry(ctx, c.ID); err != nil {
				return err
			}
			return e.failCase(ctx, c, fmt.Sprintf("submission retries exhausted: %v", res.Err),
				map[string]any{"attempts": attempt})
		}
		if err := e.submitter.EnqueueRetry(ctx, o, attempt, res); err != nil {
			return err
		}
		return e.appendTransition(ctx, c, cases.EventSubmitRetryQueued, cases.StatusQueuedForRetry,
			cases.Actor{Type: cases.ActorSystem},
			map[string]any{
				"attempt":     attempt,
				"retry_after": res.RetryAfter.String(),
				"error":       res.Err.Error(),
			}, nil)

	default: // OutcomeFailed
		if err := e.submitter.EmitOutbox(ctx, c.ID, store.OutboxSalesOrderFailed, map[string]any{
			"case_id": c.ID,
			"error":   res.Err.Error(),
		}); err != nil {
			return err
		}
		return e.failCase(ctx, c, res.Err.Error(), nil)
	}
}

// failCase transitions a case to failed with a single FAILED audit event.
func (e *Engine) failCase(ctx context.Context, c *cases.Case, message string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = message
	return e.appendTransition(ctx, c, cases.EventCaseFailed, cases.StatusFailed,
		cases.Actor{Type: cases.ActorSystem}, data, nil)
}

// incomingURI is the original file's blob location. The name embeds a hash
// prefix so re-uploads land next to, never over, the previous file.
func (e *Engine) incomingURI(c *cases.Case) string {
	return blob.URI(blob.ContainerIncoming, c.ID, IncomingName(c.FileName, c.FileHash))
}

// IncomingName is the blob object name for an uploaded workbook.
func IncomingName(fileName, fileHash string) string {
	prefix := fileHash
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return "original-" + prefix + fileExt(fileName)
}

// StoreIncomingFile writes uploaded workbook bytes into the evidence store
// under the case's incoming folder and returns the blob URI. Identical
// bytes re-store as a no-op.
func (e *Engine) StoreIncomingFile(ctx context.Context, caseID, fileName, fileHash string, data []byte) (string, error) {
	uri, _, err := e.blobs.Put(ctx, blob.ContainerIncoming, caseID, IncomingName(fileName, fileHash), data)
	if err != nil {
		if _, ok := err.(*blob.WriteOnceError); ok {
			return blob.URI(blob.ContainerIncoming, caseID, IncomingName(fileName, fileHash)), nil
		}
		return "", err
	}
	return uri, nil
}

// putCanonical writes the canonical order for its version.
func (e *Engine) putCanonical(ctx context.Context, c *cases.Case, o *order.CanonicalOrder) (string, error) {
	name := canonicalName(o.Version)
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return "", err
	}
	uri, _, err := e.blobs.Put(ctx, blob.ContainerAudit, c.ID, name, data)
	if err != nil {
		if _, ok := err.(*blob.WriteOnceError); ok {
			// Replay of an already-written version.
			return blob.URI(blob.ContainerAudit, c.ID, name), nil
		}
		return "", err
	}
	return uri, nil
}

// putCanonicalVersion bumps the version and writes a fresh snapshot.
func (e *Engine) putCanonicalVersion(ctx context.Context, c *cases.Case, o *order.CanonicalOrder) (string, error) {
	o.Version = e.nextVersion(ctx, c)
	return e.putCanonical(ctx, c, o)
}

// nextVersion is one past the highest canonical version referenced in the
// case's event log.
func (e *Engine) nextVersion(ctx context.Context, c *cases.Case) int {
	events, err := e.store.ListEvents(ctx, c.ID)
	if err != nil {
		return 1
	}
	max := 0
	for _, ev := range events {
		if v, ok := ev.Data["version"].(float64); ok && int(v) > max {
			max = int(v)
		}
		if uri, ok := ev.Pointers["canonical"]; ok {
			if v := versionFromURI(uri); v > max {
				max = v
			}
		}
	}
	return max + 1
}

// LoadCanonicalSnapshot returns a case's newest canonical order for the
// case browser.
func (e *Engine) LoadCanonicalSnapshot(ctx context.Context, caseID string) (*order.CanonicalOrder, error) {
	return e.loadCanonical(ctx, caseID)
}

// loadCanonical loads the newest canonical order version for a case by
// following the latest canonical pointer in the event log.
func (e *Engine) loadCanonical(ctx context.Context, caseID string) (*order.CanonicalOrder, error) {
	events, err := e.store.ListEvents(ctx, caseID)
	if err != nil {
		return nil, err
	}
	uri := ""
	for _, ev := range events {
		if u, ok := ev.Pointers["canonical"]; ok {
			uri = u
		}
	}
	if uri == "" {
		return nil, fmt.Errorf("case %s has no canonical order yet", caseID)
	}

	data, err := e.blobs.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	var o order.CanonicalOrder
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode canonical order: %w", err)
	}
	return &o, nil
}

// loadCorrections reads the newest corrections artifact, split into column
// pins and raw value overrides.
func (e *Engine) loadCorrections(ctx context.Context, caseID string) (map[order.Field]string, map[order.Field]string, error) {
	events, err := e.store.ListEvents(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	uri := ""
	for _, ev := range events {
		if u, ok := ev.Pointers["corrections"]; ok {
			uri = u
		}
	}
	if uri == "" {
		return nil, nil, nil
	}

	data, err := e.blobs.Get(ctx, uri)
	if err != nil {
		return nil, nil, err
	}
	var corrections []Correction
	if err := json.Unmarshal(data, &corrections); err != nil {
		return nil, nil, fmt.Errorf("failed to decode corrections: %w", err)
	}

	columns := map[order.Field]string{}
	values := map[order.Field]string{}
	for _, cor := range corrections {
		if !order.IsCanonicalField(string(cor.Field)) {
			continue
		}
		if cor.ColumnID != "" {
			columns[cor.Field] = cor.ColumnID
		}
		if cor.Value != "" {
			values[cor.Field] = cor.Value
		}
	}
	return columns, values, nil
}

// currentAttempt reads the last submission attempt number from the log.
func (e *Engine) currentAttempt(ctx context.Context, c *cases.Case) int {
	events, err := e.store.ListEvents(ctx, c.ID)
	if err != nil {
		return 0
	}
	attempt := 0
	for _, ev := range events {
		if ev.EventType == cases.EventSubmitIntended {
			if v, ok := ev.Data["attempt"].(float64); ok && int(v) > attempt {
				attempt = int(v)
			}
		}
	}
	return attempt
}

// seedFor derives the committee selection seed from the case identity and
// its current sequence, so a replayed selection picks the same providers
// while a corrected re-run draws a fresh committee.
func (e *Engine) seedFor(c *cases.Case) int64 {
	h := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d", c.ID, c.LastSequence)))
	return int64(binary.BigEndian.Uint64(h[:8]) >> 1)
}

func canonicalName(version int) string {
	if version <= 1 {
		return blob.ArtifactCanonical
	}
	return fmt.Sprintf("canonical-v%d.json", version)
}

func versionFromURI(uri string) int {
	var v int
	if n, _ := fmt.Sscanf(uri[lastSlash(uri)+1:], "canonical-v%d.json", &v); n == 1 {
		return v
	}
	if uri[lastSlash(uri)+1:] == blob.ArtifactCanonical {
		return 1
	}
	return 0
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

func fileExt(name string) string {
	for i := len(name) - 1; i >= 0 && name[i] != '/'; i-- {
		if name[i] == '.' {
			return name[i:]
		}
	}
	return ""
}
