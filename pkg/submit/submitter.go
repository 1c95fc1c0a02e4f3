package submit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/store"
)

// RetryPolicy tunes the exponential backoff for transient failures.
type RetryPolicy struct {
	// Base is the first backoff step. Default: 1s.
	Base time.Duration

	// Cap bounds any single backoff. Default: 16s.
	Cap time.Duration

	// MaxAttempts is the total attempt budget. Default: 5.
	MaxAttempts int
}

// DefaultRetryPolicy returns the default backoff schedule 1s,2s,4s,8s,16s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Base:        time.Second,
		Cap:         16 * time.Second,
		MaxAttempts: 5,
	}
}

// Backoff returns the delay before the given attempt (1-based):
// base·2^(attempt-1), capped. A Retry-After hint wins when it is larger.
func (p RetryPolicy) Backoff(attempt int, retryAfter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.Base << (attempt - 1)
	if d > p.Cap || d <= 0 {
		d = p.Cap
	}
	if retryAfter > d {
		return retryAfter
	}
	return d
}

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRetryable Outcome = "retryable"
	OutcomeFailed    Outcome = "failed"
)

// Result is what one submission attempt produced.
type Result struct {
	Outcome         Outcome
	ExternalOrderID string
	ExternalNumber  string

	// RetryAfter is the delay before the next attempt when retryable.
	RetryAfter time.Duration

	// Err carries the classification detail for retryable/failed.
	Err error
}

// Bounds for the duplicate-while-in-flight window: wait-and-retry the
// fingerprint lookup instead of posting again.
const (
	inFlightLookupTries = 5
	inFlightLookupDelay = 2 * time.Second
)

// Drafter creates draft orders; *Client implements it, tests fake it.
type Drafter interface {
	CreateDraftOrder(ctx context.Context, p *DraftPayload) (*DraftResult, error)
}

// Submitter runs the idempotent submission flow against the state store.
type Submitter struct {
	store   *store.Store
	client  Drafter
	policy  RetryPolicy
	logger  *slog.Logger
	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSubmitter creates a submitter.
func NewSubmitter(st *store.Store, client Drafter, policy RetryPolicy) *Submitter {
	return &Submitter{
		store:   st,
		client:  client,
		policy:  policy,
		logger:  slog.Default().With("component", "submit"),
		nowFunc: time.Now,
		sleep:   sleepCtx,
	}
}

// Submit attempts to create the draft order for a fully resolved canonical
// order. attempt is 1-based across retries of the same case.
//
// Sequence: fingerprint gate first (atomic insert-or-conflict), then the
// external post, then the fingerprint is stamped with the external order id.
// A conflict with a stamped record returns the original id as a duplicate;
// a conflict without one means a sibling is in flight and the lookup is
// retried for a bounded window.
func (s *Submitter) Submit(ctx context.Context, o *order.CanonicalOrder, attempt int) *Result {
	payload, err := BuildPayload(o)
	if err != nil {
		return &Result{Outcome: OutcomeFailed, Err: err}
	}

	fp := &store.Fingerprint{
		FingerprintHex: Fingerprint(o),
		CaseID:         o.Meta.CaseID,
		TenantID:       o.Meta.TenantID,
		CreatedAt:      s.nowFunc().UTC(),
	}

	err = s.store.InsertFingerprint(ctx, fp)
	var dup *store.DuplicateFingerprintError
	if errors.As(err, &dup) {
		if dup.Existing.CaseID == o.Meta.CaseID {
			// Our own earlier attempt inserted the gate; fall through and
			// post (the external reference number dedupes operator-side).
		} else {
			return s.resolveDuplicate(ctx, dup)
		}
	} else if err != nil {
		return &Result{Outcome: OutcomeRetryable, Err: err, RetryAfter: s.policy.Backoff(attempt, 0)}
	}

	result, err := s.client.CreateDraftOrder(ctx, payload)
	if err != nil {
		return s.classify(err, attempt)
	}

	if err := s.store.SetFingerprintOrderID(ctx, fp.FingerprintHex, result.OrderID); err != nil {
		// The draft exists, so the creation is still reported; a missing
		// stamp leaves foreign duplicates on the in-flight wait path.
		s.logger.Error("failed to stamp fingerprint", "case_id", o.Meta.CaseID, "error", err)
	}

	s.logger.Info("draft order created",
		"case_id", o.Meta.CaseID,
		"external_order_id", result.OrderID,
	)
	return &Result{
		Outcome:         OutcomeCreated,
		ExternalOrderID: result.OrderID,
		ExternalNumber:  result.OrderNumber,
	}
}

// resolveDuplicate handles a foreign fingerprint conflict: return the
// stamped id, or wait briefly for the in-flight sibling to stamp it.
func (s *Submitter) resolveDuplicate(ctx context.Context, dup *store.DuplicateFingerprintError) *Result {
	if dup.Existing.ExternalOrderID != "" {
		return &Result{Outcome: OutcomeDuplicate, ExternalOrderID: dup.Existing.ExternalOrderID}
	}

	for i := 0; i < inFlightLookupTries; i++ {
		if err := s.sleep(ctx, inFlightLookupDelay); err != nil {
			return &Result{Outcome: OutcomeRetryable, Err: err}
		}
		existing, err := s.store.GetFingerprint(ctx, dup.Fingerprint)
		if err != nil {
			return &Result{Outcome: OutcomeRetryable, Err: err}
		}
		if existing.ExternalOrderID != "" {
			return &Result{Outcome: OutcomeDuplicate, ExternalOrderID: existing.ExternalOrderID}
		}
	}

	return &Result{
		Outcome: OutcomeRetryable,
		Err: &InFlightDuplicateError{
			Fingerprint:  dup.Fingerprint,
			OriginalCase: dup.Existing.CaseID,
		},
	}
}

// classify maps a client error to an outcome per the retry policy.
func (s *Submitter) classify(err error, attempt int) *Result {
	var transient *TransientError
	if errors.As(err, &transient) {
		return &Result{
			Outcome:    OutcomeRetryable,
			Err:        err,
			RetryAfter: s.policy.Backoff(attempt, transient.RetryAfter),
		}
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		// The client already refreshed once inside the attempt; a second
		// rejection is worth one more scheduled retry before failing.
		return &Result{
			Outcome:    OutcomeRetryable,
			Err:        err,
			RetryAfter: s.policy.Backoff(attempt, 0),
		}
	}
	return &Result{Outcome: OutcomeFailed, Err: err}
}

// EnqueueRetry persists a retry item for a retryable result.
func (s *Submitter) EnqueueRetry(ctx context.Context, o *order.CanonicalOrder, attempt int, res *Result) error {
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal retry payload: %w", err)
	}
	msg := ""
	if res.Err != nil {
		msg = res.Err.Error()
	}
	return s.store.EnqueueRetry(ctx, &store.RetryItem{
		CaseID:        o.Meta.CaseID,
		Payload:       payload,
		AttemptCount:  attempt,
		NextAttemptAt: s.nowFunc().UTC().Add(res.RetryAfter),
		LastError:     msg,
	})
}

// EmitOutbox writes an outbox entry for a terminal submission outcome.
func (s *Submitter) EmitOutbox(ctx context.Context, caseID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return s.store.AppendOutbox(ctx, &store.OutboxEntry{
		ID:        uuid.NewString(),
		CaseID:    caseID,
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.nowFunc().UTC(),
	})
}

// MaxAttempts exposes the policy budget to the orchestrator.
func (s *Submitter) MaxAttempts() int {
	return s.policy.MaxAttempts
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
