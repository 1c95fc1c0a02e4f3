package submit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"orderdesk-hq/callisto/pkg/store"
)

type fakeDrafter struct {
	results []any // *DraftResult or error, consumed in order
	calls   int
}

func (f *fakeDrafter) CreateDraftOrder(ctx context.Context, p *DraftPayload) (*DraftResult, error) {
	f.calls++
	if len(f.results) == 0 {
		return &DraftResult{OrderID: "SO-DEFAULT"}, nil
	}
	next := f.results[0]
	f.results = f.results[1:]
	if err, ok := next.(error); ok {
		return nil, err
	}
	return next.(*DraftResult), nil
}

func testSubmitter(t *testing.T, drafter Drafter) (*Submitter, *store.Store) {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "state.db")
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s := NewSubmitter(st, drafter, DefaultRetryPolicy())
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s, st
}

func TestSubmit_CreatesDraftAndStampsFingerprint(t *testing.T) {
	drafter := &fakeDrafter{results: []any{&DraftResult{OrderID: "SO-001", OrderNumber: "SO-00001"}}}
	s, st := testSubmitter(t, drafter)
	ctx := context.Background()

	o := resolvedOrder()
	res := s.Submit(ctx, o, 1)

	if res.Outcome != OutcomeCreated {
		t.Fatalf("outcome %s (%v), want created", res.Outcome, res.Err)
	}
	if res.ExternalOrderID != "SO-001" {
		t.Errorf("external id %q", res.ExternalOrderID)
	}

	fp, err := st.GetFingerprint(ctx, Fingerprint(o))
	if err != nil {
		t.Fatalf("GetFingerprint failed: %v", err)
	}
	if fp.ExternalOrderID != "SO-001" {
		t.Errorf("fingerprint not stamped: %+v", fp)
	}
}

func TestSubmit_DuplicateReturnsOriginalID(t *testing.T) {
	drafter := &fakeDrafter{results: []any{&DraftResult{OrderID: "SO-001"}}}
	s, _ := testSubmitter(t, drafter)
	ctx := context.Background()

	first := resolvedOrder()
	if res := s.Submit(ctx, first, 1); res.Outcome != OutcomeCreated {
		t.Fatalf("first submit: %s (%v)", res.Outcome, res.Err)
	}

	// Identical canonical inputs from a different case on the same day.
	second := resolvedOrder()
	second.Meta.CaseID = "case-2"
	res := s.Submit(ctx, second, 1)

	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome %s, want duplicate", res.Outcome)
	}
	if res.ExternalOrderID != "SO-001" {
		t.Errorf("duplicate must return the original id, got %q", res.ExternalOrderID)
	}
	if drafter.calls != 1 {
		t.Errorf("no second external post may happen, got %d calls", drafter.calls)
	}
}

func TestSubmit_TransientEnqueuesRetry(t *testing.T) {
	drafter := &fakeDrafter{results: []any{
		&TransientError{StatusCode: 503, Message: "unavailable"},
	}}
	s, st := testSubmitter(t, drafter)
	ctx := context.Background()

	o := resolvedOrder()
	res := s.Submit(ctx, o, 1)

	if res.Outcome != OutcomeRetryable {
		t.Fatalf("outcome %s, want retryable", res.Outcome)
	}
	if res.RetryAfter != time.Second {
		t.Errorf("first backoff %s, want 1s", res.RetryAfter)
	}

	if err := s.EnqueueRetry(ctx, o, 1, res); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}
	items, err := st.ClaimDueRetries(ctx, time.Now().UTC().Add(2*time.Second), 30*time.Second, 10)
	if err != nil {
		t.Fatalf("ClaimDueRetries failed: %v", err)
	}
	if len(items) != 1 || items[0].CaseID != "case-1" {
		t.Fatalf("retry queue: %+v", items)
	}
}

func TestSubmit_RateLimitHonorsRetryAfter(t *testing.T) {
	drafter := &fakeDrafter{results: []any{
		&TransientError{StatusCode: 429, Message: "slow down", RetryAfter: 45 * time.Second},
	}}
	s, _ := testSubmitter(t, drafter)

	res := s.Submit(context.Background(), resolvedOrder(), 1)
	if res.Outcome != OutcomeRetryable {
		t.Fatalf("outcome %s, want retryable", res.Outcome)
	}
	if res.RetryAfter != 45*time.Second {
		t.Errorf("RetryAfter %s, want the server's 45s verbatim", res.RetryAfter)
	}
}

func TestSubmit_PermanentFails(t *testing.T) {
	drafter := &fakeDrafter{results: []any{
		&PermanentError{StatusCode: 400, Message: "bad payload"},
	}}
	s, _ := testSubmitter(t, drafter)

	res := s.Submit(context.Background(), resolvedOrder(), 1)
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome %s, want failed", res.Outcome)
	}
}

func TestSubmit_OwnFingerprintRetryPostsAgain(t *testing.T) {
	// First attempt hits a 503 after inserting the gate; the scheduled
	// retry for the same case must pass its own fingerprint and post.
	drafter := &fakeDrafter{results: []any{
		&TransientError{StatusCode: 503, Message: "unavailable"},
		&DraftResult{OrderID: "SO-002"},
	}}
	s, _ := testSubmitter(t, drafter)
	ctx := context.Background()

	o := resolvedOrder()
	if res := s.Submit(ctx, o, 1); res.Outcome != OutcomeRetryable {
		t.Fatalf("first attempt should be retryable")
	}
	res := s.Submit(ctx, o, 2)
	if res.Outcome != OutcomeCreated || res.ExternalOrderID != "SO-002" {
		t.Fatalf("retry outcome %s (%v)", res.Outcome, res.Err)
	}
}

func TestBuildPayload_UsesResolvedPriceOnly(t *testing.T) {
	o := resolvedOrder()
	src := 99.99
	o.LineItems[0].UnitPriceSource = &src

	p, err := BuildPayload(o)
	if err != nil {
		t.Fatalf("BuildPayload failed: %v", err)
	}
	if p.Status != "draft" {
		t.Errorf("status %q, want draft", p.Status)
	}
	if p.LineItems[0].Rate != 25.50 {
		t.Errorf("rate %v, want the catalog 25.50, never the source price", p.LineItems[0].Rate)
	}
	if p.ReferenceNumber != "case-1" {
		t.Errorf("reference %q, want the case id", p.ReferenceNumber)
	}
}

func TestBuildPayload_RejectsUnresolvedLines(t *testing.T) {
	o := resolvedOrder()
	o.LineItems[0].ResolvedItemID = ""

	if _, err := BuildPayload(o); err == nil {
		t.Error("expected rejection of unresolved line")
	}
}
