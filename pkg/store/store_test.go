package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"orderdesk-hq/callisto/pkg/cases"
)

func nullTime() sql.NullTime { return sql.NullTime{} }

func testStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "state.db")
	s, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testCase(id string) *cases.Case {
	now := time.Now().UTC()
	return &cases.Case{
		ID:            id,
		TenantID:      "tenant-1",
		UploaderID:    "user-1",
		FileName:      "orders.xlsx",
		FileHash:      "aa11bb22",
		Status:        cases.StatusCreated,
		CorrelationID: id,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateCase_Duplicate(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateCase(ctx, testCase("case-1")); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	// Second upload for the same case id loses the race
	err := s.CreateCase(ctx, testCase("case-1"))
	var dup *DuplicateCaseError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCaseError, got %v", err)
	}

	// The loser can still observe the winner's state
	c, err := s.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if c.Status != cases.StatusCreated {
		t.Errorf("expected status created, got %s", c.Status)
	}
}

func TestAppendEvent_SequenceIsGapFree(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateCase(ctx, testCase("case-1")); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	for seq := int64(1); seq <= 3; seq++ {
		ev := &cases.AuditEvent{
			ID:          "ev-" + time.Now().Format("150405.000000000") + string(rune('a'+seq)),
			CaseID:      "case-1",
			Sequence:    seq,
			Timestamp:   time.Now().UTC(),
			EventType:   cases.EventCaseCreated,
			StatusAfter: cases.StatusStoringFile,
			Actor:       cases.Actor{Type: cases.ActorSystem},
		}
		if err := s.AppendEvent(ctx, ev, nullTime()); err != nil {
			t.Fatalf("AppendEvent seq %d failed: %v", seq, err)
		}
	}

	events, err := s.ListEvents(ctx, "case-1")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Sequence != int64(i+1) {
			t.Errorf("event %d: expected sequence %d, got %d", i, i+1, ev.Sequence)
		}
	}
}

func TestAppendEvent_StaleSequenceConflicts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateCase(ctx, testCase("case-1")); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	ev := &cases.AuditEvent{
		ID: "ev-1", CaseID: "case-1", Sequence: 1,
		Timestamp: time.Now().UTC(), EventType: cases.EventCaseCreated,
		Actor: cases.Actor{Type: cases.ActorSystem},
	}
	if err := s.AppendEvent(ctx, ev, nullTime()); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	// Replaying the same sequence must fail: another writer already advanced
	stale := &cases.AuditEvent{
		ID: "ev-2", CaseID: "case-1", Sequence: 1,
		Timestamp: time.Now().UTC(), EventType: cases.EventFileStored,
		Actor: cases.Actor{Type: cases.ActorSystem},
	}
	err := s.AppendEvent(ctx, stale, nullTime())
	var conflict *SequenceConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SequenceConflictError, got %v", err)
	}

	// A gap must fail too
	gap := &cases.AuditEvent{
		ID: "ev-3", CaseID: "case-1", Sequence: 5,
		Timestamp: time.Now().UTC(), EventType: cases.EventFileStored,
		Actor: cases.Actor{Type: cases.ActorSystem},
	}
	if err := s.AppendEvent(ctx, gap, nullTime()); !errors.As(err, &conflict) {
		t.Fatalf("expected SequenceConflictError for gap, got %v", err)
	}
}

func TestAppendEvent_UpdatesCaseStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.CreateCase(ctx, testCase("case-1")); err != nil {
		t.Fatalf("CreateCase failed: %v", err)
	}

	ev := &cases.AuditEvent{
		ID: "ev-1", CaseID: "case-1", Sequence: 1,
		Timestamp: time.Now().UTC(), EventType: cases.EventFileStored,
		StatusAfter: cases.StatusParsing,
		Actor:       cases.Actor{Type: cases.ActorSystem},
	}
	if err := s.AppendEvent(ctx, ev, nullTime()); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	c, err := s.GetCase(ctx, "case-1")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if c.Status != cases.StatusParsing {
		t.Errorf("expected status parsing, got %s", c.Status)
	}
	if c.LastSequence != 1 {
		t.Errorf("expected last_sequence 1, got %d", c.LastSequence)
	}
}

func TestInsertFingerprint_Conflict(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fp := &Fingerprint{
		FingerprintHex: "deadbeef",
		CaseID:         "case-1",
		TenantID:       "tenant-1",
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.InsertFingerprint(ctx, fp); err != nil {
		t.Fatalf("InsertFingerprint failed: %v", err)
	}

	if err := s.SetFingerprintOrderID(ctx, "deadbeef", "SO-001"); err != nil {
		t.Fatalf("SetFingerprintOrderID failed: %v", err)
	}

	// Same fingerprint from another case: conflict carries the original order id
	dup := &Fingerprint{
		FingerprintHex: "deadbeef",
		CaseID:         "case-2",
		TenantID:       "tenant-1",
		CreatedAt:      time.Now().UTC(),
	}
	err := s.InsertFingerprint(ctx, dup)
	var dupErr *DuplicateFingerprintError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateFingerprintError, got %v", err)
	}
	if dupErr.Existing.CaseID != "case-1" {
		t.Errorf("expected original case-1, got %s", dupErr.Existing.CaseID)
	}
	if dupErr.Existing.ExternalOrderID != "SO-001" {
		t.Errorf("expected external order SO-001, got %q", dupErr.Existing.ExternalOrderID)
	}
}

func TestRetryQueue_ClaimWithVisibilityTimeout(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := &RetryItem{
		CaseID:        "case-1",
		Payload:       []byte(`{"order":"x"}`),
		AttemptCount:  1,
		NextAttemptAt: now.Add(-time.Second),
		LastError:     "503",
	}
	if err := s.EnqueueRetry(ctx, item); err != nil {
		t.Fatalf("EnqueueRetry failed: %v", err)
	}

	claimed, err := s.ClaimDueRetries(ctx, now, 30*time.Second, 10)
	if err != nil {
		t.Fatalf("ClaimDueRetries failed: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed item, got %d", len(claimed))
	}

	// While claimed the item is invisible to other consumers
	again, err := s.ClaimDueRetries(ctx, now, 30*time.Second, 10)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected 0 items while claim is live, got %d", len(again))
	}

	// After the visibility timeout the claim expires
	later := now.Add(time.Minute)
	expired, err := s.ClaimDueRetries(ctx, later, 30*time.Second, 10)
	if err != nil {
		t.Fatalf("third claim failed: %v", err)
	}
	if len(expired) != 1 {
		t.Errorf("expected reclaim after visibility timeout, got %d items", len(expired))
	}

	if err := s.DeleteRetry(ctx, "case-1"); err != nil {
		t.Fatalf("DeleteRetry failed: %v", err)
	}
	final, err := s.ClaimDueRetries(ctx, later.Add(time.Hour), 30*time.Second, 10)
	if err != nil {
		t.Fatalf("final claim failed: %v", err)
	}
	if len(final) != 0 {
		t.Errorf("expected empty queue after delete, got %d", len(final))
	}
}

func TestOutbox_PendingToProcessed(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := &OutboxEntry{
		ID:        "ob-1",
		CaseID:    "case-1",
		EventType: OutboxSalesOrderCreated,
		Payload:   []byte(`{"external_order_id":"SO-001"}`),
		CreatedAt: now,
	}
	if err := s.AppendOutbox(ctx, entry); err != nil {
		t.Fatalf("AppendOutbox failed: %v", err)
	}

	pending, err := s.PendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("PendingOutbox failed: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != OutboxSalesOrderCreated {
		t.Fatalf("unexpected pending entries: %+v", pending)
	}

	if err := s.MarkOutboxProcessed(ctx, "ob-1", now.Add(time.Second)); err != nil {
		t.Fatalf("MarkOutboxProcessed failed: %v", err)
	}
	pending, err = s.PendingOutbox(ctx, 10)
	if err != nil {
		t.Fatalf("PendingOutbox failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending entries, got %d", len(pending))
	}
}

func TestLease_SingleOwner(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ok, err := s.AcquireLease(ctx, "case-1", "worker-a", 30*time.Second, now)
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if !ok {
		t.Fatal("worker-a should acquire a free lease")
	}

	ok, err = s.AcquireLease(ctx, "case-1", "worker-b", 30*time.Second, now)
	if err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if ok {
		t.Error("worker-b must not steal a live lease")
	}

	// Renewal by the same owner succeeds
	ok, err = s.AcquireLease(ctx, "case-1", "worker-a", 30*time.Second, now.Add(10*time.Second))
	if err != nil {
		t.Fatalf("renewal failed: %v", err)
	}
	if !ok {
		t.Error("worker-a should renew its own lease")
	}

	// Takeover after expiry succeeds
	ok, err = s.AcquireLease(ctx, "case-1", "worker-b", 30*time.Second, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("takeover failed: %v", err)
	}
	if !ok {
		t.Error("worker-b should take over an expired lease")
	}

	if err := s.ReleaseLease(ctx, "case-1", "worker-b"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
}

func TestCatalogCacheTables_ReplaceAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	customers := []*CachedCustomer{
		{ExternalID: "cust_001", DisplayName: "ACME Corporation", Status: "active", RefreshedAt: now},
	}
	if err := s.ReplaceCustomers(ctx, customers); err != nil {
		t.Fatalf("ReplaceCustomers failed: %v", err)
	}

	items := []*CachedItem{
		{ExternalID: "item_001", SKU: "SKU-001", Name: "Widget", Rate: 25.50, Status: "active", RefreshedAt: now},
	}
	if err := s.ReplaceItems(ctx, items); err != nil {
		t.Fatalf("ReplaceItems failed: %v", err)
	}

	loaded, err := s.LoadItems(ctx)
	if err != nil {
		t.Fatalf("LoadItems failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Rate != 25.50 {
		t.Fatalf("unexpected items: %+v", loaded)
	}
}
