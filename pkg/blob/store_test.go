package blob

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testBlobStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&Config{
		Root:       t.TempDir(),
		SigningKey: []byte("test-signing-key"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPut_ContentAddressedIdempotent(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	uri1, sum1, err := s.Put(ctx, ContainerAudit, "case-1", ArtifactCanonical, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Identical bytes: no-op, same uri and hash
	uri2, sum2, err := s.Put(ctx, ContainerAudit, "case-1", ArtifactCanonical, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("idempotent Put failed: %v", err)
	}
	if uri1 != uri2 || sum1 != sum2 {
		t.Errorf("expected identical uri/hash, got %s/%s vs %s/%s", uri1, sum1, uri2, sum2)
	}

	// Different bytes to the same name: write-once violation
	_, _, err = s.Put(ctx, ContainerAudit, "case-1", ArtifactCanonical, []byte(`{"a":2}`))
	var wo *WriteOnceError
	if !errors.As(err, &wo) {
		t.Fatalf("expected WriteOnceError, got %v", err)
	}
}

func TestPut_RoundTrip(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	data := []byte("workbook bytes")
	uri, _, err := s.Put(ctx, ContainerIncoming, "case-1", "original.xlsx", data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, uri)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("round trip mismatch: %q", got)
	}

	ok, err := s.Exists(ctx, uri)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true, nil", ok, err)
	}
}

func TestPut_RejectsTraversal(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()

	if _, _, err := s.Put(ctx, ContainerAudit, "../evil", "x.json", []byte("{}")); err == nil {
		t.Error("expected rejection of traversal in case id")
	}
	if _, _, err := s.Put(ctx, ContainerAudit, "case-1", "../../x.json", []byte("{}")); err == nil {
		t.Error("expected rejection of traversal in name")
	}
}

func TestSignedURL_VerifyAndExpiry(t *testing.T) {
	s := testBlobStore(t)
	ctx := context.Background()
	now := time.Now()

	uri, _, err := s.Put(ctx, ContainerIncoming, "case-1", "original.xlsx", []byte("bytes"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	signed, err := s.SignedURL(uri, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}

	got, err := s.VerifySignedURL(signed, now)
	if err != nil {
		t.Fatalf("VerifySignedURL failed: %v", err)
	}
	if got != uri {
		t.Errorf("expected uri %q, got %q", uri, got)
	}

	if _, err := s.VerifySignedURL(signed, now.Add(2*time.Hour)); err == nil {
		t.Error("expected expired signature to fail")
	}

	// Tampering with the path invalidates the signature
	tampered := ContainerIncoming + "/case-2/original.xlsx?" +
		signed[len(uri)+1:]
	if _, err := s.VerifySignedURL(tampered, now); err == nil {
		t.Error("expected tampered url to fail verification")
	}
}
