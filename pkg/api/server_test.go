package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xuri/excelize/v2"

	"orderdesk-hq/callisto/pkg/blob"
	"orderdesk-hq/callisto/pkg/cases"
	"orderdesk-hq/callisto/pkg/catalog"
	"orderdesk-hq/callisto/pkg/committee"
	"orderdesk-hq/callisto/pkg/extract"
	"orderdesk-hq/callisto/pkg/orchestrate"
	"orderdesk-hq/callisto/pkg/order"
	"orderdesk-hq/callisto/pkg/security/auth"
	"orderdesk-hq/callisto/pkg/store"
	"orderdesk-hq/callisto/pkg/submit"
)

var jwtKey = []byte("test-jwt-key")

type apiReviewer struct{}

func (apiReviewer) Review(ctx context.Context, pack *committee.Pack, seed int64) (*committee.Result, error) {
	return &committee.Result{Seed: seed, ValidVotes: make([]committee.Vote, 3)}, nil
}

type apiResolver struct{}

func (apiResolver) ResolveCustomer(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, error) {
	o.Customer.Status = order.ResolutionResolved
	o.Customer.ResolvedID = "cust_001"
	return nil, nil
}

func (apiResolver) ResolveItems(ctx context.Context, o *order.CanonicalOrder) ([]order.Issue, []catalog.PriceDelta, error) {
	for i := range o.LineItems {
		o.LineItems[i].Status = order.ResolutionResolved
		o.LineItems[i].ResolvedItemID = "item_001"
		rate := 25.50
		o.LineItems[i].UnitPriceResolved = &rate
	}
	return nil, nil, nil
}

type apiSubmitter struct{}

func (apiSubmitter) Submit(ctx context.Context, o *order.CanonicalOrder, attempt int) *submit.Result {
	return &submit.Result{Outcome: submit.OutcomeCreated, ExternalOrderID: "SO-001"}
}
func (apiSubmitter) EnqueueRetry(ctx context.Context, o *order.CanonicalOrder, attempt int, res *submit.Result) error {
	return nil
}
func (apiSubmitter) EmitOutbox(ctx context.Context, caseID, eventType string, payload any) error {
	return nil
}
func (apiSubmitter) MaxAttempts() int { return 5 }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "state.db")
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.Open(&blob.Config{Root: t.TempDir(), SigningKey: []byte("blob-key")})
	if err != nil {
		t.Fatalf("blob.Open failed: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })

	extractor := extract.New(extract.DefaultConfig(), nil)
	engine := orchestrate.New(orchestrate.DefaultConfig(), st, blobs, extractor,
		apiReviewer{}, apiResolver{}, apiSubmitter{})

	srv := New(Options{
		MaxUploadBytes: 4096,
		ToolsKey:       "tools-key",
	}, engine, st, blobs, extractor, apiReviewer{}, apiSubmitter{},
		auth.NewVerifier(jwtKey, "", ""), nil)
	return srv, st
}

func bearerFor(t *testing.T, sub, tenant string, roles []string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       sub,
		"tenant_id": tenant,
		"roles":     roles,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString(jwtKey)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + raw
}

func orderXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Customer", "SKU", "Product", "Qty", "Unit Price", "Total"},
		{"ACME Corporation", "SKU-001", "Widget", 10, 25.50, 255.00},
	}
	for r, row := range rows {
		for c, v := range row {
			axis, _ := excelize.CoordinatesToCellName(c+1, r+1)
			f.SetCellValue(sheet, axis, v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadBody(t *testing.T, caseID, fileName string, data []byte) []byte {
	t.Helper()
	sum := sha256.Sum256(data)
	body, err := json.Marshal(map[string]any{
		"case_id":        caseID,
		"tenant_id":      "tenant-1",
		"user_id":        "user-1",
		"file_name":      fileName,
		"file_hash":      hex.EncodeToString(sum[:]),
		"content_base64": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestFileUploaded_RequiresJWT(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.xlsx", orderXLSX(t))))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401 without a token", rec.Code)
	}
}

func TestFileUploaded_HappyPath(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.xlsx", orderXLSX(t))))
	req.Header.Set("Authorization", bearerFor(t, "bot-1", "tenant-1", []string{"Bot"}))
	req.Header.Set("x-correlation-id", "case-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("x-correlation-id") != "case-1" {
		t.Error("correlation id must echo")
	}

	c, err := st.GetCase(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("case not created: %v", err)
	}
	if c.Status != "awaiting_approval" {
		t.Errorf("status %s", c.Status)
	}
}

func TestFileUploaded_SizeBoundary(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	// Exactly at the limit: accepted (the body is not a valid workbook,
	// but it must pass the size gate and reach case creation).
	atLimit := make([]byte, 4096)
	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-max", "orders.xlsx", atLimit)))
	req.Header.Set("Authorization", bearerFor(t, "bot-1", "tenant-1", []string{"Bot"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code == http.StatusRequestEntityTooLarge {
		t.Errorf("a file exactly at the limit must not be rejected for size")
	}

	// One byte over: rejected.
	overLimit := make([]byte, 4097)
	req = httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-over", "orders.xlsx", overLimit)))
	req.Header.Set("Authorization", bearerFor(t, "bot-1", "tenant-1", []string{"Bot"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status %d, want 413 one byte over the limit", rec.Code)
	}
}

func TestFileUploaded_ExtensionGate(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.pdf", []byte("x"))))
	req.Header.Set("Authorization", bearerFor(t, "bot-1", "tenant-1", []string{"Bot"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status %d, want 415 for a non-spreadsheet extension", rec.Code)
	}
}

func TestCaseBrowser_RoleMatrix(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	// Create a case owned by user-1 in tenant-1.
	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.xlsx", orderXLSX(t))))
	req.Header.Set("Authorization", bearerFor(t, "user-1", "tenant-1", []string{"Bot"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}

	get := func(authHeader string) int {
		req := httptest.NewRequest(http.MethodGet, "/cases/case-1", nil)
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := get(bearerFor(t, "user-1", "tenant-1", []string{"SalesUser"})); code != http.StatusOK {
		t.Errorf("owner read: %d, want 200", code)
	}
	if code := get(bearerFor(t, "user-2", "tenant-1", []string{"SalesUser"})); code != http.StatusForbidden {
		t.Errorf("stranger read: %d, want 403", code)
	}
	if code := get(bearerFor(t, "mgr-1", "tenant-1", []string{"SalesManager"})); code != http.StatusOK {
		t.Errorf("manager same tenant: %d, want 200", code)
	}
	if code := get(bearerFor(t, "mgr-2", "tenant-9", []string{"SalesManager"})); code != http.StatusForbidden {
		t.Errorf("manager other tenant: %d, want 403", code)
	}
	if code := get(bearerFor(t, "aud-1", "tenant-9", []string{"OpsAuditor"})); code != http.StatusOK {
		t.Errorf("auditor read: %d, want 200", code)
	}
}

func TestDownloadSAS_SignedAndVerifiable(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.xlsx", orderXLSX(t))))
	req.Header.Set("Authorization", bearerFor(t, "user-1", "tenant-1", []string{"Bot"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/cases/case-1/download-sas", nil)
	req.Header.Set("Authorization", bearerFor(t, "user-1", "tenant-1", []string{"SalesUser"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sas failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if _, err := srv.blobs.VerifySignedURL(resp.URL, time.Now()); err != nil {
		t.Errorf("signed url does not verify: %v", err)
	}
}

func TestCancel_RoleMatrix(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Routes()

	// Create a case owned by user-1 in tenant-1.
	req := httptest.NewRequest(http.MethodPost, "/bot/file-uploaded",
		bytes.NewReader(uploadBody(t, "case-1", "orders.xlsx", orderXLSX(t))))
	req.Header.Set("Authorization", bearerFor(t, "user-1", "tenant-1", []string{"Bot"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload failed: %d %s", rec.Code, rec.Body.String())
	}

	cancel := func(authHeader string) int {
		body, _ := json.Marshal(map[string]any{
			"case_id": "case-1",
			"reason":  "test",
		})
		req := httptest.NewRequest(http.MethodPost, "/bot/cancel", bytes.NewReader(body))
		req.Header.Set("Authorization", authHeader)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Non-privileged actors must not cancel anything.
	if code := cancel(bearerFor(t, "user-1", "tenant-1", []string{"SalesUser"})); code != http.StatusForbidden {
		t.Errorf("sales user cancel: %d, want 403", code)
	}
	if code := cancel(bearerFor(t, "bot-1", "tenant-1", []string{"Bot"})); code != http.StatusForbidden {
		t.Errorf("bot cancel: %d, want 403", code)
	}
	c, err := st.GetCase(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("GetCase failed: %v", err)
	}
	if c.Status == cases.StatusCancelled {
		t.Fatal("case must survive non-privileged cancel attempts")
	}

	// A privileged actor cancels the case.
	if code := cancel(bearerFor(t, "mgr-1", "tenant-1", []string{"SalesManager"})); code != http.StatusOK {
		t.Errorf("manager cancel: %d, want 200", code)
	}
	c, _ = st.GetCase(context.Background(), "case-1")
	if c.Status != cases.StatusCancelled {
		t.Errorf("status %s, want cancelled", c.Status)
	}

	// A second cancel on the terminal case conflicts, even for an auditor.
	if code := cancel(bearerFor(t, "aud-1", "tenant-1", []string{"OpsAuditor"})); code != http.StatusConflict {
		t.Errorf("cancel of terminal case: %d, want 409", code)
	}
}

func TestToolEndpoints_SubscriptionKey(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Routes()

	body, _ := json.Marshal(map[string]any{
		"tenant_id":      "tenant-1",
		"file_name":      "orders.xlsx",
		"file_hash":      "00",
		"content_base64": base64.StdEncoding.EncodeToString(orderXLSX(t)),
	})

	req := httptest.NewRequest(http.MethodPost, "/tools/parse", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/tools/parse", bytes.NewReader(body))
	req.Header.Set("x-subscription-key", "tools-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with key: %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var o order.CanonicalOrder
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatal(err)
	}
	if len(o.LineItems) != 1 {
		t.Errorf("tool parse extracted %d lines", len(o.LineItems))
	}
}
