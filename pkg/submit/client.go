package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"orderdesk-hq/callisto/pkg/catalog"
	"orderdesk-hq/callisto/pkg/order"
)

// DraftPayload is the external sales-order payload. Unit rates come from
// unit_price_resolved exclusively; the spreadsheet price never appears here.
type DraftPayload struct {
	CustomerID string        `json:"customer_id"`
	Status     string        `json:"status"` // always "draft"
	LineItems  []PayloadLine `json:"line_items"`

	// ReferenceNumber carries the case id as the external order key for
	// operator traceability.
	ReferenceNumber string `json:"reference_number"`

	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

// PayloadLine is one payload line item.
type PayloadLine struct {
	ItemID   string  `json:"item_id"`
	Quantity float64 `json:"quantity"`
	Rate     float64 `json:"rate"`
}

// CustomField is one external custom field.
type CustomField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DraftResult is the external system's answer.
type DraftResult struct {
	OrderID     string `json:"salesorder_id"`
	OrderNumber string `json:"salesorder_number"`
}

// BuildPayload assembles the draft payload from a fully resolved order.
func BuildPayload(o *order.CanonicalOrder) (*DraftPayload, error) {
	if o.Customer.ResolvedID == "" {
		return nil, fmt.Errorf("order has no resolved customer")
	}
	p := &DraftPayload{
		CustomerID:      o.Customer.ResolvedID,
		Status:          "draft",
		ReferenceNumber: o.Meta.CaseID,
		CustomFields: []CustomField{
			{Label: "external_order_key", Value: o.Meta.CaseID},
		},
	}
	for _, li := range o.LineItems {
		if li.ResolvedItemID == "" || li.UnitPriceResolved == nil {
			return nil, fmt.Errorf("row %d is not fully resolved", li.RowIndex)
		}
		p.LineItems = append(p.LineItems, PayloadLine{
			ItemID:   li.ResolvedItemID,
			Quantity: li.Quantity,
			Rate:     *li.UnitPriceResolved,
		})
	}
	if len(p.LineItems) == 0 {
		return nil, fmt.Errorf("order has no line items")
	}
	return p, nil
}

// ClientConfig configures the external books API client.
type ClientConfig struct {
	// BaseURL is the books API base (e.g. "https://books.example.com/api/v3").
	BaseURL string

	// OrganizationID scopes every call.
	OrganizationID string

	// Timeout bounds one API call. Default: 30s.
	Timeout time.Duration
}

// Client talks to the external bookkeeping API. It doubles as the catalog
// source for the resolver's cache.
type Client struct {
	config ClientConfig
	tokens *TokenStore
	client *http.Client
}

// NewClient creates the books API client.
func NewClient(config ClientConfig, tokens *TokenStore) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		tokens: tokens,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// CreateDraftOrder posts the draft payload. A 401 invalidates the token,
// refreshes once and retries within the same attempt. Errors are classified
// into TransientError / PermanentError / AuthError for the retry policy.
func (c *Client) CreateDraftOrder(ctx context.Context, p *DraftPayload) (*DraftResult, error) {
	result, err := c.postDraft(ctx, p)
	if err == nil {
		return result, nil
	}
	if _, isAuth := err.(*AuthError); !isAuth {
		return nil, err
	}

	// Refresh once and retry the call.
	c.tokens.Invalidate()
	return c.postDraft(ctx, p)
}

func (c *Client) postDraft(ctx context.Context, p *DraftPayload) (*DraftResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal draft payload: %w", err)
	}

	url := fmt.Sprintf("%s/salesorders?organization_id=%s", c.config.BaseURL, c.config.OrganizationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Message: "draft order request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Message: "draft order read failed", Cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var env struct {
			SalesOrder DraftResult `json:"salesorder"`
		}
		if err := json.Unmarshal(respBody, &env); err != nil {
			return nil, &PermanentError{StatusCode: resp.StatusCode, Message: "unparseable create response"}
		}
		return &env.SalesOrder, nil

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &AuthError{Message: "access token rejected"}

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &TransientError{
			Message:    "rate limited",
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}

	case resp.StatusCode >= 500:
		return nil, &TransientError{StatusCode: resp.StatusCode, Message: string(respBody)}

	default:
		return nil, &PermanentError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
}

// FetchCustomers implements catalog.Source.
func (c *Client) FetchCustomers(ctx context.Context) ([]*catalog.Customer, error) {
	var env struct {
		Contacts []struct {
			ContactID   string `json:"contact_id"`
			ContactName string `json:"contact_name"`
			CompanyName string `json:"company_name"`
			Status      string `json:"status"`
		} `json:"contacts"`
	}
	if err := c.getJSON(ctx, "/contacts", &env); err != nil {
		return nil, err
	}
	customers := make([]*catalog.Customer, 0, len(env.Contacts))
	for _, ct := range env.Contacts {
		customers = append(customers, &catalog.Customer{
			ExternalID:  ct.ContactID,
			DisplayName: ct.ContactName,
			CompanyName: ct.CompanyName,
			Status:      ct.Status,
		})
	}
	return customers, nil
}

// FetchItems implements catalog.Source.
func (c *Client) FetchItems(ctx context.Context) ([]*catalog.Item, error) {
	var env struct {
		Items []struct {
			ItemID string  `json:"item_id"`
			SKU    string  `json:"sku"`
			EAN    string  `json:"ean"`
			Name   string  `json:"name"`
			Rate   float64 `json:"rate"`
			Status string  `json:"status"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/items", &env); err != nil {
		return nil, err
	}
	items := make([]*catalog.Item, 0, len(env.Items))
	for _, it := range env.Items {
		items = append(items, &catalog.Item{
			ExternalID: it.ItemID,
			SKU:        it.SKU,
			GTIN:       it.EAN,
			Name:       it.Name,
			Rate:       it.Rate,
			Status:     it.Status,
		})
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s%s?organization_id=%s", c.config.BaseURL, path, c.config.OrganizationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransientError{Message: "catalog fetch failed", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{Message: "catalog read failed", Cause: err}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return &AuthError{Message: "access token rejected"}
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &TransientError{StatusCode: resp.StatusCode, Message: "catalog fetch error"}
		}
		return &PermanentError{StatusCode: resp.StatusCode, Message: "catalog fetch error"}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}

// parseRetryAfter parses a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 0
}
