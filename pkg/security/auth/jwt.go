// Package auth validates the JWT bearer tokens on the case browser and bot
// webhook surfaces and maps role claims to authorization decisions.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role is a case-browser role claim.
type Role string

const (
	RoleSalesUser    Role = "SalesUser"
	RoleSalesManager Role = "SalesManager"
	RoleOpsAuditor   Role = "OpsAuditor"

	// RoleBot is the chat adapter's identity on the webhook surface.
	RoleBot Role = "Bot"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	TenantID string
	Roles    []Role
}

// HasRole reports whether the principal carries the role.
func (p *Principal) HasRole(r Role) bool {
	for _, have := range p.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// CanReadCase applies the browser authorization matrix: users see their own
// cases, managers their team's (tenant), auditors everything.
func (p *Principal) CanReadCase(tenantID, uploaderID string) bool {
	switch {
	case p.HasRole(RoleOpsAuditor):
		return true
	case p.HasRole(RoleSalesManager):
		return p.TenantID == tenantID
	case p.HasRole(RoleSalesUser):
		return p.UserID == uploaderID
	}
	return false
}

// Verifier validates bearer tokens with an HMAC signing key.
type Verifier struct {
	key      []byte
	issuer   string
	audience string
}

// NewVerifier creates a token verifier. Issuer and audience checks apply
// when non-empty.
func NewVerifier(key []byte, issuer, audience string) *Verifier {
	return &Verifier{key: key, issuer: issuer, audience: audience}
}

// claims is the expected token shape.
type claims struct {
	Roles    []string `json:"roles"`
	TenantID string   `json:"tenant_id"`
	jwt.RegisteredClaims
}

// FromRequest extracts and validates the bearer token on a request.
func (v *Verifier) FromRequest(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, fmt.Errorf("Authorization header is not a bearer token")
	}
	return v.Verify(raw)
}

// Verify validates a raw token string.
func (v *Verifier) Verify(raw string) (*Principal, error) {
	var c claims
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	p := &Principal{
		UserID:   c.Subject,
		TenantID: c.TenantID,
	}
	for _, r := range c.Roles {
		p.Roles = append(p.Roles, Role(r))
	}
	return p, nil
}
