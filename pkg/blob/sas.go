package blob

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer produces and verifies time-limited signed download paths, the local
// equivalent of a storage-account SAS. The signature covers the object URI
// and the expiry so neither can be swapped.
type Signer struct {
	key []byte
}

// NewSigner creates a signer with the given HMAC key.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Sign returns "<uri>?exp=<unix>&sig=<hmac>".
func (s *Signer) Sign(uri string, expiresAt time.Time) string {
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	sig := s.compute(uri, exp)
	return uri + "?exp=" + exp + "&sig=" + url.QueryEscape(sig)
}

// Verify checks a signed path and returns the object URI when the signature
// is valid and unexpired.
func (s *Signer) Verify(signed string, now time.Time) (string, error) {
	u, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("malformed signed url: %w", err)
	}
	exp := u.Query().Get("exp")
	sig := u.Query().Get("sig")
	if exp == "" || sig == "" {
		return "", fmt.Errorf("signed url missing exp or sig")
	}

	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed expiry: %w", err)
	}
	if now.After(time.Unix(expUnix, 0)) {
		return "", fmt.Errorf("signed url expired")
	}

	want := s.compute(u.Path, exp)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return "", fmt.Errorf("signature mismatch")
	}
	return u.Path, nil
}

func (s *Signer) compute(uri, exp string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(uri))
	mac.Write([]byte{0})
	mac.Write([]byte(exp))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
