package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. A secret named
// "zoho_client_id" resolves from CALLISTO_SECRET_ZOHO_CLIENT_ID.
type EnvProvider struct {
	// Prefix is prepended to the upper-cased secret name.
	// Default: "CALLISTO_SECRET_".
	Prefix string
}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "CALLISTO_SECRET_"
	}
	return &EnvProvider{Prefix: prefix}
}

// GetSecret resolves a secret from the environment.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	key := p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	return "", &NotFoundError{Name: name}
}
