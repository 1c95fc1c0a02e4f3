// Package secrets resolves named credentials (OAuth client secrets, provider
// API keys, signing keys) from a provider chain without ever placing the
// values in config structs or logs.
package secrets

import (
	"context"
	"fmt"
)

// Provider is one secret backend.
type Provider interface {
	// GetSecret returns the named secret's value.
	GetSecret(ctx context.Context, name string) (string, error)
}

// NotFoundError indicates no provider in the chain holds the secret.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret %q not found in any provider", e.Name)
}
