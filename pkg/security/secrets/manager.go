package secrets

import (
	"context"
	"sync"
	"time"
)

// Manager chains providers and caches resolved values for a short window.
// It is the single SecretSource handed to the token store and the committee
// providers.
type Manager struct {
	providers []Provider
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewManager creates a manager over the provider chain, first hit wins.
func NewManager(ttl time.Duration, providers ...Provider) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{
		providers: providers,
		ttl:       ttl,
		cache:     map[string]cachedSecret{},
	}
}

// GetSecret resolves a secret through the chain with caching.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	if c, ok := m.cache[name]; ok && time.Now().Before(c.expiresAt) {
		m.mu.RUnlock()
		return c.value, nil
	}
	m.mu.RUnlock()

	var lastErr error
	for _, p := range m.providers {
		v, err := p.GetSecret(ctx, name)
		if err == nil {
			m.mu.Lock()
			m.cache[name] = cachedSecret{value: v, expiresAt: time.Now().Add(m.ttl)}
			m.mu.Unlock()
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &NotFoundError{Name: name}
	}
	return "", lastErr
}
