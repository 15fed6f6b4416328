// Package session caches one vendor session and re-establishes it on expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/ablair264/SplitLease-Backend/internal/provider"
	"github.com/ablair264/SplitLease-Backend/internal/telemetry"
)

// Manager hands out a valid session, logging in only when the cached one is
// missing or expired. The mutex makes concurrent callers wait on a single
// login instead of racing their own.
type Manager struct {
	client provider.Client
	creds  provider.Credentials

	mu      sync.Mutex
	current provider.Session
	has     bool
}

func NewManager(client provider.Client, creds provider.Credentials) *Manager {
	return &Manager{client: client, creds: creds}
}

// Ensure returns the cached session when still valid, otherwise establishes
// a fresh one. A failed login clears the cache and returns the vendor error.
func (m *Manager) Ensure(ctx context.Context) (provider.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.has && m.client.IsSessionValid(ctx, m.current) {
		return m.current, nil
	}

	start := time.Now()
	sess, err := m.client.EstablishSession(ctx, m.creds)
	telemetry.ObserveVendorCall("login", time.Since(start), err)
	if err != nil {
		m.current = provider.Session{}
		m.has = false
		telemetry.SessionFailures.Inc()
		return provider.Session{}, err
	}
	m.current = sess
	m.has = true
	telemetry.SessionsOpened.Inc()
	return sess, nil
}

// Invalidate drops the cached session so the next Ensure logs in again.
// Called after the vendor rejects a token mid-job.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = provider.Session{}
	m.has = false
}
