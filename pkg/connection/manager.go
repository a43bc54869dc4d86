// Package connection manages the lifecycle of provider connections: testing
// credentials before they are stored, building adapters from stored
// credentials, and disconnecting with the declared cascade.
package connection

import (
	"context"
	"maps"
	"net/http"
	"sync"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"github.com/ajitpratap0/formsync/pkg/credentials"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"github.com/ajitpratap0/formsync/pkg/schema"
	"go.uber.org/zap"
)

// Status describes one registered provider
type Status struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
}

// Manager owns provider connections. Adapters are built once per stored
// credential set and reused, so rate limits and circuit breakers persist
// across submissions. Every reuse rechecks the credential store, so a
// disconnect or rotation made through another process is seen once the
// credential cache expires.
type Manager struct {
	cfg      *config.Config
	registry *registry.Registry
	creds    *credentials.Store
	schemas  *schema.Cache
	logger   *zap.Logger

	transport http.RoundTripper

	mu      sync.Mutex
	clients map[string]cachedClient
}

// cachedClient is an adapter together with the credentials it was built from
type cachedClient struct {
	client core.ProviderClient
	creds  core.Credentials
}

// Option configures a Manager
type Option func(*Manager)

// WithTransport sets the round tripper given to every adapter
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) { m.transport = rt }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager
func NewManager(cfg *config.Config, reg *registry.Registry, creds *credentials.Store, schemas *schema.Cache, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		registry: reg,
		creds:    creds,
		schemas:  schemas,
		logger:   logger.Get(),
		clients:  make(map[string]cachedClient),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "connection_manager"))
	return m
}

func (m *Manager) deps(provider string, creds core.Credentials) registry.Deps {
	return registry.Deps{
		Credentials: creds,
		Settings:    m.cfg.Provider(provider),
		HTTP:        m.cfg.HTTP,
		Logger:      m.logger,
		Transport:   m.transport,
	}
}

// Connect tests creds against the provider and stores them only if the
// test succeeds. Any cached adapter and schema of the provider are dropped.
func (m *Manager) Connect(ctx context.Context, provider string, creds core.Credentials) error {
	if err := m.creds.Validate(provider, creds); err != nil {
		return err
	}

	client, err := m.registry.Create(provider, m.deps(provider, creds))
	if err != nil {
		return err
	}
	if err := client.TestConnection(ctx); err != nil {
		m.logger.Warn("connection test failed",
			zap.String("provider", provider),
			zap.String("kind", string(errors.KindOf(err))),
			zap.Error(err))
		return err
	}
	if err := m.creds.Put(ctx, provider, creds); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[provider] = cachedClient{client: client, creds: trimmed(creds)}
	m.mu.Unlock()
	if err := m.schemas.Invalidate(ctx, provider); err != nil {
		m.logger.Warn("failed to invalidate schema", zap.String("provider", provider), zap.Error(err))
	}

	m.logger.Info("provider connected", zap.String("provider", provider))
	return nil
}

// Disconnect clears provider and every provider sharing its account,
// invalidating their cached schemas. It returns the disconnected providers.
func (m *Manager) Disconnect(ctx context.Context, provider string) ([]string, error) {
	if !m.registry.Has(provider) {
		return nil, errors.Newf(errors.KindConfig, "unknown provider %q", provider)
	}

	cleared, err := m.creds.Clear(ctx, provider)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	for _, p := range cleared {
		delete(m.clients, p)
	}
	m.mu.Unlock()

	for _, p := range cleared {
		if err := m.schemas.Invalidate(ctx, p); err != nil {
			m.logger.Warn("failed to invalidate schema", zap.String("provider", p), zap.Error(err))
		}
	}

	m.logger.Info("provider disconnected", zap.String("provider", provider), zap.Strings("cascade", cleared))
	return cleared, nil
}

// Status lists every registered provider and whether it is connected
func (m *Manager) Status(ctx context.Context) ([]Status, error) {
	descs := m.registry.List()
	ids := make([]string, len(descs))
	for i, d := range descs {
		ids[i] = d.ID
	}
	connected, err := m.creds.Connected(ctx, ids)
	if err != nil {
		return nil, err
	}
	isConnected := make(map[string]bool, len(connected))
	for _, p := range connected {
		isConnected[p] = true
	}

	out := make([]Status, len(descs))
	for i, d := range descs {
		out[i] = Status{ID: d.ID, Name: d.Name, Connected: isConnected[d.ID]}
	}
	return out, nil
}

// Client returns the adapter of a connected provider. A cached adapter is
// dropped when its provider is no longer connected and rebuilt when the
// stored credentials changed.
func (m *Manager) Client(ctx context.Context, provider string) (core.ProviderClient, error) {
	creds, err := m.creds.Get(ctx, provider)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			m.forget(provider)
		}
		return nil, err
	}

	m.mu.Lock()
	cached, ok := m.clients[provider]
	m.mu.Unlock()
	if ok && maps.Equal(cached.creds, creds) {
		return cached.client, nil
	}
	if ok {
		m.logger.Info("stored credentials changed, rebuilding adapter", zap.String("provider", provider))
	}

	client, err := m.registry.Create(provider, m.deps(provider, creds))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.clients[provider]; ok && maps.Equal(existing.creds, creds) {
		return existing.client, nil
	}
	m.clients[provider] = cachedClient{client: client, creds: creds}
	return client, nil
}

func (m *Manager) forget(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[provider]; ok {
		delete(m.clients, provider)
		m.logger.Info("dropped adapter of disconnected provider", zap.String("provider", provider))
	}
}

// trimmed returns creds as the credential store persists them
func trimmed(creds core.Credentials) core.Credentials {
	out := make(core.Credentials, len(creds))
	for k := range creds {
		out[k] = creds.Get(k)
	}
	return out
}

// Schema returns the provider's schema through the cache
func (m *Manager) Schema(ctx context.Context, provider string, refresh bool) (schema.Result, error) {
	client, err := m.Client(ctx, provider)
	if err != nil {
		return schema.Result{}, err
	}
	if refresh {
		return m.schemas.Refresh(ctx, provider, client.FetchFieldSchema), nil
	}
	return m.schemas.GetOrFetch(ctx, provider, client.FetchFieldSchema, m.schemas.TTL()), nil
}
