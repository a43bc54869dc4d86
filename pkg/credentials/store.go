// Package credentials persists per-provider connection credentials.
//
// Credentials are JSON blobs in the keyed store under esp_credentials:{provider}.
// Reads go through a short-lived in-process cache. Clearing a provider also
// clears every provider declared as sharing its backing account.
package credentials

import (
	"context"
	stderrors "errors"
	"sort"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"github.com/ajitpratap0/formsync/pkg/storage"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

// ErrNotFound is wrapped by Get when a provider has no stored credentials
var ErrNotFound = stderrors.New("credentials not found")

const keyPrefix = "esp_credentials:"

// Requirements reports the credential keys a provider needs
type Requirements interface {
	RequiredKeys(provider string) ([]string, error)
}

// Store is the credential store
type Store struct {
	kv      storage.Store
	reqs    Requirements
	cascade map[string][]string
	cache   *ttlcache.Cache[string, core.Credentials]
	logger  *zap.Logger
}

// NewStore creates a store. A zero cfg.CacheTTL disables the read-through cache.
func NewStore(kv storage.Store, reqs Requirements, cfg config.CredentialsConfig, log *zap.Logger) *Store {
	if log == nil {
		log = logger.Get()
	}
	s := &Store{
		kv:      kv,
		reqs:    reqs,
		cascade: cfg.Cascade,
		logger:  log.With(zap.String("component", "credential_store")),
	}
	if cfg.CacheTTL > 0 {
		// Expired items are never returned, so no cleanup goroutine is started
		s.cache = ttlcache.New(
			ttlcache.WithTTL[string, core.Credentials](cfg.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, core.Credentials](),
		)
	}
	return s
}

// Get returns the stored credentials of provider. The error wraps ErrNotFound
// and has kind auth_error when none are stored.
func (s *Store) Get(ctx context.Context, provider string) (core.Credentials, error) {
	if s.cache != nil {
		if item := s.cache.Get(provider); item != nil {
			return item.Value().Clone(), nil
		}
	}

	data, err := s.kv.Get(ctx, keyPrefix+provider)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrap(ErrNotFound, errors.KindAuth, "provider is not connected").
			WithProvider(provider, "get_credentials")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to read credentials").
			WithProvider(provider, "get_credentials")
	}

	var creds core.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, errors.Wrap(err, errors.KindAuth, "stored credentials are malformed").
			WithProvider(provider, "get_credentials")
	}

	if s.cache != nil {
		s.cache.Set(provider, creds.Clone(), ttlcache.DefaultTTL)
	}
	return creds, nil
}

// Put validates and stores credentials, replacing any previous ones
func (s *Store) Put(ctx context.Context, provider string, creds core.Credentials) error {
	if err := s.Validate(provider, creds); err != nil {
		return err
	}

	trimmed := make(core.Credentials, len(creds))
	for k := range creds {
		trimmed[k] = creds.Get(k)
	}
	data, err := json.Marshal(trimmed)
	if err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to encode credentials")
	}
	if err := s.kv.Set(ctx, keyPrefix+provider, data); err != nil {
		return errors.Wrap(err, errors.KindInternal, "failed to store credentials").
			WithProvider(provider, "put_credentials")
	}

	if s.cache != nil {
		s.cache.Delete(provider)
	}
	s.logger.Info("credentials stored", zap.String("provider", provider))
	return nil
}

// Validate checks that every required key is present and non-blank
func (s *Store) Validate(provider string, creds core.Credentials) error {
	required, err := s.reqs.RequiredKeys(provider)
	if err != nil {
		return err
	}
	var missing []string
	for _, k := range required {
		if creds.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.KindAuth, "credentials are missing %v", missing).
			WithProvider(provider, "validate_credentials").
			WithDetail("missing", missing)
	}
	return nil
}

// Clear removes the credentials of provider and of every provider that
// transitively shares its account. It returns the cleared providers in order.
func (s *Store) Clear(ctx context.Context, provider string) ([]string, error) {
	cleared := s.CascadeOf(provider)
	for _, p := range cleared {
		if err := s.kv.Delete(ctx, keyPrefix+p); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to clear credentials").
				WithProvider(p, "clear_credentials")
		}
		if s.cache != nil {
			s.cache.Delete(p)
		}
	}
	s.logger.Info("credentials cleared", zap.String("provider", provider), zap.Strings("cleared", cleared))
	return cleared, nil
}

// CascadeOf returns provider followed by every provider reachable through
// the declared cascade relationships, each once.
func (s *Store) CascadeOf(provider string) []string {
	order := []string{provider}
	visited := map[string]bool{provider: true}
	for i := 0; i < len(order); i++ {
		deps := append([]string(nil), s.cascade[order[i]]...)
		sort.Strings(deps)
		for _, d := range deps {
			if !visited[d] {
				visited[d] = true
				order = append(order, d)
			}
		}
	}
	return order
}

// Connected reports which of providers have stored credentials
func (s *Store) Connected(ctx context.Context, providers []string) ([]string, error) {
	var out []string
	for _, p := range providers {
		_, err := s.Get(ctx, p)
		switch {
		case err == nil:
			out = append(out, p)
		case errors.Is(err, ErrNotFound):
		default:
			return nil, err
		}
	}
	return out, nil
}
