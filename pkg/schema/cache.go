// Package schema caches each provider's custom field schema.
//
// A snapshot is replaced whole, never patched. Concurrent misses for the same
// provider share one fetch. When a fetch fails the last snapshot is served as
// long as it is younger than the stale ceiling; past that the cache reports
// the schema as unavailable, which callers must read as "cannot validate"
// rather than "no fields exist".
package schema

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"github.com/ajitpratap0/formsync/pkg/metrics"
	"github.com/ajitpratap0/formsync/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FormatVersion is part of every cache key. Bump it whenever the canonical
// type vocabulary or the descriptor layout changes.
const FormatVersion = 2

// Key returns the storage key of provider's snapshot
func Key(provider string) string {
	return fmt.Sprintf("esp_schema:v%d:%s", FormatVersion, provider)
}

// FetchFunc loads the current schema from the provider
type FetchFunc func(ctx context.Context) ([]core.CustomFieldDescriptor, error)

// Source says where a lookup result came from
type Source string

const (
	SourceCache       Source = "hit"
	SourceFetch       Source = "fetch"
	SourceStale       Source = "stale"
	SourceUnavailable Source = "unavailable"
)

// Snapshot is an immutable schema captured at FetchedAt
type Snapshot struct {
	Provider  string                       `json:"provider"`
	Version   int                          `json:"version"`
	Fields    []core.CustomFieldDescriptor `json:"fields"`
	FetchedAt time.Time                    `json:"fetched_at"`

	index map[string]int
}

func newSnapshot(provider string, fields []core.CustomFieldDescriptor, at time.Time) *Snapshot {
	s := &Snapshot{
		Provider:  provider,
		Version:   FormatVersion,
		Fields:    append([]core.CustomFieldDescriptor(nil), fields...),
		FetchedAt: at,
	}
	s.buildIndex()
	return s
}

// buildIndex keeps the first descriptor of an id. Fetched schemas with
// repeated ids never reach a snapshot.
func (s *Snapshot) buildIndex() {
	s.index = make(map[string]int, len(s.Fields))
	for i, f := range s.Fields {
		if _, seen := s.index[f.ID]; !seen {
			s.index[f.ID] = i
		}
	}
}

// checkUnique rejects a schema that lists a field id more than once, since a
// mapping target must resolve to exactly one descriptor.
func checkUnique(provider string, fields []core.CustomFieldDescriptor) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.ID]; dup {
			return errors.Newf(errors.KindSchema, "provider schema lists field %q more than once", f.ID).
				WithProvider(provider, "fetch_field_schema").
				WithDetail("field", f.ID)
		}
		seen[f.ID] = struct{}{}
	}
	return nil
}

// Lookup finds a descriptor by provider field id
func (s *Snapshot) Lookup(id string) (core.CustomFieldDescriptor, bool) {
	if s == nil {
		return core.CustomFieldDescriptor{}, false
	}
	i, ok := s.index[id]
	if !ok {
		return core.CustomFieldDescriptor{}, false
	}
	return s.Fields[i], true
}

// Result is the outcome of a cache lookup
type Result struct {
	Snapshot *Snapshot
	Source   Source
	// FetchErr is the failed fetch behind a stale or unavailable result
	FetchErr error
}

// Available reports whether any schema could be produced
func (r Result) Available() bool {
	return r.Snapshot != nil
}

// Fields returns the descriptors, empty when unavailable
func (r Result) Fields() []core.CustomFieldDescriptor {
	if r.Snapshot == nil {
		return nil
	}
	return r.Snapshot.Fields
}

// Lookup finds a descriptor by id
func (r Result) Lookup(id string) (core.CustomFieldDescriptor, bool) {
	return r.Snapshot.Lookup(id)
}

// Cache is the field schema cache
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Snapshot

	group   singleflight.Group
	kv      storage.Store
	ttl     time.Duration
	ceiling time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore persists snapshots so they survive restarts
func WithStore(kv storage.Store) Option {
	return func(c *Cache) { c.kv = kv }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache
func New(cfg config.SchemaCacheConfig, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*Snapshot),
		ttl:     cfg.TTL,
		ceiling: cfg.StaleCeiling,
		now:     time.Now,
		logger:  logger.Get(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "schema_cache"))
	return c
}

// TTL returns the configured default TTL
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetOrFetch serves a snapshot younger than ttl, otherwise fetches a new one.
// A zero ttl uses the configured TTL.
func (c *Cache) GetOrFetch(ctx context.Context, provider string, fetch FetchFunc, ttl time.Duration) Result {
	if ttl <= 0 {
		ttl = c.ttl
	}

	snap := c.load(ctx, provider)
	if snap != nil && c.now().Before(snap.FetchedAt.Add(ttl)) {
		metrics.SchemaCacheLookups.WithLabelValues(provider, string(SourceCache)).Inc()
		return Result{Snapshot: snap, Source: SourceCache}
	}

	metrics.SchemaCacheLookups.WithLabelValues(provider, "miss").Inc()
	return c.fill(ctx, provider, fetch)
}

// Refresh fetches a new snapshot regardless of age
func (c *Cache) Refresh(ctx context.Context, provider string, fetch FetchFunc) Result {
	metrics.SchemaCacheLookups.WithLabelValues(provider, "refresh").Inc()
	return c.fill(ctx, provider, fetch)
}

// Peek returns the in-memory snapshot without fetching or checking age
func (c *Cache) Peek(provider string) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[provider]
}

// Invalidate drops the snapshot of provider from memory and the store
func (c *Cache) Invalidate(ctx context.Context, provider string) error {
	c.mu.Lock()
	delete(c.entries, provider)
	c.mu.Unlock()

	if c.kv != nil {
		if err := c.kv.Delete(ctx, Key(provider)); err != nil {
			return fmt.Errorf("failed to delete persisted schema for %s: %w", provider, err)
		}
	}
	c.logger.Debug("schema invalidated", zap.String("provider", provider))
	return nil
}

func (c *Cache) fill(ctx context.Context, provider string, fetch FetchFunc) Result {
	v, err, _ := c.group.Do(provider, func() (interface{}, error) {
		fields, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if err := checkUnique(provider, fields); err != nil {
			return nil, err
		}
		snap := newSnapshot(provider, fields, c.now())
		c.store(ctx, snap)
		return snap, nil
	})
	if err == nil {
		return Result{Snapshot: v.(*Snapshot), Source: SourceFetch}
	}

	prev := c.load(ctx, provider)
	if prev != nil && c.now().Sub(prev.FetchedAt) <= c.ceiling {
		metrics.SchemaCacheLookups.WithLabelValues(provider, string(SourceStale)).Inc()
		c.logger.Warn("schema fetch failed, serving stale snapshot",
			zap.String("provider", provider),
			zap.Time("fetched_at", prev.FetchedAt),
			zap.Error(err))
		return Result{Snapshot: prev, Source: SourceStale, FetchErr: err}
	}

	metrics.SchemaCacheLookups.WithLabelValues(provider, string(SourceUnavailable)).Inc()
	c.logger.Warn("schema unavailable", zap.String("provider", provider), zap.Error(err))
	return Result{Source: SourceUnavailable, FetchErr: err}
}

func (c *Cache) store(ctx context.Context, snap *Snapshot) {
	c.mu.Lock()
	c.entries[snap.Provider] = snap
	c.mu.Unlock()

	if c.kv == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err == nil {
		err = c.kv.Set(ctx, Key(snap.Provider), data)
	}
	if err != nil {
		c.logger.Warn("failed to persist schema snapshot", zap.String("provider", snap.Provider), zap.Error(err))
	}
}

// load returns the in-memory snapshot, falling back to the persisted one
func (c *Cache) load(ctx context.Context, provider string) *Snapshot {
	c.mu.RLock()
	snap := c.entries[provider]
	c.mu.RUnlock()
	if snap != nil || c.kv == nil {
		return snap
	}

	data, err := c.kv.Get(ctx, Key(provider))
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			c.logger.Warn("failed to read persisted schema", zap.String("provider", provider), zap.Error(err))
		}
		return nil
	}

	var persisted Snapshot
	if err := json.Unmarshal(data, &persisted); err != nil || persisted.Version != FormatVersion {
		c.logger.Warn("discarding unreadable schema snapshot", zap.String("provider", provider))
		return nil
	}
	persisted.Provider = provider
	persisted.buildIndex()

	c.mu.Lock()
	// A concurrent fill may have stored a newer snapshot
	if existing := c.entries[provider]; existing != nil {
		c.mu.Unlock()
		return existing
	}
	c.entries[provider] = &persisted
	c.mu.Unlock()
	return &persisted
}
