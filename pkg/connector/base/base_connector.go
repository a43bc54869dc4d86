// Package base provides the plumbing shared by provider adapters: request
// helpers over the shared HTTP client, error classification at the adapter
// boundary, and the read retry policy.
package base

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"go.uber.org/zap"
)

// Adapter is embedded by every provider adapter
type Adapter struct {
	id        string
	baseURL   string
	http      *clients.HTTPClient
	logger    *zap.Logger
	caps      core.Capabilities
	mapper    core.TypeMapper
	settings  config.ProviderSettings
	readRetry *RetryPolicy
}

// Config is what an adapter passes to NewAdapter
type Config struct {
	ID           string
	BaseURL      string
	HTTP         *clients.HTTPClient
	Logger       *zap.Logger
	Capabilities core.Capabilities
	Mapper       core.TypeMapper
	Settings     config.ProviderSettings
}

// NewAdapter creates the shared adapter state. A configured base URL
// overrides the adapter default.
func NewAdapter(cfg Config) *Adapter {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := cfg.BaseURL
	if cfg.Settings.BaseURL != "" {
		baseURL = cfg.Settings.BaseURL
	}
	return &Adapter{
		id:        cfg.ID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      cfg.HTTP,
		logger:    logger.With(zap.String("component", "adapter")),
		caps:      cfg.Capabilities,
		mapper:    cfg.Mapper,
		settings:  cfg.Settings,
		readRetry: ReadRetryPolicy(),
	}
}

// ID returns the provider id
func (a *Adapter) ID() string { return a.id }

// Capabilities returns the declared capabilities
func (a *Adapter) Capabilities() core.Capabilities { return a.caps }

// TypeMapper returns the provider's type table
func (a *Adapter) TypeMapper() core.TypeMapper { return a.mapper }

// HTTP returns the shared HTTP client
func (a *Adapter) HTTP() *clients.HTTPClient { return a.http }

// Logger returns the adapter logger
func (a *Adapter) Logger() *zap.Logger { return a.logger }

// Settings returns the vendor settings
func (a *Adapter) Settings() config.ProviderSettings { return a.settings }

// BaseURL returns the API root without a trailing slash
func (a *Adapter) BaseURL() string { return a.baseURL }

// SetReadRetry replaces the read retry policy
func (a *Adapter) SetReadRetry(p *RetryPolicy) { a.readRetry = p }

// URL joins path and query onto the base URL
func (a *Adapter) URL(path string, query url.Values) string {
	u := a.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ReadJSON performs an idempotent GET, retrying once on network errors
func (a *Adapter) ReadJSON(ctx context.Context, op, path string, query url.Values, header http.Header, out interface{}) error {
	err := a.readRetry.Execute(ctx, func(ctx context.Context) error {
		_, err := a.http.DoJSON(ctx, &clients.Request{
			Op:     op,
			Method: http.MethodGet,
			URL:    a.URL(path, query),
			Header: header.Clone(),
		}, nil, out)
		return err
	})
	return Boundary(a.id, op, err)
}

// WriteJSON performs a write exactly once
func (a *Adapter) WriteJSON(ctx context.Context, op, method, path string, header http.Header, in, out interface{}) error {
	_, err := a.http.DoJSON(ctx, &clients.Request{
		Op:     op,
		Method: method,
		URL:    a.URL(path, nil),
		Header: header.Clone(),
	}, in, out)
	return Boundary(a.id, op, err)
}

// Read runs an arbitrary idempotent read under the retry policy
func (a *Adapter) Read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return Boundary(a.id, op, a.readRetry.Execute(ctx, fn))
}

// FieldCreationUnsupported is returned by adapters whose provider requires
// fields to exist beforehand
func (a *Adapter) FieldCreationUnsupported(req core.FieldRequest) error {
	return errors.Newf(errors.KindValidation,
		"%s does not support creating custom fields; create %q in the provider account first", a.id, req.Label).
		WithProvider(a.id, "create_field")
}

// NotFound reports whether err is a provider 404
func NotFound(err error) bool {
	var e *errors.Error
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

// Slug derives a provider-safe field key from a label
func Slug(label string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
