// Package registry holds the provider adapter factories. Adapters register
// themselves from init, so a binary supports exactly the providers it imports.
package registry

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/logger"
	"go.uber.org/zap"
)

// Deps is everything a factory needs to build an adapter
type Deps struct {
	Credentials core.Credentials
	Settings    config.ProviderSettings
	HTTP        config.HTTPConfig
	Logger      *zap.Logger

	// Transport overrides the HTTP round tripper, mainly for tests
	Transport http.RoundTripper
}

// NewHTTPClient builds the provider's HTTP client from the deps. Extra
// options apply after the transport override.
func (d Deps) NewHTTPClient(provider string, extra ...clients.Option) *clients.HTTPClient {
	var opts []clients.Option
	if d.Transport != nil {
		opts = append(opts, clients.WithTransport(d.Transport))
	}
	opts = append(opts, extra...)
	return clients.NewHTTPClient(provider, d.HTTP, d.Logger, opts...)
}

// Factory creates an adapter from validated credentials
type Factory func(deps Deps) (core.ProviderClient, error)

// Descriptor describes one provider
type Descriptor struct {
	ID   string
	Name string
	// RequiredKeys must be present and non-empty in the credentials
	RequiredKeys []string
	// OptionalKeys are accepted but not required
	OptionalKeys []string
	Factory      Factory
}

// Registry manages provider registration and instantiation
type Registry struct {
	providers map[string]Descriptor
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Descriptor),
		logger:    logger.Get().With(zap.String("component", "provider_registry")),
	}
}

// Register adds a provider
func (r *Registry) Register(desc Descriptor) error {
	if desc.ID == "" || desc.Factory == nil {
		return errors.New(errors.KindInternal, "provider descriptor needs an id and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[desc.ID]; exists {
		return errors.Newf(errors.KindConfig, "provider %s already registered", desc.ID)
	}

	r.providers[desc.ID] = desc
	r.logger.Debug("provider registered", zap.String("provider", desc.ID))
	return nil
}

// Get returns the descriptor of a provider
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.providers[id]
	if !ok {
		return Descriptor{}, errors.Newf(errors.KindConfig, "unknown provider %q", id)
	}
	return desc, nil
}

// RequiredKeys returns the credential keys a provider needs
func (r *Registry) RequiredKeys(id string) ([]string, error) {
	desc, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return desc.RequiredKeys, nil
}

// Create builds an adapter. Credentials are checked before the factory runs.
func (r *Registry) Create(id string, deps Deps) (core.ProviderClient, error) {
	desc, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if err := CheckCredentials(desc, deps.Credentials); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = logger.Get()
	}
	deps.Logger = deps.Logger.With(zap.String("provider", id))

	client, err := desc.Factory(deps)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig, fmt.Sprintf("failed to create provider %s", id))
	}
	return client, nil
}

// List returns every registered provider ordered by id
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.providers))
	for _, d := range r.providers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[id]
	return ok
}

// CheckCredentials verifies every required key is present and non-blank
func CheckCredentials(desc Descriptor, creds core.Credentials) error {
	var missing []string
	for _, k := range desc.RequiredKeys {
		if creds.Get(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.KindAuth, "%s credentials are missing %v", desc.ID, missing).
			WithProvider(desc.ID, "validate_credentials").
			WithDetail("missing", missing)
	}
	return nil
}

// Global registry functions

// Register adds a provider to the global registry
func Register(desc Descriptor) error {
	return globalRegistry.Register(desc)
}

// MustRegister is Register for init functions
func MustRegister(desc Descriptor) {
	if err := globalRegistry.Register(desc); err != nil {
		panic(err)
	}
}

// Create builds an adapter from the global registry
func Create(id string, deps Deps) (core.ProviderClient, error) {
	return globalRegistry.Create(id, deps)
}

// List returns the providers in the global registry
func List() []Descriptor {
	return globalRegistry.List()
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
