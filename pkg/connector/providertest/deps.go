package providertest

import (
	"testing"
	"time"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/connector/registry"
	"go.uber.org/zap/zaptest"
)

// Deps returns registry deps pointing an adapter at a test server, with rate
// limiting and circuit breaking off.
func Deps(t testing.TB, baseURL string, creds core.Credentials) registry.Deps {
	t.Helper()

	httpCfg := config.Default().HTTP
	httpCfg.RateLimit = 0
	httpCfg.CircuitBreaker = false
	httpCfg.RequestTimeout = 5 * time.Second

	return registry.Deps{
		Credentials: creds,
		Settings:    config.ProviderSettings{BaseURL: baseURL},
		HTTP:        httpCfg,
		Logger:      zaptest.NewLogger(t),
	}
}
