package base

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/formsync/pkg/clients"
	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/connector/core"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	cfg := config.Default().HTTP
	cfg.RateLimit = 0
	cfg.CircuitBreaker = false
	a := NewAdapter(Config{
		ID:      "sendfox",
		BaseURL: baseURL,
		HTTP:    clients.NewHTTPClient("sendfox", cfg, zaptest.NewLogger(t)),
		Logger:  zaptest.NewLogger(t),
	})
	a.SetReadRetry(&RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond})
	return a
}

func TestAdapter_ReadRetriesOnceOnNetworkError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL)
	var out struct{ OK bool }
	require.NoError(t, a.ReadJSON(context.Background(), "list_targets", "/lists", nil, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAdapter_ReadDoesNotRetryRejections(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestAdapter(t, srv.URL).ReadJSON(context.Background(), "list_targets", "/lists", nil, nil, nil)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAdapter_WriteIsNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestAdapter(t, srv.URL).WriteJSON(context.Background(), "upsert_subscriber", http.MethodPost, "/contacts", nil, map[string]string{"email": "a@b.com"}, nil)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAdapter_URL(t *testing.T) {
	a := NewAdapter(Config{ID: "x", BaseURL: "https://api.example.com/v1/"})
	assert.Equal(t, "https://api.example.com/v1/contacts", a.URL("/contacts", nil))
	assert.Equal(t, "https://api.example.com/v1/contacts?email=a%40b.com", a.URL("contacts", url.Values{"email": {"a@b.com"}}))

	overridden := NewAdapter(Config{ID: "x", BaseURL: "https://a", Settings: config.ProviderSettings{BaseURL: "https://b/"}})
	assert.Equal(t, "https://b", overridden.BaseURL())
}

func TestBoundary(t *testing.T) {
	assert.Nil(t, Boundary("drip", "op", nil))

	err := Boundary("drip", "upsert_subscriber", stderrors.New("nil map"))
	assert.Equal(t, errors.KindInternal, errors.KindOf(err))

	classified := errors.New(errors.KindProviderRejected, "bad")
	err = Boundary("drip", "upsert_subscriber", classified)
	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "drip", e.Provider)
	assert.Equal(t, "upsert_subscriber", e.Op)
}

func TestFieldCreationUnsupported(t *testing.T) {
	a := NewAdapter(Config{ID: "icontact"})
	err := a.FieldCreationUnsupported(core.FieldRequest{Label: "Favourite colour"})
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "favourite_colour", Slug(" Favourite   Colour! "))
	assert.Equal(t, "plan_2024", Slug("Plan (2024)"))
}
