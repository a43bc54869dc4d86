// Package clients provides the outbound transport shared by every provider
// adapter: a rate limited, circuit broken HTTP client, an XML-RPC codec and an
// OAuth2 refresh token source.
package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ajitpratap0/formsync/pkg/config"
	"github.com/ajitpratap0/formsync/pkg/errors"
	"github.com/ajitpratap0/formsync/pkg/json"
	"github.com/ajitpratap0/formsync/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// maxResponseBody caps how much of a provider response is read into memory
const maxResponseBody = 8 << 20

// Request is a single provider API call
type Request struct {
	// Op names the adapter operation for errors, logs and metrics
	Op     string
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read provider response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// HTTPClient sends provider requests. One client is created per provider so
// rate limiting and circuit breaking are scoped to a single vendor API.
type HTTPClient struct {
	provider   string
	config     config.HTTPConfig
	logger     *zap.Logger
	httpClient *http.Client

	rateLimiter    RateLimiter
	circuitBreaker *CircuitBreaker

	basicAuth          bool
	username, password string
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithTransport replaces the round tripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *HTTPClient) {
		c.httpClient.Transport = rt
	}
}

// WithRateLimiter replaces the token bucket built from the config
func WithRateLimiter(rl RateLimiter) Option {
	return func(c *HTTPClient) {
		c.rateLimiter = rl
	}
}

// WithBasicAuth sends HTTP basic credentials on every request
func WithBasicAuth(username, password string) Option {
	return func(c *HTTPClient) {
		c.basicAuth = true
		c.username = username
		c.password = password
	}
}

// NewHTTPClient creates the client for one provider
func NewHTTPClient(provider string, cfg config.HTTPConfig, logger *zap.Logger, opts ...Option) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_client"), zap.String("provider", provider))

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("failed to configure HTTP/2", zap.Error(err))
	}

	c := &HTTPClient{
		provider: provider,
		config:   cfg,
		logger:   logger,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}

	if cfg.RateLimit > 0 {
		c.rateLimiter = NewTokenBucketRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CircuitBreaker {
		c.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          cfg.BreakerTimeout,
		}, logger)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the provider id the client was created for
func (c *HTTPClient) Provider() string {
	return c.provider
}

// Send performs req and returns the response whatever its status. Only a
// failure to obtain a response is returned as an error, already classified.
func (c *HTTPClient) Send(ctx context.Context, req *Request) (*Response, error) {
	if c.rateLimiter != nil {
		waited, err := c.rateLimiter.Wait(ctx)
		metrics.ObserveRateLimit(c.provider, waited, err)
		if err != nil {
			return nil, errors.FromTransport(c.provider, req.Op, err)
		}
	}

	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		c.recordBreakerState()
		return nil, errors.Wrap(ErrCircuitOpen, errors.KindNetwork, "provider temporarily unavailable").
			WithProvider(c.provider, req.Op)
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to build request").
			WithProvider(c.provider, req.Op)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.basicAuth {
		httpReq.SetBasicAuth(c.username, c.password)
	}
	if c.config.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	timer := metrics.NewTimer()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// A caller giving up says nothing about provider health
		if ctx.Err() == nil {
			c.recordFailure()
		}
		metrics.ObserveProviderRequest(c.provider, req.Op, 0, timer.Stop())
		c.logger.Debug("provider request failed",
			zap.String("op", req.Op),
			zap.String("method", req.Method),
			zap.Error(err))
		return nil, errors.FromTransport(c.provider, req.Op, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	duration := timer.Stop()
	metrics.ObserveProviderRequest(c.provider, req.Op, httpResp.StatusCode, duration)
	if err != nil {
		c.recordFailure()
		return nil, errors.FromTransport(c.provider, req.Op, err)
	}

	if httpResp.StatusCode >= 500 {
		c.recordFailure()
	} else {
		c.recordSuccess()
	}

	c.logger.Debug("provider request",
		zap.String("op", req.Op),
		zap.String("method", req.Method),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration))

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   data,
	}, nil
}

// DoJSON sends in as a JSON body (when non-nil) and decodes a 2xx response
// into out (when non-nil). Non-2xx responses become classified errors.
func (c *HTTPClient) DoJSON(ctx context.Context, req *Request, in, out interface{}) (*Response, error) {
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to encode request body").
				WithProvider(c.provider, req.Op)
		}
		req.Body = payload
		if req.Header == nil {
			req.Header = http.Header{}
		}
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return resp, errors.FromStatus(c.provider, req.Op, resp.Status, resp.Body)
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, errors.FromDecode(c.provider, req.Op, resp.Body, err)
		}
	}
	return resp, nil
}

// BreakerState returns the breaker state, closed when breaking is disabled
func (c *HTTPClient) BreakerState() CircuitState {
	if c.circuitBreaker == nil {
		return StateClosed
	}
	return c.circuitBreaker.State()
}

func (c *HTTPClient) recordSuccess() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
		c.recordBreakerState()
	}
}

func (c *HTTPClient) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
		c.recordBreakerState()
	}
}

func (c *HTTPClient) recordBreakerState() {
	metrics.CircuitBreakerState.WithLabelValues(c.provider).Set(float64(c.circuitBreaker.State()))
}
