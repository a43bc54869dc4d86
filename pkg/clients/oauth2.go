package clients

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"sync"

	"github.com/ajitpratap0/formsync/pkg/errors"
	"golang.org/x/oauth2"
)

// OAuth2Config describes a refresh-token grant against a provider's token endpoint
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// TokenSource exchanges a long-lived refresh token for access tokens,
// refreshing them as they expire. Failures are classified like any other
// provider error.
type TokenSource struct {
	provider string
	src      oauth2.TokenSource
	mu       sync.Mutex
}

// NewTokenSource creates a token source. httpClient is used for token
// requests when non-nil.
func NewTokenSource(provider string, cfg OAuth2Config, refreshToken string, httpClient *http.Client) *TokenSource {
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	// The context is kept by the token source for every refresh
	ctx := context.Background()
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	return &TokenSource{
		provider: provider,
		src:      conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}),
	}
}

// AccessToken returns a valid access token, refreshing if needed
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.FromTransport(ts.provider, "refresh_token", err)
	}

	ts.mu.Lock()
	tok, err := ts.src.Token()
	ts.mu.Unlock()
	if err != nil {
		return "", classifyTokenError(ts.provider, err)
	}
	return tok.AccessToken, nil
}

func classifyTokenError(provider string, err error) error {
	const op = "refresh_token"

	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		switch {
		case status >= 500 || status == http.StatusTooManyRequests:
			return errors.FromStatus(provider, op, status, re.Body)
		case re.ErrorCode != "" || status == http.StatusBadRequest || status == http.StatusUnauthorized:
			e := errors.Wrap(err, errors.KindAuth, "refresh token rejected").WithProvider(provider, op)
			e.Status = status
			e.Diagnostic = strings.TrimSpace(re.ErrorCode + " " + re.ErrorDescription)
			return e
		default:
			return errors.FromStatus(provider, op, status, re.Body)
		}
	}

	// Some token endpoints answer 200 with an error object and no token
	if strings.Contains(err.Error(), "missing access_token") {
		return errors.Wrap(err, errors.KindAuth, "refresh token rejected").WithProvider(provider, op)
	}
	return errors.FromTransport(provider, op, err)
}
