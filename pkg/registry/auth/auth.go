// Package auth exchanges repository names for pull-scope bearer tokens.
//
// Tokens, and token failures, are memoised per repository so that the
// remaining fetches of a check cycle reuse them. Reset clears the memo at the
// start of each cycle; entries also expire on their own, failures after
// FailureTTL and tokens without expires_in after DefaultTokenTTL.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/versiontower/pkg/types"
)

// Docker Hub token endpoint defaults.
const (
	DefaultRealm   = "https://auth.docker.io/token"
	DefaultService = "registry.docker.io"
)

// Memo lifetimes.
const (
	// DefaultTokenTTL applies to tokens issued without expires_in, matching the
	// token endpoint's documented default.
	DefaultTokenTTL = 60 * time.Second
	// FailureTTL bounds how long a failed exchange is returned without a retry.
	FailureTTL = 30 * time.Second
)

// maxTokenResponseSize caps the token response body.
const maxTokenResponseSize = 1 << 20

// ErrAuthFailure indicates the token exchange failed.
var ErrAuthFailure = errors.New("registry token exchange failed")

// Errors wrapped with ErrAuthFailure.
var (
	errTokenRequest   = errors.New("failed to build token request")
	errTokenStatus    = errors.New("unexpected token endpoint status")
	errTokenDecode    = errors.New("failed to decode token response")
	errTokenMissing   = errors.New("token response did not include a token")
	errTokenTransport = errors.New("token endpoint unreachable")
)

// Doer performs HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	Realm       string                     // Token endpoint, DefaultRealm when empty.
	Service     string                     // Service parameter, DefaultService when empty.
	Credentials *types.RegistryCredentials // Optional basic credentials.
	HTTPClient  Doer                       // http.DefaultClient when nil.
	Timeout     time.Duration              // Per-request timeout, none when zero.
	UserAgent   string                     // User-Agent header, omitted when empty.
	Observer    types.RegistryObserver     // Optional request counter.
}

type cachedToken struct {
	token   string
	err     error
	expires time.Time
}

// Client fetches pull tokens for repositories.
type Client struct {
	opts   Options
	now    func() time.Time
	mu     sync.Mutex
	tokens map[string]cachedToken
}

// NewClient returns a Client with defaults applied to opts.
func NewClient(opts Options) *Client {
	if opts.Realm == "" {
		opts.Realm = DefaultRealm
	}

	if opts.Service == "" {
		opts.Service = DefaultService
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Client{
		opts:   opts,
		now:    time.Now,
		tokens: map[string]cachedToken{},
	}
}

// GetToken returns a pull-scope token for repository, e.g. "library/nginx".
//
// Errors wrap ErrAuthFailure. A failed exchange is returned again without
// another request until FailureTTL passes or Reset is called.
func (c *Client) GetToken(ctx context.Context, repository string) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[repository]
	c.mu.Unlock()

	if ok && c.now().Before(cached.expires) {
		return cached.token, cached.err
	}

	token, expiresIn, err := c.fetch(ctx, repository)

	ttl := DefaultTokenTTL

	switch {
	case err != nil:
		ttl = FailureTTL
	case expiresIn > 0:
		ttl = time.Duration(expiresIn) * time.Second
	}

	entry := cachedToken{token: token, err: err, expires: c.now().Add(ttl)}

	c.mu.Lock()
	c.tokens[repository] = entry
	c.mu.Unlock()

	return token, err
}

// Reset forgets every memoised token and failure.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.tokens)
}

// TokenURL builds the token request URL for repository.
func (c *Client) TokenURL(repository string) (*url.URL, error) {
	tokenURL, err := url.Parse(c.opts.Realm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errTokenRequest, err)
	}

	query := tokenURL.Query()
	query.Set("service", c.opts.Service)
	query.Set("scope", fmt.Sprintf("repository:%s:pull", repository))
	tokenURL.RawQuery = query.Encode()

	return tokenURL, nil
}

func (c *Client) fetch(ctx context.Context, repository string) (string, int, error) {
	fields := logrus.Fields{"repository": repository}

	tokenURL, err := c.TokenURL(repository)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrAuthFailure, err)
	}

	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL.String(), nil)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w: %w", ErrAuthFailure, errTokenRequest, err)
	}

	req.Header.Set("Accept", "application/json")

	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	if creds := c.opts.Credentials; creds != nil && creds.Username != "" {
		logrus.WithFields(fields).Debug("Using basic credentials for token request")
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	logrus.WithFields(fields).WithField("url", tokenURL.String()).Debug("Requesting registry token")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.observe(0)

		return "", 0, fmt.Errorf("%w: %w: %w", ErrAuthFailure, errTokenTransport, err)
	}
	defer resp.Body.Close()

	c.observe(resp.StatusCode)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", 0, fmt.Errorf("%w: %w: %s", ErrAuthFailure, errTokenStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w: %w", ErrAuthFailure, errTokenDecode, err)
	}

	tokenResponse := types.TokenResponse{}
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return "", 0, fmt.Errorf("%w: %w: %w", ErrAuthFailure, errTokenDecode, err)
	}

	token := tokenResponse.Token
	if token == "" {
		token = tokenResponse.AccessToken
	}

	if token == "" {
		return "", 0, fmt.Errorf("%w: %w", ErrAuthFailure, errTokenMissing)
	}

	// Trace only, the token grants pull access.
	logrus.WithFields(fields).WithField("expires_in", tokenResponse.ExpiresIn).Trace("Received registry token")

	return token, tokenResponse.ExpiresIn, nil
}

func (c *Client) observe(statusCode int) {
	if c.opts.Observer != nil {
		c.opts.Observer.RegistryRequest("token", statusCode)
	}
}
