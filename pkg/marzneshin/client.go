// Package marzneshin implements a client for the Marzneshin panel REST API.
//
// The client owns a bearer-token session for a single credential identity.
// Token acquisition, proactive expiry refresh and the single retry on 401 are
// hidden behind Request; callers only see typed results or a structured error.
package marzneshin

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/marzbot/marzbot/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	// defaultTimeout bounds every outbound call so one unresponsive panel
	// never stalls a poll cycle indefinitely.
	defaultTimeout = 20 * time.Second

	// tokenExpirySkew refreshes the token this long before its stated expiry.
	tokenExpirySkew = 60 * time.Second

	// defaultTokenTTL applies when the token endpoint omits expires_in.
	defaultTokenTTL = time.Hour
)

// ClientConfig holds configuration for a panel client.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// session is the cached bearer token. It is replaced wholesale on every
// refresh, never partially updated.
type session struct {
	token     string
	expiresAt time.Time
}

// Client is a Marzneshin API client bound to one credential identity.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu      sync.RWMutex
	sess    session
	refresh singleflight.Group

	nowFn func() time.Time
}

// NewClient creates a new panel client. The base URL may omit the scheme, in
// which case HTTPS is assumed.
func NewClient(cfg ClientConfig) (*Client, error) {
	host := strings.TrimSpace(cfg.BaseURL)
	if host == "" {
		return nil, fmt.Errorf("panel base URL is required")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
		log.Debug().Str("host", host).Msg("No protocol specified in panel URL, defaulting to HTTPS")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("panel credentials are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(host, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		nowFn:      time.Now,
	}, nil
}

// Identity returns the panel username this client authenticates as.
func (c *Client) Identity() string {
	return c.username
}

// AcquireToken returns a bearer token for the client's identity. Without
// forceRefresh a cached token is reused while it has more than 60s of life
// left. Racing callers share a single in-flight credential exchange.
func (c *Client) AcquireToken(ctx context.Context, forceRefresh bool) (string, error) {
	if !forceRefresh {
		if token, ok := c.cachedToken(); ok {
			return token, nil
		}
	}

	result, err, _ := c.refresh.Do("token", func() (interface{}, error) {
		// A caller that queued behind a completed refresh can reuse it.
		if !forceRefresh {
			if token, ok := c.cachedToken(); ok {
				return token, nil
			}
		}
		return c.exchangeCredentials(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *Client) cachedToken() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sess.token != "" && c.nowFn().Before(c.sess.expiresAt.Add(-tokenExpirySkew)) {
		return c.sess.token, true
	}
	return "", false
}

// exchangeCredentials performs the form-encoded password grant against the
// panel's token endpoint and replaces the cached session atomically.
func (c *Client) exchangeCredentials(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.username},
		"password":   {c.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/admins/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.WrapAuthError("acquire_token", c.username, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.WrapAuthError("acquire_token", c.username, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.New(errors.ErrorTypeAuth, "acquire_token", c.username,
			fmt.Errorf("token endpoint rejected credentials")).WithStatus(resp.StatusCode, string(body))
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenData); err != nil {
		return "", errors.WrapAuthError("acquire_token", c.username, err)
	}
	if tokenData.AccessToken == "" {
		return "", errors.WrapAuthError("acquire_token", c.username, fmt.Errorf("token endpoint returned empty access_token"))
	}

	ttl := defaultTokenTTL
	if tokenData.ExpiresIn > 0 {
		ttl = time.Duration(tokenData.ExpiresIn) * time.Second
	}

	c.mu.Lock()
	c.sess = session{token: tokenData.AccessToken, expiresAt: c.nowFn().Add(ttl)}
	c.mu.Unlock()

	log.Info().Str("identity", c.username).Msg("Panel token obtained")
	return tokenData.AccessToken, nil
}

// Request issues an authenticated API call and decodes the JSON response into
// out (which may be nil when the body is irrelevant). On 401 it performs
// exactly one forced token refresh and one retry; a second 401 is surfaced as
// an API error without further attempts.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	op := strings.ToLower(method) + " " + path

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return errors.New(errors.ErrorTypeDecode, op, c.username, err)
		}
	}

	token, err := c.AcquireToken(ctx, false)
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, method, path, query, body, token)
	if err != nil {
		return classifyTransportError(op, c.username, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		log.Warn().Str("identity", c.username).Str("op", op).Msg("Token rejected, refreshing and retrying once")

		token, err = c.AcquireToken(ctx, true)
		if err != nil {
			return err
		}
		resp, err = c.do(ctx, method, path, query, body, token)
		if err != nil {
			return classifyTransportError(op, c.username, err)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.WrapAPIError(op, c.username,
			fmt.Errorf("panel returned %s", resp.Status), resp.StatusCode, string(raw))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.ErrorTypeDecode, op, c.username, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, token string) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func classifyTransportError(op, identity string, err error) error {
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.New(errors.ErrorTypeTimeout, op, identity, err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.New(errors.ErrorTypeTimeout, op, identity, err)
	}
	return errors.WrapTransportError(op, identity, err)
}
