package analytics

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/streampulse/harvester/internal/clock"
)

// refreshMargin forces a refresh slightly before the token actually expires
// so in-flight requests never carry a token about to lapse.
const refreshMargin = 30 * time.Second

// TokenProvider yields a bearer token for the analytics API.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type clientCredentialsProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	clock        clock.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClientCredentialsProvider caches the token and refreshes it via the
// OAuth client-credentials grant once it nears expiry.
func NewClientCredentialsProvider(tokenURL, clientID, clientSecret string, clk clock.Clock) TokenProvider {
	return &clientCredentialsProvider{
		tokenURL:     strings.TrimSpace(tokenURL),
		clientID:     strings.TrimSpace(clientID),
		clientSecret: strings.TrimSpace(clientSecret),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		clock:        clk,
	}
}

func (p *clientCredentialsProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if p.token != "" && now.Before(p.expiresAt.Add(-refreshMargin)) {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", newAPIError(resp, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", err
	}
	if token.AccessToken == "" {
		return "", &APIError{StatusCode: resp.StatusCode, Body: "empty access_token"}
	}

	p.token = token.AccessToken
	p.expiresAt = now.Add(time.Duration(token.ExpiresIn) * time.Second)
	return p.token, nil
}

// StaticTokenProvider returns a fixed token. Used in tests and for
// pre-provisioned API keys.
type StaticTokenProvider string

func (s StaticTokenProvider) Token(context.Context) (string, error) {
	return string(s), nil
}
