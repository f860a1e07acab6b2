// Package graph provides the client-side library for talking to the
// Microsoft Graph REST API. It handles client-credentials authentication,
// cursor paging and bounded retries, and normalizes every payload into the
// canonical schema shapes before anything downstream sees it.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnauthorized is returned when the API rejects our credentials even
	// after a fresh token was acquired.
	ErrUnauthorized = errors.New("graph: unauthorized")
	// ErrRequestFailed is returned when a request exhausted all retry
	// attempts.
	ErrRequestFailed = errors.New("graph: request failed")
)

const (
	maxAttempts    = 3
	backoffStep    = 5 * time.Second
	backoffCeiling = 15 * time.Second
	tokenSkew      = time.Minute
)

// Config carries the connection settings for a Client.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string // e.g. https://graph.microsoft.com/v1.0
	LoginURL     string // e.g. https://login.microsoftonline.com
	Timeout      time.Duration
}

// Client is a remote client for the Graph API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger

	mu          sync.Mutex // Protects the cached token
	token       string
	tokenExpiry time.Time

	// test seam
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Graph client. The logger is used for retry warnings
// only; it may not be nil.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		wait: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// scope derives the OAuth scope from the API base URL.
func (c *Client) scope() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return "https://graph.microsoft.com/.default"
	}
	return fmt.Sprintf("%s://%s/.default", u.Scheme, u.Host)
}

// ensureToken returns a cached token or acquires a fresh one.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"scope":         {c.scope()},
	}
	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		strings.TrimRight(c.cfg.LoginURL, "/"), c.cfg.TenantID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint returned %d: %s",
			ErrUnauthorized, resp.StatusCode, truncate(body, 200))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrUnauthorized)
	}

	c.token = payload.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	return c.token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// getJSON performs an authenticated GET and decodes the response into out.
// It retries up to maxAttempts times with linear backoff; a 401 triggers a
// single token refresh, a 429 honors Retry-After.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(attempt - 1)
			c.logger.Warn("retrying graph request",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			if err := c.wait(ctx, delay); err != nil {
				return err
			}
		}

		token, err := c.ensureToken(ctx)
		if err != nil {
			lastErr = err
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("invalid response from %s: %w", rawURL, err)
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			c.invalidateToken()
			lastErr = fmt.Errorf("%w: %s", ErrUnauthorized, truncate(body, 200))
		case resp.StatusCode == http.StatusTooManyRequests:
			if after := retryAfter(resp.Header); after > 0 {
				if err := c.wait(ctx, after); err != nil {
					return err
				}
			}
			lastErr = fmt.Errorf("throttled (429): %s", truncate(body, 200))
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(body, 200))
		default:
			return fmt.Errorf("%w: %s returned %d: %s",
				ErrRequestFailed, rawURL, resp.StatusCode, truncate(body, 200))
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrRequestFailed, maxAttempts, lastErr)
}

// page is the standard Graph collection envelope.
type page struct {
	Value    json.RawMessage `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
}

// listPages walks a paged collection, invoking handle for every page's raw
// value array until the cursor runs out.
func (c *Client) listPages(ctx context.Context, rawURL string, handle func(json.RawMessage) error) error {
	next := rawURL
	for next != "" {
		var p page
		if err := c.getJSON(ctx, next, &p); err != nil {
			return err
		}
		if len(p.Value) > 0 {
			if err := handle(p.Value); err != nil {
				return err
			}
		}
		next = p.NextLink
	}
	return nil
}

// retryDelay returns the linear backoff for a completed attempt count,
// capped at the ceiling.
func retryDelay(completed int) time.Duration {
	d := time.Duration(completed) * backoffStep
	if d > backoffCeiling {
		return backoffCeiling
	}
	return d
}

func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
