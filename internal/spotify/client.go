package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/tunesync/tunesync/internal/track"
)

// API endpoints and limits.
const (
	defaultAPIBase  = "https://api.spotify.com/v1"
	defaultTokenURL = "https://accounts.spotify.com/api/token"

	// batchSize is the Web API maximum for PUT/DELETE /me/tracks.
	batchSize = 50
	// pageLimit is the Web API maximum for GET /me/tracks.
	pageLimit = 50
	// searchLimit caps search result size.
	searchLimit = 10

	maxAttempts = 3
	baseBackoff = 1 * time.Second

	// tokenEarlyExpiry refreshes the access token while it still has a
	// minute to live, so no request is sent with a token about to lapse.
	tokenEarlyExpiry = 60 * time.Second

	// Client-side pacing, below Spotify's documented rate window.
	requestsPerSecond = 10
)

// Credentials are the OAuth application credentials plus the user's
// long-lived refresh token, as stored in the spotify config section.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

// Client is the Spotify Web API client. It refreshes access tokens on
// demand, paces requests, retries transient failures with exponential
// backoff, and honours Retry-After on 429 responses.
type Client struct {
	apiBase      string
	oauthCfg     *oauth2.Config
	refreshToken string
	httpClient   *http.Client
	tokenSource  oauth2.TokenSource
	limiter      *rate.Limiter
	logger       *slog.Logger

	// sleepFunc is called to wait between retries. Tests override this
	// to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option customises a Client. Used by tests to point at a fake server.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURLs overrides the API base and token endpoint URLs.
func WithBaseURLs(apiBase, tokenURL string) Option {
	return func(c *Client) {
		c.apiBase = apiBase
		c.oauthCfg.Endpoint = oauth2.Endpoint{TokenURL: tokenURL}
	}
}

// New creates a Spotify client from stored credentials. The refresh
// token must be present; its absence is an auth error naming the config
// key, surfaced before any network traffic.
func New(creds Credentials, logger *slog.Logger, opts ...Option) (*Client, error) {
	if creds.RefreshToken == "" {
		return nil, authError("no refresh token configured")
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		apiBase: defaultAPIBase,
		oauthCfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Endpoint:     oauth2.Endpoint{TokenURL: defaultTokenURL},
		},
		refreshToken: creds.RefreshToken,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		logger:       logger,
		sleepFunc:    sleepContext,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.resetTokenSource()

	return c, nil
}

// resetTokenSource rebuilds the token source, dropping any cached
// access token. Called at construction and when a 401 suggests the
// cached token died before its stated expiry.
func (c *Client) resetTokenSource() {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	base := c.oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken})
	c.tokenSource = oauth2.ReuseTokenSourceWithExpiry(nil, base, tokenEarlyExpiry)
}

// FetchLiked returns the user's liked tracks, newest first. With a
// non-zero since, pagination stops at the first track liked strictly
// before it.
func (c *Client) FetchLiked(ctx context.Context, since time.Time) ([]track.Remote, error) {
	var tracks []track.Remote

	offset := 0

	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(pageLimit))
		query.Set("offset", strconv.Itoa(offset))

		body, err := c.do(ctx, http.MethodGet, "/me/tracks", query, nil)
		if err != nil {
			return nil, err
		}

		var page savedTracksPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("spotify: decoding liked tracks page: %w", err)
		}

		if len(page.Items) == 0 {
			break
		}

		stopPaging := false

		for _, item := range page.Items {
			addedAt, _ := time.Parse(time.RFC3339, item.AddedAt)

			if !since.IsZero() && !addedAt.IsZero() && addedAt.Before(since) {
				stopPaging = true

				break
			}

			tracks = append(tracks, item.Track.toRemote(addedAt))
		}

		if stopPaging || page.Next == "" {
			break
		}

		offset += pageLimit
	}

	c.logger.Debug("fetched spotify liked tracks", "count", len(tracks))

	return tracks, nil
}

// Like saves tracks to the user's library in batches. Saving an
// already-saved track is a no-op on the service side.
func (c *Client) Like(ctx context.Context, ids []string) error {
	return c.mutateLibrary(ctx, http.MethodPut, ids)
}

// Unlike removes tracks from the user's library in batches. Removing an
// absent track is a no-op on the service side.
func (c *Client) Unlike(ctx context.Context, ids []string) error {
	return c.mutateLibrary(ctx, http.MethodDelete, ids)
}

func (c *Client) mutateLibrary(ctx context.Context, method string, ids []string) error {
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		payload := map[string][]string{"ids": ids[start:end]}
		if _, err := c.do(ctx, method, "/me/tracks", nil, payload); err != nil {
			return err
		}
	}

	return nil
}

// Search returns the best candidate for an artist/title query, or nil
// when the service finds nothing. Ranking is the service's own.
func (c *Client) Search(ctx context.Context, artist, title string) (*track.Remote, error) {
	query := url.Values{}
	query.Set("q", artist+" "+title)
	query.Set("type", "track")
	query.Set("limit", strconv.Itoa(searchLimit))

	body, err := c.do(ctx, http.MethodGet, "/search", query, nil)
	if err != nil {
		return nil, err
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("spotify: decoding search response: %w", err)
	}

	if len(result.Tracks.Items) == 0 {
		return nil, nil
	}

	best := result.Tracks.Items[0].toRemote(time.Time{})

	return &best, nil
}

// do executes one API call with the full retry policy: client-side
// pacing, up to three attempts with 2^attempt backoff on network
// errors, one forced token refresh on the first 401, Retry-After on
// 429. Other 4xx/5xx responses are returned as APIError without retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, error) {
	var bodyBytes []byte

	if payload != nil {
		var err error

		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("spotify: encoding request body: %w", err)
		}
	}

	reqURL := c.apiBase + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("spotify: request canceled: %w", err)
		}

		tok, err := c.tokenSource.Token()
		if err != nil {
			return nil, authError(fmt.Sprintf("token refresh failed: %v", err))
		}

		resp, err := c.doOnce(ctx, method, reqURL, tok.AccessToken, bodyBytes)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("spotify: request canceled: %w", ctx.Err())
			}

			if attempt == maxAttempts-1 {
				return nil, fmt.Errorf("spotify: %s %s failed after %d attempts: %w", method, path, maxAttempts, err)
			}

			backoff := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
			c.logger.Warn("retrying after network error",
				"method", method,
				"path", path,
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err.Error(),
			)

			if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
				return nil, fmt.Errorf("spotify: request canceled: %w", sleepErr)
			}

			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			return nil, fmt.Errorf("spotify: reading response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			// Token died before its stated expiry. Refresh once.
			c.logger.Warn("access token rejected, forcing refresh")
			c.resetTokenSource()

			continue
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, authError("credentials rejected after token refresh")
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp)
			c.logger.Warn("rate limited",
				"retry_after", wait,
				"attempt", attempt+1,
			)

			if sleepErr := c.sleepFunc(ctx, wait); sleepErr != nil {
				return nil, fmt.Errorf("spotify: request canceled: %w", sleepErr)
			}

			continue
		case resp.StatusCode >= http.StatusBadRequest:
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("spotify: %s %s: max retries (%d) exceeded", method, path, maxAttempts)
}

func (c *Client) doOnce(ctx context.Context, method, reqURL, token string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// retryAfter reads the Retry-After header, defaulting to one second.
func retryAfter(resp *http.Response) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return time.Second
}

// sleepContext waits for d or until the context is canceled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wire types for the Web API responses.

type savedTracksPage struct {
	Items []savedTrackItem `json:"items"`
	Next  string           `json:"next"`
}

type savedTrackItem struct {
	AddedAt string      `json:"added_at"`
	Track   trackObject `json:"track"`
}

type searchResponse struct {
	Tracks struct {
		Items []trackObject `json:"items"`
	} `json:"tracks"`
}

type trackObject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (t trackObject) toRemote(addedAt time.Time) track.Remote {
	artist := "Unknown"
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	return track.Remote{
		Service:    track.Spotify,
		RemoteID:   t.ID,
		Artist:     artist,
		Title:      t.Name,
		AddedAt:    addedAt,
		DurationMS: t.DurationMS,
	}
}
