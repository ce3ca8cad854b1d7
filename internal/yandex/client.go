package yandex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tunesync/tunesync/internal/track"
)

const (
	defaultAPIBase = "https://api.music.yandex.net"

	// batchSize is the maximum id count for a full-track lookup.
	batchSize = 100
)

// Client is the Yandex Music API client. The token is a static bearer
// credential; the account uid is resolved once at session start.
type Client struct {
	apiBase    string
	token      string
	uid        int64
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customises a Client. Used by tests to point at a fake server.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(apiBase string) Option {
	return func(c *Client) { c.apiBase = apiBase }
}

// New creates a Yandex Music client and verifies the token by resolving
// the account uid. A missing or rejected token is an auth error naming
// the config key.
func New(ctx context.Context, token string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, authError("no token configured")
	}

	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		apiBase:    defaultAPIBase,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	var status struct {
		Result struct {
			Account struct {
				UID int64 `json:"uid"`
			} `json:"account"`
		} `json:"result"`
	}

	if err := c.get(ctx, "/account/status", nil, &status); err != nil {
		return nil, fmt.Errorf("resolving account: %w", err)
	}

	if status.Result.Account.UID == 0 {
		return nil, authError("token resolved to no account")
	}

	c.uid = status.Result.Account.UID

	return c, nil
}

// FetchLiked returns the user's liked tracks. The likes endpoint only
// carries short entries (id + timestamp), so full track objects are
// fetched in a second phase, in batches. With a non-zero since, entries
// liked strictly before it are dropped.
func (c *Client) FetchLiked(ctx context.Context, since time.Time) ([]track.Remote, error) {
	var likes struct {
		Result struct {
			Library struct {
				Tracks []likeEntry `json:"tracks"`
			} `json:"library"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/users/%d/likes/tracks", c.uid)
	if err := c.get(ctx, path, nil, &likes); err != nil {
		return nil, err
	}

	addedAt := make(map[string]time.Time)

	var ids []string

	for _, entry := range likes.Result.Library.Tracks {
		id := entry.plainID()
		if id == "" {
			continue
		}

		ts, _ := time.Parse(time.RFC3339, entry.Timestamp)

		if !since.IsZero() && !ts.IsZero() && ts.Before(since) {
			continue
		}

		ids = append(ids, id)
		addedAt[id] = ts
	}

	if len(ids) == 0 {
		return nil, nil
	}

	var tracks []track.Remote

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		full, err := c.fetchTracks(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}

		for _, ft := range full {
			remote := ft.toRemote()
			remote.AddedAt = addedAt[remote.RemoteID]
			tracks = append(tracks, remote)
		}
	}

	c.logger.Debug("fetched yandex liked tracks", "count", len(tracks))

	return tracks, nil
}

// Like adds tracks to the liked list. Already-liked ids are a no-op on
// the service side.
func (c *Client) Like(ctx context.Context, ids []string) error {
	path := fmt.Sprintf("/users/%d/likes/tracks/add-multiple", c.uid)

	return c.mutateLikes(ctx, path, ids)
}

// Unlike removes tracks from the liked list. Absent ids are a no-op on
// the service side.
func (c *Client) Unlike(ctx context.Context, ids []string) error {
	path := fmt.Sprintf("/users/%d/likes/tracks/remove", c.uid)

	return c.mutateLikes(ctx, path, ids)
}

func (c *Client) mutateLikes(ctx context.Context, path string, ids []string) error {
	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		form := url.Values{"track-ids": {strings.Join(ids[start:end], ",")}}
		if err := c.postForm(ctx, path, form, nil); err != nil {
			return err
		}
	}

	return nil
}

// Search returns the service's best candidate for an artist/title
// query, or nil when the best result is missing or not a track.
func (c *Client) Search(ctx context.Context, artist, title string) (*track.Remote, error) {
	var result struct {
		Result struct {
			Best struct {
				Type   string      `json:"type"`
				Result trackObject `json:"result"`
			} `json:"best"`
		} `json:"result"`
	}

	query := url.Values{}
	query.Set("text", artist+" "+title)
	query.Set("type", "track")

	if err := c.get(ctx, "/search", query, &result); err != nil {
		return nil, err
	}

	if result.Result.Best.Type != "track" || result.Result.Best.Result.ID.String() == "" {
		return nil, nil
	}

	remote := result.Result.Best.Result.toRemote()

	return &remote, nil
}

// fetchTracks resolves full track objects for a batch of ids.
func (c *Client) fetchTracks(ctx context.Context, ids []string) ([]trackObject, error) {
	var full struct {
		Result []trackObject `json:"result"`
	}

	form := url.Values{"track-ids": {strings.Join(ids, ",")}}
	if err := c.postForm(ctx, "/tracks", form, &full); err != nil {
		return nil, err
	}

	return full.Result, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.apiBase + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("yandex: creating request: %w", err)
	}

	return c.send(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("yandex: creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.send(req, out)
}

// send executes one request. No retry: transient failures propagate to
// the engine, which records them against the current cycle.
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Authorization", "OAuth "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("yandex: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yandex: reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return authError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("yandex: decoding %s response: %w", req.URL.Path, err)
	}

	return nil
}

// remoteID is a Yandex id, which arrives as a JSON number or a string
// depending on the endpoint — the likes listing even sends composite
// "trackId:albumId" strings.
type remoteID string

func (id *remoteID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		*id = remoteID(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}

	*id = remoteID(n.String())

	return nil
}

func (id remoteID) String() string { return string(id) }

// likeEntry is one short entry from the likes listing.
type likeEntry struct {
	ID        remoteID `json:"id"`
	TrackID   string   `json:"trackId"`
	Timestamp string   `json:"timestamp"`
}

func (e likeEntry) plainID() string {
	id := e.TrackID
	if id == "" {
		id = e.ID.String()
	}

	if i := strings.IndexByte(id, ':'); i >= 0 {
		id = id[:i]
	}

	return id
}

// trackObject is a full track from /tracks or search.
type trackObject struct {
	ID         remoteID `json:"id"`
	Title      string   `json:"title"`
	DurationMS int      `json:"durationMs"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (t trackObject) toRemote() track.Remote {
	artist := "Unknown"
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	title := t.Title
	if title == "" {
		title = "Unknown"
	}

	return track.Remote{
		Service:    track.Yandex,
		RemoteID:   t.ID.String(),
		Artist:     artist,
		Title:      title,
		DurationMS: t.DurationMS,
	}
}
