package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a Client to fake token and API servers. The
// returned token counter reports how many refresh grants were issued.
func newTestClient(t *testing.T, apiHandler http.Handler) (*Client, *atomic.Int64) {
	t.Helper()

	var tokenCalls atomic.Int64

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := tokenCalls.Add(1)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-me", r.Form.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok%d","token_type":"Bearer","expires_in":3600}`, n)
	}))
	t.Cleanup(tokenSrv.Close)

	apiSrv := httptest.NewServer(apiHandler)
	t.Cleanup(apiSrv.Close)

	client, err := New(Credentials{
		ClientID:     "cid",
		ClientSecret: "secret",
		RefreshToken: "refresh-me",
	}, testLogger(), WithBaseURLs(apiSrv.URL, tokenSrv.URL))
	require.NoError(t, err)

	client.sleepFunc = func(ctx context.Context, d time.Duration) error { return nil }

	return client, &tokenCalls
}

func TestNewRequiresRefreshToken(t *testing.T) {
	_, err := New(Credentials{ClientID: "cid"}, testLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "spotify.refresh_token")
}

func TestFetchLikedPaginatesAndStopsAtSince(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	page1 := map[string]any{
		"items": []map[string]any{
			{
				"added_at": "2026-08-10T12:00:00Z",
				"track": map[string]any{
					"id": "sp1", "name": "Newest", "duration_ms": 200000,
					"artists": []map[string]any{{"name": "Artist A"}},
				},
			},
		},
		"next": "more",
	}
	page2 := map[string]any{
		"items": []map[string]any{
			{
				"added_at": "2026-07-01T12:00:00Z",
				"track": map[string]any{
					"id": "sp2", "name": "Too Old", "duration_ms": 100000,
					"artists": []map[string]any{{"name": "Artist B"}},
				},
			},
		},
		"next": "even-more",
	}

	var requests atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/me/tracks", r.URL.Path)
		assert.Equal(t, "Bearer tok1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")

		switch requests.Add(1) {
		case 1:
			assert.Equal(t, "0", r.URL.Query().Get("offset"))
			json.NewEncoder(w).Encode(page1)
		default:
			assert.Equal(t, "50", r.URL.Query().Get("offset"))
			json.NewEncoder(w).Encode(page2)
		}
	})

	client, tokenCalls := newTestClient(t, handler)

	tracks, err := client.FetchLiked(context.Background(), cutoff)
	require.NoError(t, err)

	// The pre-cutoff track on page 2 ends pagination and is excluded.
	require.Len(t, tracks, 1)
	assert.Equal(t, "sp1", tracks[0].RemoteID)
	assert.Equal(t, "Artist A", tracks[0].Artist)
	assert.Equal(t, int64(2), requests.Load())
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestLikeBatches(t *testing.T) {
	var batches [][]string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/me/tracks", r.URL.Path)

		var payload struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		batches = append(batches, payload.IDs)

		w.WriteHeader(http.StatusOK)
	})

	client, _ := newTestClient(t, handler)

	ids := make([]string, 60)
	for i := range ids {
		ids[i] = fmt.Sprintf("sp%d", i)
	}

	require.NoError(t, client.Like(context.Background(), ids))

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 50)
	assert.Len(t, batches[1], 10)
}

func TestUnauthorizedForcesOneRefresh(t *testing.T) {
	var requests atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		assert.Equal(t, "Bearer tok2", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tracks":{"items":[]}}`)
	})

	client, tokenCalls := newTestClient(t, handler)

	found, err := client.Search(context.Background(), "Artist", "Song")
	require.NoError(t, err)
	assert.Nil(t, found)
	assert.Equal(t, int64(2), requests.Load())
	assert.Equal(t, int64(2), tokenCalls.Load())
}

func TestPersistentUnauthorizedIsAuthError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client, _ := newTestClient(t, handler)

	_, err := client.Search(context.Background(), "Artist", "Song")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var requests atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tracks":{"items":[]}}`)
	})

	client, _ := newTestClient(t, handler)

	var slept []time.Duration

	client.sleepFunc = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)

		return nil
	}

	_, err := client.Search(context.Background(), "Artist", "Song")
	require.NoError(t, err)

	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestAPIErrorNotRetried(t *testing.T) {
	var requests atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "bad query")
	})

	client, _ := newTestClient(t, handler)

	_, err := client.Search(context.Background(), "Artist", "Song")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, int64(1), requests.Load())
}

func TestSearchReturnsBestCandidate(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Artist Song", r.URL.Query().Get("q"))
		assert.Equal(t, "track", r.URL.Query().Get("type"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tracks":{"items":[
			{"id":"best","name":"Song","duration_ms":210000,"artists":[{"name":"Artist"}]},
			{"id":"worse","name":"Song (Live)","artists":[{"name":"Artist"}]}
		]}}`)
	})

	client, _ := newTestClient(t, handler)

	found, err := client.Search(context.Background(), "Artist", "Song")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "best", found.RemoteID)
	assert.Equal(t, 210000, found.DurationMS)
}
