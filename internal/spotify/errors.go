// Package spotify provides the Spotify Web API client used by the sync
// engine: OAuth2 refresh-token auth, liked-track listing and mutation,
// and track search, with automatic retry and rate-limit handling.
package spotify

import (
	"errors"
	"fmt"
)

// ErrAuth marks credential failures that survive a token refresh.
// These are actionable by the user, not retryable by the engine.
var ErrAuth = errors.New("spotify: authentication failed")

// APIError wraps a non-retryable API response with its HTTP status and
// body for debugging.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify: HTTP %d: %s", e.StatusCode, e.Message)
}

// authError builds the user-facing auth failure, naming the config key
// to update.
func authError(detail string) error {
	return fmt.Errorf("%w: %s — your refresh token may be invalid, run: tunesync config set spotify.refresh_token <new_token>", ErrAuth, detail)
}
