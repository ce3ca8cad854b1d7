// Package yandex provides the Yandex Music API client used by the sync
// engine: static-token auth, liked-track listing and mutation, and
// track search. Unlike the Spotify side there is no token refresh and
// no retry — failures propagate immediately.
package yandex

import (
	"errors"
	"fmt"
)

// ErrAuth marks a rejected token. Actionable by the user, not
// retryable by the engine.
var ErrAuth = errors.New("yandex: authentication failed")

// APIError wraps a non-auth API failure with its HTTP status and body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yandex: HTTP %d: %s", e.StatusCode, e.Message)
}

// authError builds the user-facing auth failure, naming the config key
// to update.
func authError(detail string) error {
	return fmt.Errorf("%w: %s — your token may be invalid, run: tunesync config set yandex.token <new_token>", ErrAuth, detail)
}
