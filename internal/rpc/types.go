// Package rpc is the daemon's local control plane: length-framed JSON
// requests over a unix socket, consumed by the CLI.
package rpc

import (
	"context"
	"encoding/json"

	"github.com/tunesync/tunesync/internal/engine"
	"github.com/tunesync/tunesync/internal/sched"
	"github.com/tunesync/tunesync/internal/store"
)

// Request is one framed command. Params is command-specific and may be
// absent.
type Request struct {
	Cmd    string          `json:"cmd"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the uniform reply shape. Exactly one of Data and Error
// is meaningful, selected by OK.
type Response struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SyncParams are the parameters of the sync_now command.
type SyncParams struct {
	Mode string `json:"mode,omitempty"`
}

// EngineStatus is the engine's contribution to the status payload.
type EngineStatus struct {
	State     engine.State  `json:"state"`
	LastStats *engine.Stats `json:"last_stats,omitempty"`
}

// StatusPayload is the composed reply to the status command.
type StatusPayload struct {
	Scheduler sched.Status `json:"scheduler"`
	Engine    EngineStatus `json:"engine"`
	Store     store.Counts `json:"store"`
}

// Backend is the daemon surface the server dispatches into.
type Backend interface {
	Status(ctx context.Context) (StatusPayload, error)
	Health(ctx context.Context) error
	SyncNow(mode string) error
	Pause()
	Resume()
	Shutdown()
}
