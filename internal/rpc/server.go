package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/tunesync/tunesync/internal/config"
	"github.com/tunesync/tunesync/internal/sched"
)

// Server answers control commands on a unix socket. Each connection is
// served by its own goroutine and may carry any number of sequential
// requests.
type Server struct {
	listener net.Listener
	backend  Backend
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewServer listens on the given socket path. The caller removes stale
// sockets before calling.
func NewServer(socketPath string, backend Backend, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpc: listening on %s: %w", socketPath, err)
	}

	return &Server{
		listener: listener,
		backend:  backend,
		logger:   logger,
	}, nil
}

// Serve accepts connections until Close. It always returns a non-nil
// error; after Close that error is net.ErrClosed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return fmt.Errorf("rpc: accept: %w", err)
		}

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Close stops accepting and waits for in-flight connections to finish.
func (s *Server) Close() error {
	err := s.listener.Close()
	s.wg.Wait()

	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		var req Request

		if err := readFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("control connection read failed", slog.String("error", err.Error()))
			}

			return
		}

		resp := s.dispatch(context.Background(), req)

		if err := writeFrame(conn, resp); err != nil {
			s.logger.Debug("control connection write failed", slog.String("error", err.Error()))

			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	s.logger.Debug("control command", slog.String("cmd", req.Cmd))

	switch req.Cmd {
	case "ping":
		return okResponse(map[string]string{"message": "pong"})

	case "status":
		payload, err := s.backend.Status(ctx)
		if err != nil {
			return errResponse(err)
		}

		return okResponse(payload)

	case "health":
		if err := s.backend.Health(ctx); err != nil {
			return errResponse(err)
		}

		return okResponse(map[string]string{"status": "ok"})

	case "sync_now":
		var params SyncParams

		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errResponse(fmt.Errorf("invalid params: %w", err))
			}
		}

		if params.Mode != "" && params.Mode != config.ModeFull && params.Mode != config.ModeIncremental {
			return errResponse(fmt.Errorf("unknown sync mode %q", params.Mode))
		}

		if err := s.backend.SyncNow(params.Mode); err != nil {
			if errors.Is(err, sched.ErrPaused) {
				return errResponse(errors.New("scheduler is paused; resume first"))
			}

			return errResponse(err)
		}

		return okResponse(map[string]string{"message": "sync triggered"})

	case "pause":
		s.backend.Pause()

		return okResponse(map[string]string{"message": "paused"})

	case "resume":
		s.backend.Resume()

		return okResponse(map[string]string{"message": "resumed"})

	case "shutdown":
		s.backend.Shutdown()

		return okResponse(map[string]string{"message": "shutting down"})

	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown command %q", req.Cmd)}
	}
}

func okResponse(data any) Response {
	payload, err := json.Marshal(data)
	if err != nil {
		return errResponse(fmt.Errorf("encoding response data: %w", err))
	}

	return Response{OK: true, Data: payload}
}

func errResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}
