// Package daemon implements the helixd connection server: a unix domain
// socket listener speaking the newline-delimited JSON protocol, fanning
// each connection out to its own goroutine, and dispatching decoded
// commands against the sync queue.
package daemon

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helix-kb/helixd/pkg/protocol"
	"github.com/helix-kb/helixd/pkg/syncqueue"
)

// Server owns the listening socket lifecycle.
type Server struct {
	socketPath string
	queue      *syncqueue.Queue
	log        *zap.Logger
	dispatch   *dispatcher

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New creates a server listening on socketPath (with ~ expanded at Run
// time) and serving commands against queue. version is the daemon
// version string reported by ping.
func New(socketPath, version string, queue *syncqueue.Queue, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		socketPath: socketPath,
		queue:      queue,
		log:        log,
		shutdownCh: make(chan struct{}),
	}
	s.dispatch = &dispatcher{
		queue:     queue,
		version:   version,
		startTime: time.Now(),
		shutdown:  s.Shutdown,
		log:       log,
	}
	return s
}

// SocketPath returns the socket path the server binds, with ~ expanded.
func (s *Server) SocketPath() string {
	return ExpandTilde(s.socketPath)
}

// Run binds the socket and serves connections until Shutdown is called
// or ctx is cancelled. The stale socket file from a previous run is
// removed before binding, and the socket file is removed again after
// the accept loop exits. Only a failure to bind is fatal.
func (s *Server) Run(ctx context.Context) error {
	socketPath := s.SocketPath()

	if parent := filepath.Dir(socketPath); parent != "" {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return fmt.Errorf("create socket directory: %w", err)
		}
	}
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("bind %s: %w", socketPath, err)
	}
	s.log.Info("helixd listening", zap.String("socket", socketPath))

	// Close the listener when the shutdown signal fires so the blocked
	// Accept returns.
	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()
	go func() {
		<-s.shutdownCh
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				s.log.Info("shutdown signal received; accept loop exiting")
				_ = os.Remove(socketPath)
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				_ = os.Remove(socketPath)
				return nil
			}
			// Transient accept failure: log and keep serving.
			s.log.Error("accept error", zap.Error(err))
			continue
		}

		go func() {
			if err := s.handleConnection(ctx, conn); err != nil {
				s.log.Error("connection error", zap.Error(err))
			}
		}()
	}
}

// Shutdown signals the accept loop to stop. Idempotent; safe to call
// from any goroutine, including a connection handler. Already-open
// connections are not terminated.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Done is closed once the shutdown signal has fired.
func (s *Server) Done() <-chan struct{} {
	return s.shutdownCh
}

// handleConnection serves one peer: read a line, decode, dispatch,
// write the response, repeat until the peer closes. Requests on one
// connection are strictly sequential; a slow command delays only this
// connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	reader := bufio.NewReaderSize(conn, 64*1024)

	for {
		line, err := protocol.ReadLine(reader)
		if err != nil {
			if errors.Is(err, protocol.ErrMessageTooLarge) {
				resp := protocol.ErrorResponse("", protocol.CodeInvalidRequest, "message too large")
				if werr := s.writeResponse(conn, resp); werr != nil {
					return werr
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		var resp protocol.Response
		req, errInfo := protocol.DecodeRequest(line)
		switch {
		case errInfo != nil:
			id := ""
			if req != nil {
				id = req.ID
			}
			resp = protocol.Response{ID: id, OK: false, Error: errInfo}
		default:
			resp = s.dispatch.handle(ctx, req)
		}

		if err := s.writeResponse(conn, resp); err != nil {
			return err
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp protocol.Response) error {
	b, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	if _, err := conn.Write(b); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// ExpandTilde expands a leading ~/ to the current user's home directory.
func ExpandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
