// Package client is the line-protocol client for helixd, used by the
// CLI verbs and by client tools embedding the daemon connection.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helix-kb/helixd/pkg/daemon"
	"github.com/helix-kb/helixd/pkg/protocol"
)

// DaemonError is a structured error response from the daemon.
type DaemonError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("daemon error %s: %s", e.Code, e.Message)
}

// IsTimeout reports whether err is a daemon timeout error.
func IsTimeout(err error) bool {
	var de *DaemonError
	return errors.As(err, &de) && de.Code == protocol.CodeTimeout
}

// Client holds one connection to the daemon. Requests on a connection
// are answered in order, so Call serializes: one request in flight at a
// time.
type Client struct {
	tool     string
	repoRoot string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to the daemon socket. tool and repoRoot identify the
// caller on every request envelope.
func Dial(socketPath, tool, repoRoot string) (*Client, error) {
	conn, err := net.Dial("unix", daemon.ExpandTilde(socketPath))
	if err != nil {
		return nil, fmt.Errorf("connect to helixd: %w", err)
	}
	return &Client{
		tool:     tool,
		repoRoot: repoRoot,
		conn:     conn,
		reader:   bufio.NewReader(conn),
	}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends one command and reads its response. The correlation id is
// generated per call and verified on the reply. On an error response,
// the returned error is a *DaemonError.
func (c *Client) Call(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	req := protocol.Request{
		ID:       uuid.New().String(),
		Version:  protocol.Version,
		Tool:     c.tool,
		RepoRoot: c.repoRoot,
		Command:  cmd,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set connection deadline: %w", err)
		}
		defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
	}

	line, err := encodeRequest(req)
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(line); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	respLine, err := protocol.ReadLine(c.reader)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp, err := decodeResponse(respLine)
	if err != nil {
		return nil, err
	}
	if resp.ID != "" && resp.ID != req.ID {
		return nil, fmt.Errorf("response id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	if !resp.OK {
		if resp.Error == nil {
			return nil, errors.New("error response without error info")
		}
		return resp, &DaemonError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	return resp, nil
}

// Ping returns the daemon's version string.
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.Call(ctx, protocol.Command{Type: protocol.CmdPing})
	if err != nil {
		return "", err
	}
	var payload protocol.PingPayload
	if err := unmarshalPayload(resp, &payload); err != nil {
		return "", err
	}
	return payload.DaemonVersion, nil
}

// EnqueueSync requests a sync of directory. The returned payload carries
// the sync id to wait on and whether this call admitted new work.
func (c *Client) EnqueueSync(ctx context.Context, directory string, force bool) (*protocol.EnqueueSyncPayload, error) {
	resp, err := c.Call(ctx, protocol.Command{
		Type:      protocol.CmdEnqueueSync,
		Directory: directory,
		Force:     force,
	})
	if err != nil {
		return nil, err
	}
	var payload protocol.EnqueueSyncPayload
	if err := unmarshalPayload(resp, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// WaitSync blocks until the named sync resolves or timeout elapses on
// the daemon side. A daemon-side timeout surfaces as a *DaemonError
// with CodeTimeout (see IsTimeout).
func (c *Client) WaitSync(ctx context.Context, syncID string, timeout time.Duration) (*protocol.WaitSyncPayload, error) {
	// Give the connection read a margin past the daemon-side timeout.
	callCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout+10*time.Second)
		defer cancel()
	}

	resp, err := c.Call(callCtx, protocol.Command{
		Type:      protocol.CmdWaitSync,
		SyncID:    syncID,
		TimeoutMS: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}
	var payload protocol.WaitSyncPayload
	if err := unmarshalPayload(resp, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Status returns the daemon's queue table and uptime.
func (c *Client) Status(ctx context.Context) (*protocol.StatusPayload, error) {
	resp, err := c.Call(ctx, protocol.Command{Type: protocol.CmdStatus})
	if err != nil {
		return nil, err
	}
	var payload protocol.StatusPayload
	if err := unmarshalPayload(resp, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Shutdown asks the daemon to stop accepting connections. It returns as
// soon as the daemon acknowledges; it does not wait for the daemon to
// exit.
func (c *Client) Shutdown(ctx context.Context, reason string) error {
	_, err := c.Call(ctx, protocol.Command{Type: protocol.CmdShutdown, Reason: reason})
	return err
}
