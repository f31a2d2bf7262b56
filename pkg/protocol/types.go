// Package protocol defines the wire contract between helixd and its
// client tools: the request/response envelopes, the command set, the
// error taxonomy, and the line framing rules.
//
// The protocol is newline-delimited JSON over a unix domain socket. One
// complete JSON object per line, UTF-8, at most MaxMessageSize bytes per
// line. Every request carries an integer protocol version that must match
// Version exactly; anything else is rejected before dispatch.
package protocol

import "encoding/json"

// Version is the single protocol version this daemon speaks.
//
// NOTE: bump only with a coordinated client release. Requests at any
// other version are answered with CodeIncompatibleVersion and never
// executed.
const Version = 1

// MaxMessageSize is the maximum length in bytes of a single request or
// response line, newline included. Oversized lines are rejected without
// being parsed.
const MaxMessageSize = 1 << 20

// Command type tags. These values are part of the stable wire contract.
const (
	CmdPing        = "ping"
	CmdEnqueueSync = "enqueue_sync"
	CmdWaitSync    = "wait_sync"
	CmdStatus      = "status"
	CmdShutdown    = "shutdown"
)

// ErrorCode is the closed set of protocol error codes.
type ErrorCode string

const (
	// CodeInvalidRequest covers malformed JSON, missing required fields,
	// and oversized lines. Recoverable per message; the connection stays
	// open.
	CodeInvalidRequest ErrorCode = "invalid_request"

	// CodeIncompatibleVersion signals protocol skew between client and
	// daemon. The command is never executed.
	CodeIncompatibleVersion ErrorCode = "incompatible_version"

	// CodeTimeout signals that a wait_sync did not resolve in time. An
	// unknown or superseded sync_id surfaces the same way.
	CodeTimeout ErrorCode = "timeout"

	// CodeInternalError signals an unexpected failure inside the daemon.
	CodeInternalError ErrorCode = "internal_error"
)

// Command is the tagged command variant of a request. Type selects the
// command; the remaining fields are meaningful only for the command that
// declares them.
type Command struct {
	Type string `json:"type"`

	// enqueue_sync
	Directory string `json:"directory,omitempty"`
	Force     bool   `json:"force,omitempty"`

	// wait_sync
	SyncID    string `json:"sync_id,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`

	// shutdown
	Reason string `json:"reason,omitempty"`
}

// Request is the envelope every client message carries.
type Request struct {
	// ID is a caller-chosen correlation token echoed on the response.
	ID       string  `json:"id"`
	Version  int     `json:"version"`
	Tool     string  `json:"tool"`
	RepoRoot string  `json:"repo_root"`
	Command  Command `json:"command"`
}

// ErrorInfo is the structured error half of a response.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Response is the envelope every daemon reply carries. Exactly one of
// Payload and Error is set, selected by OK.
type Response struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
}

// PingPayload answers CmdPing.
type PingPayload struct {
	Type          string `json:"type"`
	DaemonVersion string `json:"daemon_version"`
}

// EnqueueSyncPayload answers CmdEnqueueSync.
type EnqueueSyncPayload struct {
	Type       string `json:"type"`
	SyncID     string `json:"sync_id"`
	IsNew      bool   `json:"is_new"`
	QueuedAtMS int64  `json:"queued_at_ms"`
}

// SyncStats summarizes one completed sync. Carried on WaitSyncPayload
// when the executor reported stats.
type SyncStats struct {
	FilesScanned int   `json:"files_scanned"`
	FilesIndexed int   `json:"files_indexed"`
	FilesRemoved int   `json:"files_removed"`
	FileErrors   int   `json:"file_errors"`
	DurationMS   int64 `json:"duration_ms"`
}

// WaitSyncPayload answers CmdWaitSync when the job reached a terminal
// state before the timeout.
type WaitSyncPayload struct {
	Type   string     `json:"type"`
	SyncID string     `json:"sync_id"`
	State  string     `json:"state"`
	Stats  *SyncStats `json:"stats,omitempty"`
}

// QueueEntry is one row of a status response: the current (or most
// recent) job for a distinct queue key.
type QueueEntry struct {
	RepoRoot  string `json:"repo_root"`
	Tool      string `json:"tool"`
	Directory string `json:"directory"`
	SyncID    string `json:"sync_id"`
	State     string `json:"state"`
	AgeMS     int64  `json:"age_ms"`
}

// StatusPayload answers CmdStatus.
type StatusPayload struct {
	Type     string       `json:"type"`
	Queues   []QueueEntry `json:"queues"`
	UptimeMS int64        `json:"uptime_ms"`
}

// ShutdownPayload answers CmdShutdown.
type ShutdownPayload struct {
	Type string `json:"type"`
}

// OKResponse builds a success response around a payload. Marshal errors
// are reported as internal errors so the caller always gets a response
// on its correlation id.
func OKResponse(id string, payload any) Response {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ErrorResponse(id, CodeInternalError, "encode payload: "+err.Error())
	}
	return Response{ID: id, OK: true, Payload: raw}
}

// ErrorResponse builds an error response.
func ErrorResponse(id string, code ErrorCode, message string) Response {
	return Response{ID: id, OK: false, Error: &ErrorInfo{Code: code, Message: message}}
}
