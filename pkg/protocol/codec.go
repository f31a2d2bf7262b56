package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMessageTooLarge is returned by ReadLine when a line exceeds
// MaxMessageSize. The remainder of the offending line has already been
// drained, so the reader is positioned at the next message and the
// connection can keep serving requests.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// ReadLine reads one newline-terminated message from r, enforcing the
// protocol's size cap. The returned slice has the trailing newline
// stripped. io.EOF is returned once the peer closes with no pending
// partial line.
func ReadLine(r *bufio.Reader) ([]byte, error) {
	var out []byte
	for {
		frag, err := r.ReadSlice('\n')
		out = append(out, frag...)
		if len(out) > MaxMessageSize {
			if drainErr := drainLine(r, err); drainErr != nil {
				return nil, drainErr
			}
			return nil, ErrMessageTooLarge
		}
		if err == nil {
			return bytes.TrimSuffix(out, []byte("\n")), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) {
			if len(out) == 0 {
				return nil, io.EOF
			}
			// Final message without a trailing newline.
			return out, nil
		}
		return nil, err
	}
}

// drainLine consumes the rest of an oversized line so the next ReadLine
// starts at a message boundary. lastErr is the error from the ReadSlice
// call that detected the overflow.
func drainLine(r *bufio.Reader, lastErr error) error {
	for {
		if lastErr == nil {
			return nil // newline already consumed
		}
		if errors.Is(lastErr, io.EOF) {
			return nil
		}
		if !errors.Is(lastErr, bufio.ErrBufferFull) {
			return lastErr
		}
		_, lastErr = r.ReadSlice('\n')
	}
}

// DecodeRequest parses and validates one request line.
//
// The error return is an *ErrorInfo ready to be placed on a response:
// malformed JSON and missing required fields map to CodeInvalidRequest,
// a version mismatch maps to CodeIncompatibleVersion. On a version
// mismatch the partially decoded request is returned as well so the
// caller can answer on the request's own correlation id.
func DecodeRequest(line []byte) (*Request, *ErrorInfo) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&req); err != nil {
		return nil, &ErrorInfo{Code: CodeInvalidRequest, Message: err.Error()}
	}

	if missing := missingFields(&req); len(missing) > 0 {
		return &req, &ErrorInfo{
			Code:    CodeInvalidRequest,
			Message: "missing required fields: " + strings.Join(missing, ", "),
		}
	}

	if req.Version != Version {
		return &req, &ErrorInfo{
			Code:    CodeIncompatibleVersion,
			Message: fmt.Sprintf("protocol version mismatch: expected %d, got %d", Version, req.Version),
		}
	}

	if err := validateCommand(&req.Command); err != nil {
		return &req, &ErrorInfo{Code: CodeInvalidRequest, Message: err.Error()}
	}

	return &req, nil
}

func missingFields(req *Request) []string {
	var missing []string
	if strings.TrimSpace(req.ID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(req.Tool) == "" {
		missing = append(missing, "tool")
	}
	if strings.TrimSpace(req.RepoRoot) == "" {
		missing = append(missing, "repo_root")
	}
	if strings.TrimSpace(req.Command.Type) == "" {
		missing = append(missing, "command.type")
	}
	return missing
}

func validateCommand(cmd *Command) error {
	switch cmd.Type {
	case CmdPing, CmdStatus, CmdShutdown:
		return nil
	case CmdEnqueueSync:
		if strings.TrimSpace(cmd.Directory) == "" {
			return errors.New("enqueue_sync requires directory")
		}
		return nil
	case CmdWaitSync:
		if strings.TrimSpace(cmd.SyncID) == "" {
			return errors.New("wait_sync requires sync_id")
		}
		if cmd.TimeoutMS < 0 {
			return errors.New("wait_sync timeout_ms must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("unknown command type: %q", cmd.Type)
	}
}

// EncodeResponse marshals a response as a single line, newline included.
func EncodeResponse(resp Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return append(b, '\n'), nil
}
