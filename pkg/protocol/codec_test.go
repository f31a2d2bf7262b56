package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("{\"a\":1}\n{\"b\":2}\n"))

	line, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(line))

	line, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(line))

	_, err = ReadLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLine_NoTrailingNewline(t *testing.T) {
	r := bufio.NewReader(strings.NewReader(`{"a":1}`))

	line, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(line))
}

func TestReadLine_OversizedLineIsDrained(t *testing.T) {
	big := strings.Repeat("x", MaxMessageSize+10)
	input := big + "\n" + `{"ok":true}` + "\n"
	r := bufio.NewReader(strings.NewReader(input))

	_, err := ReadLine(r)
	require.ErrorIs(t, err, ErrMessageTooLarge)

	// The oversized line must not poison the stream: the next well-formed
	// line is still readable.
	line, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(line))
}

func TestDecodeRequest(t *testing.T) {
	line := []byte(`{"id":"1","version":1,"tool":"decisions","repo_root":"/r","command":{"type":"ping"}}`)

	req, errInfo := DecodeRequest(line)
	require.Nil(t, errInfo)
	assert.Equal(t, "1", req.ID)
	assert.Equal(t, "decisions", req.Tool)
	assert.Equal(t, "/r", req.RepoRoot)
	assert.Equal(t, CmdPing, req.Command.Type)
}

func TestDecodeRequest_MalformedJSON(t *testing.T) {
	_, errInfo := DecodeRequest([]byte(`{"id":`))
	require.NotNil(t, errInfo)
	assert.Equal(t, CodeInvalidRequest, errInfo.Code)
	assert.NotEmpty(t, errInfo.Message)
}

func TestDecodeRequest_MissingFields(t *testing.T) {
	_, errInfo := DecodeRequest([]byte(`{"version":1,"command":{"type":"ping"}}`))
	require.NotNil(t, errInfo)
	assert.Equal(t, CodeInvalidRequest, errInfo.Code)
	assert.Contains(t, errInfo.Message, "id")
	assert.Contains(t, errInfo.Message, "tool")
	assert.Contains(t, errInfo.Message, "repo_root")
}

func TestDecodeRequest_VersionMismatch(t *testing.T) {
	tests := []struct {
		name    string
		version int
	}{
		{"older", 0},
		{"newer", 2},
		{"way off", 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := []byte(`{"id":"7","version":` + itoa(tt.version) +
				`,"tool":"decisions","repo_root":"/r","command":{"type":"ping"}}`)

			req, errInfo := DecodeRequest(line)
			require.NotNil(t, errInfo)
			assert.Equal(t, CodeIncompatibleVersion, errInfo.Code)
			assert.Contains(t, errInfo.Message, "expected 1")
			// The request id survives so the response correlates.
			require.NotNil(t, req)
			assert.Equal(t, "7", req.ID)
		})
	}
}

func TestDecodeRequest_VersionCheckedBeforeCommand(t *testing.T) {
	// Wrong version with a garbage command must still report the version
	// mismatch, not the command problem.
	line := []byte(`{"id":"1","version":9,"tool":"t","repo_root":"/r","command":{"type":"no_such_cmd"}}`)

	_, errInfo := DecodeRequest(line)
	require.NotNil(t, errInfo)
	assert.Equal(t, CodeIncompatibleVersion, errInfo.Code)
}

func TestDecodeRequest_CommandValidation(t *testing.T) {
	tests := []struct {
		name    string
		command string
		wantMsg string
	}{
		{"unknown type", `{"type":"bogus"}`, "unknown command type"},
		{"enqueue without directory", `{"type":"enqueue_sync"}`, "requires directory"},
		{"wait without sync_id", `{"type":"wait_sync","timeout_ms":100}`, "requires sync_id"},
		{"wait negative timeout", `{"type":"wait_sync","sync_id":"s","timeout_ms":-1}`, "timeout_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := []byte(`{"id":"1","version":1,"tool":"t","repo_root":"/r","command":` + tt.command + `}`)
			_, errInfo := DecodeRequest(line)
			require.NotNil(t, errInfo)
			assert.Equal(t, CodeInvalidRequest, errInfo.Code)
			assert.Contains(t, errInfo.Message, tt.wantMsg)
		})
	}
}

func TestEncodeResponse(t *testing.T) {
	resp := OKResponse("42", PingPayload{Type: CmdPing, DaemonVersion: "1.2.0"})

	b, err := EncodeResponse(resp)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(b), "\n"))
	assert.Equal(t, 1, strings.Count(string(b), "\n"))

	var decoded Response
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "42", decoded.ID)
	assert.True(t, decoded.OK)
	assert.Nil(t, decoded.Error)

	var payload PingPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "1.2.0", payload.DaemonVersion)
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse("id-1", CodeTimeout, "timeout waiting for sync abc")
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTimeout, resp.Error.Code)
	assert.Nil(t, resp.Payload)
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
