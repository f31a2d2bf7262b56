package client

import (
	"encoding/json"
	"fmt"

	"github.com/helix-kb/helixd/pkg/protocol"
)

func encodeRequest(req protocol.Request) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return append(b, '\n'), nil
}

func decodeResponse(line []byte) (*protocol.Response, error) {
	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

func unmarshalPayload(resp *protocol.Response, out any) error {
	if len(resp.Payload) == 0 {
		return fmt.Errorf("response has no payload")
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	return nil
}
