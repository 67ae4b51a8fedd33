// pkg/message/frame.go
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EncodeFrame wraps one message as a one-element JSON array: "[" + json + "]".
// Existing peers depend on this exact framing.
func EncodeFrame(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, '[')
	frame = append(frame, body...)
	frame = append(frame, ']')
	return frame, nil
}

// DecodeFrame parses an inbound frame holding zero or more units. Units are
// decoded one by one; a malformed unit is skipped and reported in the joined
// error while the valid ones are still returned in frame order. A frame that
// is not a JSON array yields no units.
func DecodeFrame(raw []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("frame is not a JSON array")
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(trimmed, &parts); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	units := make([]Message, 0, len(parts))
	var errs []error
	for i, part := range parts {
		var m Message
		if err := json.Unmarshal(part, &m); err != nil {
			errs = append(errs, fmt.Errorf("unit %d: %w", i, err))
			continue
		}
		units = append(units, m)
	}
	return units, errors.Join(errs...)
}
