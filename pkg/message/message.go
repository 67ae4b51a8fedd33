// pkg/message/message.go
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IDField is the JSON key carrying the correlation id
const IDField = "id"

// SystemID is the id used by unsolicited server events
const SystemID uint32 = 0

// Message is one unit on the remote wire: a JSON object whose "id" field
// correlates a reply with its request. The remaining fields are opaque to
// the bridge and kept as raw JSON.
type Message struct {
	ID     uint32
	Fields map[string]json.RawMessage
}

// New creates a message with the given id and fields
func New(id uint32, fields map[string]interface{}) (Message, error) {
	m := Message{ID: id, Fields: make(map[string]json.RawMessage, len(fields))}
	for k, v := range fields {
		if err := m.Set(k, v); err != nil {
			return Message{}, err
		}
	}
	return m, nil
}

// IsEvent reports whether the message carries no correlation id
func (m Message) IsEvent() bool {
	return m.ID == SystemID
}

// Set encodes v under key
func (m *Message) Set(key string, v interface{}) error {
	if key == IDField {
		return fmt.Errorf("field %q is reserved", IDField)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	if m.Fields == nil {
		m.Fields = make(map[string]json.RawMessage)
	}
	m.Fields[key] = raw
	return nil
}

// Get decodes the field under key into v. It reports false when the field is absent.
func (m Message) Get(key string, v interface{}) (bool, error) {
	raw, ok := m.Fields[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode field %s: %w", key, err)
	}
	return true, nil
}

// Bool returns a boolean field, false when absent or not a boolean
func (m Message) Bool(key string) bool {
	var b bool
	if ok, err := m.Get(key, &b); !ok || err != nil {
		return false
	}
	return b
}

// String returns a string field, empty when absent or not a string
func (m Message) String(key string) string {
	var s string
	if ok, err := m.Get(key, &s); !ok || err != nil {
		return ""
	}
	return s
}

// MarshalJSON flattens the id next to the other fields
func (m Message) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(m.Fields)+1)
	for k, v := range m.Fields {
		obj[k] = v
	}
	if m.ID != SystemID {
		id, err := json.Marshal(m.ID)
		if err != nil {
			return nil, err
		}
		obj[IDField] = id
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits the id from the other fields
func (m *Message) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("message must be a JSON object")
	}

	m.ID = SystemID
	if raw, ok := obj[IDField]; ok {
		if !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			if err := json.Unmarshal(raw, &m.ID); err != nil {
				return fmt.Errorf("invalid message id: %w", err)
			}
		}
		delete(obj, IDField)
	}
	m.Fields = obj
	return nil
}
