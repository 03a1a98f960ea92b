package model

import (
	"encoding/json"
	"fmt"
)

// EncodeEvent serialises the event into its JSON wire form.
func EncodeEvent(e NotificationEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification event: %w", err)
	}
	return data, nil
}

// DecodeEvent parses a wire payload. Unknown fields are ignored; a payload
// that is not JSON or misses required fields is rejected.
func DecodeEvent(data []byte) (NotificationEvent, error) {
	var e NotificationEvent
	if len(data) == 0 {
		return e, ErrEmptyPayload
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return NotificationEvent{}, fmt.Errorf("failed to decode notification event: %w", err)
	}
	if err := e.Validate(); err != nil {
		return NotificationEvent{}, fmt.Errorf("invalid notification event: %w", err)
	}
	return e, nil
}
