package buttplug

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Encode serialises messages into a single wire frame.
func Encode(msgs ...Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyFrame
	}

	frame := make([]map[string]Message, 0, len(msgs))
	for _, m := range msgs {
		frame = append(frame, map[string]Message{m.MessageType(): m})
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame into messages, preserving order.
//
// Entries are decoded independently: an unknown or malformed entry does not
// drop its neighbours. Decode returns every message it could decode together
// with the joined errors of the entries it skipped.
func Decode(data []byte) ([]Message, error) {
	var frame []map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	msgs := make([]Message, 0, len(frame))
	var errs []error
	for i, entry := range frame {
		m, err := decodeEntry(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, errors.Join(errs...)
}

func decodeEntry(entry map[string]json.RawMessage) (Message, error) {
	if len(entry) != 1 {
		return nil, fmt.Errorf("%w: %d keys", ErrMalformedFrame, len(entry))
	}
	for name, raw := range entry {
		m, ok := newMessage(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
		}
		if err := json.Unmarshal(raw, m); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, name, err)
		}
		return m, nil
	}
	return nil, ErrMalformedFrame
}
