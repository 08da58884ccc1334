package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hopl-labs/hopl-backend/pkg/enums"
)

// ErrNoDecoder is returned when no decoder matches an event type and version.
var ErrNoDecoder = errors.New("no decoder registered")

type decodeFunc func(json.RawMessage) (any, error)

type decoderKey struct {
	event   enums.OutboxEventType
	version int
}

// Decoders maps (event type, envelope version) to a typed payload decoder.
// Register everything before the first Decode; lookups are not synchronized
// with registration.
type Decoders struct {
	byKey map[decoderKey]decodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{byKey: make(map[decoderKey]decodeFunc)}
}

// RegisterDecoder decodes version of eventType into a *T.
func RegisterDecoder[T any](d *Decoders, eventType enums.OutboxEventType, version int) {
	d.byKey[decoderKey{eventType, version}] = func(raw json.RawMessage) (any, error) {
		out := new(T)
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Handles reports whether any version of eventType has a decoder.
func (d *Decoders) Handles(eventType enums.OutboxEventType) bool {
	for key := range d.byKey {
		if key.event == eventType {
			return true
		}
	}
	return false
}

// Decode treats version 0 as 1, since early envelopes were written without one.
func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, raw json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	decode, ok := d.byKey[decoderKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("empty %s payload", eventType)
	}
	return decode(raw)
}
