package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ErrNoDecoder is returned for an event type and version nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

type decodeFunc func(json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, envelope version) to a typed payload
// decoder. Populate it before consumers start; lookups are read only.
type DecoderRegistry struct {
	decoders map[decoderKey]decodeFunc
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]decodeFunc{}}
}

// Register adds a raw decoder, replacing any earlier one for the same key.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, fn func(json.RawMessage) (any, error)) {
	r.decoders[decoderKey{eventType, version}] = fn
}

// Handle registers a JSON decoder producing T values.
func Handle[T any](r *DecoderRegistry, eventType enums.OutboxEventType, version int) {
	r.Register(eventType, version, func(raw json.RawMessage) (any, error) {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode %s@v%d: %w", eventType, version, err)
		}
		return out, nil
	})
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	fn, ok := r.decoders[decoderKey{eventType, version}]
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return fn(payload)
}
