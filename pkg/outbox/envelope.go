package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// CurrentEnvelopeVersion is stamped on events that do not pick their own.
const CurrentEnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and shipped
// verbatim as the Pub/Sub message body. EventID equals the outbox row id.
type PayloadEnvelope struct {
	Version    int               `json:"version"`
	EventID    string            `json:"eventId"`
	OccurredAt time.Time         `json:"occurredAt"`
	Actor      *ActorRef         `json:"actor,omitempty"`
	Trace      map[string]string `json:"trace,omitempty"`
	Data       json.RawMessage   `json:"data"`
}

// DecodeEnvelope parses raw and checks the fields every consumer relies on.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, uuid.UUID, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, uuid.Nil, fmt.Errorf("decode envelope: %w", err)
	}
	id, err := uuid.Parse(env.EventID)
	if err != nil {
		return env, uuid.Nil, fmt.Errorf("invalid event id %q: %w", env.EventID, err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, id, fmt.Errorf("event %s has no data", id)
	}
	return env, id, nil
}

// Decode unmarshals the inner data into dest.
func (e PayloadEnvelope) Decode(dest any) error {
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return fmt.Errorf("decode event %s data: %w", e.EventID, err)
	}
	return nil
}

// Link returns ctx joined to the trace that emitted the event.
func (e PayloadEnvelope) Link(ctx context.Context) context.Context {
	if len(e.Trace) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(e.Trace))
}

func captureTrace(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return nil
	}
	return carrier
}
