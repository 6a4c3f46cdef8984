// Package idempotency deduplicates Pub/Sub deliveries per consumer.
//
// A delivery first takes a short processing lease. Success turns the lease
// into a long lived "done" marker; failure drops the lease so the redelivery
// can run again. A delivery that finds someone else's lease is nacked.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

const (
	DefaultLease = 5 * time.Minute

	markerProcessing = "processing"
	markerDone       = "done"
)

// State is the outcome of Begin.
type State int

const (
	// Claimed means the caller owns the event and must Complete or Abandon it.
	Claimed State = iota
	// Done means an earlier delivery finished the event.
	Done
	// InFlight means another worker holds the lease.
	InFlight
)

func (s State) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case Done:
		return "done"
	case InFlight:
		return "in_flight"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Key(parts ...string) string
}

// Manager keys markers as bz:idempotency:evt:<consumer>:<event_id>.
type Manager struct {
	store store
	ttl   time.Duration
	lease time.Duration
}

type Option func(*Manager)

// WithLease bounds how long a crashed worker can block redelivery.
func WithLease(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lease = d
		}
	}
}

// NewManager keeps "done" markers for ttl; zero keeps them forever.
func NewManager(s store, ttl time.Duration, opts ...Option) (*Manager, error) {
	if s == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	m := &Manager{store: s, ttl: ttl, lease: DefaultLease}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Begin(ctx context.Context, consumer string, eventID uuid.UUID) (State, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return InFlight, err
	}
	claimed, err := m.store.SetNX(ctx, key, markerProcessing, m.lease)
	if err != nil {
		return InFlight, fmt.Errorf("claim %s: %w", key, err)
	}
	if claimed {
		return Claimed, nil
	}
	marker, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		// lease expired between the two calls; let the redelivery retry
		return InFlight, nil
	case err != nil:
		return InFlight, fmt.Errorf("read %s: %w", key, err)
	case marker == markerDone:
		return Done, nil
	}
	return InFlight, nil
}

// Complete records the event as processed.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, markerDone, m.ttl)
}

// Abandon releases a lease after a failed attempt. A "done" marker is never removed.
func (m *Manager) Abandon(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	_, err = m.store.CompareAndDelete(ctx, key, markerProcessing)
	return err
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.Key("idempotency", "evt", consumer, eventID.String()), nil
}
