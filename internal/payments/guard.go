package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

const defaultGuardTTL = 72 * time.Hour

// IdempotencyGuard remembers webhook deliveries by a digest of their body so
// gateway redeliveries are acknowledged without reprocessing.
type IdempotencyGuard struct {
	store redis.Store
	ttl   time.Duration
}

// NewIdempotencyGuard builds a guard backed by redis.
func NewIdempotencyGuard(store redis.Store, ttl time.Duration) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &IdempotencyGuard{store: store, ttl: ttl}, nil
}

// Claim returns true the first time a body is seen within the TTL.
func (g *IdempotencyGuard) Claim(ctx context.Context, scope string, body []byte) (bool, error) {
	return g.store.SetNX(ctx, g.key(scope, body), "1", g.ttl)
}

// Release forgets a delivery so the gateway's retry is processed again.
func (g *IdempotencyGuard) Release(ctx context.Context, scope string, body []byte) error {
	return g.store.Del(ctx, g.key(scope, body))
}

func (g *IdempotencyGuard) key(scope string, body []byte) string {
	sum := sha256.Sum256(body)
	return g.store.Key("idempotency", "webhook", scope, hex.EncodeToString(sum[:]))
}
