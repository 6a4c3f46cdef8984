package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// CheckoutSession stages validated product references until an order is placed.
type CheckoutSession struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	Items     types.SessionItems `gorm:"column:items;type:jsonb;not null"`
	BuyType   enums.BuyType      `gorm:"column:buy_type;type:text;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;not null"`
	ExpiresAt time.Time          `gorm:"column:expires_at;not null"`
}

// Expired reports whether the session is past its TTL at now.
func (s CheckoutSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
