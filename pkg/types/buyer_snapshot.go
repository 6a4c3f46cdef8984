package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
)

// BuyerSnapshot freezes the buyer's contact details on the order.
type BuyerSnapshot struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Phone  string    `json:"phone,omitempty"`
}

// Value marshals the snapshot into JSONB.
func (b BuyerSnapshot) Value() (driver.Value, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the snapshot.
func (b *BuyerSnapshot) Scan(value interface{}) error {
	if value == nil {
		*b = BuyerSnapshot{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, b)
}
