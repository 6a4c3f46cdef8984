package types

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/google/uuid"
)

// SessionItem is a staged product reference inside a checkout session.
type SessionItem struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

// SessionItems persists as a JSONB array.
type SessionItems []SessionItem

// Value serializes the items to JSON.
func (s SessionItems) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the item slice.
func (s *SessionItems) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded SessionItems
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*s = decoded
	return nil
}

// ProductIDs returns the referenced product ids in session order.
func (s SessionItems) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for _, item := range s {
		ids = append(ids, item.ProductID)
	}
	return ids
}
