package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Limits bounds the shape of a checkout.
type Limits struct {
	MaxItems    int
	MaxQuantity int
}

// DefaultLimits allows five distinct products, three units each.
func DefaultLimits() Limits {
	return Limits{MaxItems: 5, MaxQuantity: 3}
}

func (l Limits) normalized() Limits {
	def := DefaultLimits()
	if l.MaxItems <= 0 {
		l.MaxItems = def.MaxItems
	}
	if l.MaxQuantity <= 0 {
		l.MaxQuantity = def.MaxQuantity
	}
	return l
}

// ValidateItems checks item count, distinctness and quantity range. It does
// not touch inventory.
func ValidateItems(items []types.SessionItem, limits Limits) error {
	limits = limits.normalized()
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if len(items) > limits.MaxItems {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d products per checkout", limits.MaxItems)).
			WithDetails(map[string]any{"items": len(items), "max": limits.MaxItems})
	}
	seen := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if _, dup := seen[item.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("duplicate product %s", item.ProductID)).
				WithDetails(map[string]any{"productId": item.ProductID})
		}
		seen[item.ProductID] = struct{}{}
	}
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > limits.MaxQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", limits.MaxQuantity)).
				WithDetails(map[string]any{"productId": item.ProductID, "quantity": item.Quantity})
		}
	}
	return nil
}
