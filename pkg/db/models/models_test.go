package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestProductUnitPriceAppliesDiscount(t *testing.T) {
	discount := decimal.NewFromInt(10)
	p := Product{Price: decimal.RequireFromString("250.00"), Discount: &discount}
	assert.True(t, decimal.RequireFromString("225").Equal(p.UnitPrice()))

	p.Discount = nil
	assert.True(t, decimal.RequireFromString("250").Equal(p.UnitPrice()))
}

func TestOrderItemLookupAndSellerFilter(t *testing.T) {
	sellerA := uuid.New()
	sellerB := uuid.New()
	first := OrderItem{ID: uuid.New(), SellerID: sellerA, Quantity: 2, Price: decimal.NewFromInt(40)}
	second := OrderItem{ID: uuid.New(), SellerID: sellerB, Quantity: 1, Price: decimal.NewFromInt(15)}
	order := Order{Items: []OrderItem{first, second}}

	got, ok := order.Item(second.ID)
	assert.True(t, ok)
	assert.Equal(t, sellerB, got.SellerID)

	_, ok = order.Item(uuid.New())
	assert.False(t, ok)

	mine := order.ItemsForSeller(sellerA)
	assert.Len(t, mine, 1)
	assert.True(t, decimal.NewFromInt(80).Equal(mine[0].LineTotal()))
}

func TestCheckoutSessionExpired(t *testing.T) {
	now := time.Now()
	s := CheckoutSession{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Minute)))
}
