// Package dbtest opens throwaway in-memory SQLite databases carrying the
// order lifecycle schema for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		discount TEXT,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		sold INTEGER NOT NULL DEFAULT 0 CHECK (sold >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE checkout_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		items TEXT NOT NULL,
		buy_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_snapshot TEXT NOT NULL,
		shipping_address TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payment_status TEXT NOT NULL DEFAULT 'pending',
		payment_method TEXT,
		payment_session_id TEXT,
		paid_at DATETIME,
		failed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		seller_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 3),
		price TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		tracking_number TEXT,
		delivered_at DATETIME,
		cancelled_at DATETIME,
		cancelled_by TEXT,
		refund_status TEXT,
		refund_amount TEXT,
		refunded_amount TEXT,
		refund_processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a fresh database with every table created.
func Open(t *testing.T, name string) *gorm.DB {
	t.Helper()
	dsn := "file:" + name + "_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// SeedUser inserts a buyer.
func SeedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	phone := "+910000000000"
	u := models.User{
		ID:    uuid.New(),
		Name:  "Asha Buyer",
		Email: uuid.NewString() + "@example.com",
		Phone: &phone,
		Role:  enums.UserRoleUser,
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// SeedProduct inserts a product with the given price, optional discount percent and stock.
func SeedProduct(t *testing.T, db *gorm.DB, sellerID uuid.UUID, price string, discount string, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ID:       uuid.New(),
		SellerID: sellerID,
		Name:     "Product " + uuid.NewString()[:8],
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	}
	if discount != "" {
		d := decimal.RequireFromString(discount)
		p.Discount = &d
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// ReloadProduct reads the current counters for a product.
func ReloadProduct(t *testing.T, db *gorm.DB, id uuid.UUID) models.Product {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p
}

// CountEvents counts outbox rows of the given type.
func CountEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

// Now is a fixed UTC clock for deterministic tests.
func Now() time.Time {
	return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}
