package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	require.NoError(t, migrate.Validate(migrate.Migrations()))
}

func TestEmbeddedMatchesSourceDirectory(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	compiled, err := fs.Glob(migrate.Migrations(), "*.sql")
	require.NoError(t, err)
	assert.Len(t, compiled, len(onDisk))
}

func TestOrderMigrationGuardsInventoryAndStatuses(t *testing.T) {
	assertMigrationContains(t, "*_create_products.sql",
		"CONSTRAINT products_stock_nonnegative CHECK (stock >= 0)",
		"CONSTRAINT products_sold_nonnegative CHECK (sold >= 0)",
		"DROP TABLE IF EXISTS products",
	)
	assertMigrationContains(t, "*_create_orders.sql",
		"CREATE TABLE IF NOT EXISTS order_items",
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (quantity BETWEEN 1 AND 3)",
		"'pending', 'processing', 'shipped', 'delivered', 'cancelled'",
		"DROP TABLE IF EXISTS orders",
	)
	assertMigrationContains(t, "*_create_checkout_sessions.sql",
		"expires_at timestamptz NOT NULL",
		"checkout_sessions_expires_at_idx",
	)
}

func assertMigrationContains(t *testing.T, pattern string, fragments ...string) {
	t.Helper()
	fsys := migrate.Migrations()
	matches, err := fs.Glob(fsys, pattern)
	require.NoError(t, err)
	require.NotEmpty(t, matches, "no migration matching %s", pattern)

	data, err := fs.ReadFile(fsys, matches[0])
	require.NoError(t, err)
	for _, fragment := range fragments {
		assert.Contains(t, string(data), fragment, matches[0])
	}
}

func TestCreateWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := migrate.Create(dir, "Add Refund Notes!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260304050607_add_refund_notes.sql"), path)
	require.NoError(t, migrate.Validate(os.DirFS(dir)))

	_, err = migrate.Create(dir, "add refund notes", now)
	assert.Error(t, err, "same version must not overwrite")

	_, err = migrate.Create(dir, "!!!", now)
	assert.Error(t, err)
}

func TestValidateRejectsBadFiles(t *testing.T) {
	header := []byte("-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	cases := map[string]fstest.MapFS{
		"bad name": {"add_orders.sql": {Data: header}},
		"duplicate version": {
			"20260101000000_a.sql": {Data: header},
			"20260101000000_b.sql": {Data: header},
		},
		"missing down": {"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, migrate.Validate(fsys))
		})
	}
	assert.NoError(t, migrate.Validate(fstest.MapFS{"README.md": {Data: []byte("notes")}}))
}

func TestNewRunnerRequiresDB(t *testing.T) {
	_, err := migrate.NewRunner(nil, nil, nil)
	assert.Error(t, err)
}
