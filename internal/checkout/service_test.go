package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/dbtest"
	"github.com/angelmondragon/bazaar-backend/internal/inventory"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type fixture struct {
	db    *gorm.DB
	svc   *Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: dbtest.Open(t, "checkout"), clock: dbtest.Now()}
	svc, err := NewService(NewRepository(f.db), inventory.NewLedger(f.db), nil, Options{
		Clock: func() time.Time { return f.clock },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func codeOf(err error) pkgerrors.Code {
	return pkgerrors.As(err).Code()
}

func TestCreatePersistsSessionWithTTL(t *testing.T) {
	f := newFixture(t)
	seller := uuid.New()
	p1 := dbtest.SeedProduct(t, f.db, seller, "100", "", 5)
	p2 := dbtest.SeedProduct(t, f.db, seller, "50", "10", 1)
	user := uuid.New()

	session, err := f.svc.Create(context.Background(), user, []types.SessionItem{
		{ProductID: p1.ID, Quantity: 3},
		{ProductID: p2.ID, Quantity: 1},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, enums.BuyTypeBuyNow, session.BuyType)
	assert.Equal(t, f.clock.Add(30*time.Minute), session.ExpiresAt)

	stored, err := NewRepository(f.db).FindActive(context.Background(), session.ID, user, f.clock)
	require.NoError(t, err)
	require.Len(t, stored.Items, 2)
	assert.Equal(t, p1.ID, stored.Items[0].ProductID)
	assert.Equal(t, 3, stored.Items[0].Quantity)
}

func TestCreateValidationOrder(t *testing.T) {
	f := newFixture(t)
	seller := uuid.New()
	product := dbtest.SeedProduct(t, f.db, seller, "10", "", 2)

	six := make([]types.SessionItem, 0, 6)
	for i := 0; i < 6; i++ {
		six = append(six, types.SessionItem{ProductID: uuid.New(), Quantity: 9})
	}

	cases := []struct {
		name  string
		items []types.SessionItem
		code  pkgerrors.Code
	}{
		{"empty", nil, pkgerrors.CodeValidation},
		{"too many products wins over bad quantity", six, pkgerrors.CodeValidation},
		{"duplicate product", []types.SessionItem{{ProductID: product.ID, Quantity: 1}, {ProductID: product.ID, Quantity: 1}}, pkgerrors.CodeValidation},
		{"quantity above three", []types.SessionItem{{ProductID: product.ID, Quantity: 4}}, pkgerrors.CodeValidation},
		{"quantity zero", []types.SessionItem{{ProductID: product.ID, Quantity: 0}}, pkgerrors.CodeValidation},
		{"unknown product", []types.SessionItem{{ProductID: uuid.New(), Quantity: 1}}, pkgerrors.CodeNotFound},
		{"insufficient stock", []types.SessionItem{{ProductID: product.ID, Quantity: 3}}, pkgerrors.CodeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), uuid.New(), tc.items, enums.BuyTypeBuyNow)
			require.Error(t, err)
			assert.Equal(t, tc.code, codeOf(err))
		})
	}

	var count int64
	require.NoError(t, f.db.Table("checkout_sessions").Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRejectsUnknownBuyType(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, uuid.New(), "10", "", 2)

	_, err := f.svc.Create(context.Background(), uuid.New(), []types.SessionItem{{ProductID: product.ID, Quantity: 1}}, enums.BuyType("wishlist"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
}

func TestGetPopulatesCurrentPrices(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, uuid.New(), "200", "25", 3)
	user := uuid.New()

	session, err := f.svc.Create(context.Background(), user, []types.SessionItem{{ProductID: product.ID, Quantity: 2}}, enums.BuyTypeCartCheckout)
	require.NoError(t, err)

	view, err := f.svc.Get(context.Background(), user, session.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "150", view.Items[0].UnitPrice.String())
	assert.Equal(t, "300", view.Subtotal.String())
	assert.True(t, view.Items[0].Available)
	assert.Equal(t, enums.BuyTypeCartCheckout, view.BuyType)
}

func TestGetHidesForeignAndExpiredSessions(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, uuid.New(), "20", "", 3)
	user := uuid.New()

	session, err := f.svc.Create(context.Background(), user, []types.SessionItem{{ProductID: product.ID, Quantity: 1}}, "")
	require.NoError(t, err)

	_, err = f.svc.Get(context.Background(), uuid.New(), session.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))

	f.clock = f.clock.Add(31 * time.Minute)
	_, err = f.svc.Get(context.Background(), user, session.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestConsumeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, uuid.New(), "20", "", 3)
	user := uuid.New()
	session, err := f.svc.Create(context.Background(), user, []types.SessionItem{{ProductID: product.ID, Quantity: 1}}, "")
	require.NoError(t, err)

	repo := NewRepository(f.db)
	consumed, err := repo.Consume(context.Background(), session.ID, user, f.clock)
	require.NoError(t, err)
	assert.Equal(t, session.ID, consumed.ID)

	_, err = repo.Consume(context.Background(), session.ID, user, f.clock)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, codeOf(err))
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	product := dbtest.SeedProduct(t, f.db, uuid.New(), "20", "", 3)
	_, err := f.svc.Create(context.Background(), uuid.New(), []types.SessionItem{{ProductID: product.ID, Quantity: 1}}, "")
	require.NoError(t, err)

	removed, err := f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	f.clock = f.clock.Add(30 * time.Minute)
	removed, err = f.svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
