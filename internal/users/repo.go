package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// Repository exposes the read-only user lookups the order flow needs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return &user, nil
}

// Snapshot copies the buyer's contact details for embedding into an order.
func (r *Repository) Snapshot(ctx context.Context, id uuid.UUID) (types.BuyerSnapshot, error) {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return types.BuyerSnapshot{}, err
	}
	snap := types.BuyerSnapshot{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
	}
	if user.Phone != nil {
		snap.Phone = *user.Phone
	}
	return snap, nil
}
