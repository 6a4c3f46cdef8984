package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

// ErrSessionNotFound is returned for missing, foreign, expired or consumed sessions.
func ErrSessionNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "checkout session not found or expired")
}

// Repository persists checkout sessions.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout session repository.
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

// Create stores a new session.
func (r *Repository) Create(ctx context.Context, session *models.CheckoutSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return nil
}

// FindActive loads a live session owned by userID.
func (r *Repository) FindActive(ctx context.Context, id, userID uuid.UUID, now time.Time) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND expires_at > ?", id, userID, now.UTC()).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	return &session, nil
}

// Consume loads and deletes a live session in one step. Only one caller can
// consume a given session; every later caller gets not found.
func (r *Repository) Consume(ctx context.Context, id, userID uuid.UUID, now time.Time) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ? AND expires_at > ?", id, userID, now.UTC()).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}

	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.CheckoutSession{})
	if res.Error != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "consume checkout session")
	}
	if res.RowsAffected == 0 {
		return nil, ErrSessionNotFound()
	}
	return &session, nil
}

// DeleteExpired removes sessions whose TTL elapsed before now.
func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&models.CheckoutSession{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "delete expired checkout sessions")
	}
	return res.RowsAffected, nil
}
