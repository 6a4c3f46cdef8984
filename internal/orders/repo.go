package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

const failedPaymentMethod = "failed"

// Repository persists the order aggregate. Every state change is a
// conditional update whose predicate carries the expected current state.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repository to a connection.
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

// Create inserts the order and its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// FindByID loads the order with its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx), id)
}

// FindForUpdate loads the order with its items and row-locks the order.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.find(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *Repository) find(_ context.Context, q *gorm.DB, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := q.Preload("Items", preloadItems).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// SetPaymentSession stores the gateway handle on a pending order.
func (r *Repository) SetPaymentSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]any{"payment_session_id": sessionID, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "store payment session")
	}
	return nil
}

// MarkPaid moves a pending order to paid. It reports false when the order
// was not pending.
func (r *Repository) MarkPaid(ctx context.Context, orderID uuid.UUID, method string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"payment_method": method,
			"paid_at":        at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark order paid")
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed moves a pending order to failed. It reports false when the
// order was not pending.
func (r *Repository) MarkFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"payment_status": enums.PaymentStatusFailed,
			"payment_method": failedPaymentMethod,
			"failed_at":      at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "mark order failed")
	}
	return res.RowsAffected == 1, nil
}

// StartProcessing moves every pending item of the order to processing.
// Cancelled items are untouched.
func (r *Repository) StartProcessing(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND status = ?", orderID, enums.OrderItemStatusPending).
		Updates(map[string]any{"status": enums.OrderItemStatusProcessing, "updated_at": at})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "start item processing")
	}
	return res.RowsAffected, nil
}

// CancelItem cancels the item when its current status is one of from.
func (r *Repository) CancelItem(ctx context.Context, orderID, itemID uuid.UUID, from []enums.OrderItemStatus, actor enums.CancellationActor, at time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ? AND status IN ?", itemID, orderID, from).
		Updates(map[string]any{
			"status":       enums.OrderItemStatusCancelled,
			"cancelled_at": at,
			"cancelled_by": actor,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "cancel order item")
	}
	return res.RowsAffected == 1, nil
}

// ItemStatusChange describes a seller fulfillment update.
type ItemStatusChange struct {
	OrderID        uuid.UUID
	ItemID         uuid.UUID
	SellerID       uuid.UUID
	From           enums.OrderItemStatus
	To             enums.OrderItemStatus
	TrackingNumber *string
	At             time.Time
}

// UpdateItemStatus applies a seller update if the item is still in From.
func (r *Repository) UpdateItemStatus(ctx context.Context, change ItemStatusChange) (bool, error) {
	updates := map[string]any{
		"status":     change.To,
		"updated_at": change.At,
	}
	if change.TrackingNumber != nil {
		updates["tracking_number"] = *change.TrackingNumber
	}
	if change.To == enums.OrderItemStatusDelivered {
		updates["delivered_at"] = change.At
	}
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ? AND seller_id = ? AND status = ?", change.ItemID, change.OrderID, change.SellerID, change.From).
		Updates(updates)
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "update order item status")
	}
	return res.RowsAffected == 1, nil
}

// RequestRefund records the refund intent on a cancelled item once.
func (r *Repository) RequestRefund(ctx context.Context, orderID, itemID uuid.UUID, amount decimal.Decimal, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ? AND status = ? AND refund_status IS NULL", itemID, orderID, enums.OrderItemStatusCancelled).
		Updates(map[string]any{
			"refund_status": enums.RefundStatusPending,
			"refund_amount": amount,
			"updated_at":    at,
		})
	if res.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "request refund")
	}
	return res.RowsAffected == 1, nil
}

// RefundOutcome is a gateway-reported refund result for one item.
type RefundOutcome struct {
	OrderID     uuid.UUID
	ItemID      uuid.UUID
	Status      enums.RefundStatus
	Amount      decimal.Decimal
	ProcessedAt *time.Time
	At          time.Time
}

// RecordRefund overwrites the refund fields of an item.
func (r *Repository) RecordRefund(ctx context.Context, outcome RefundOutcome) error {
	res := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND order_id = ?", outcome.ItemID, outcome.OrderID).
		Updates(map[string]any{
			"refund_status":       outcome.Status,
			"refunded_amount":     outcome.Amount,
			"refund_processed_at": outcome.ProcessedAt,
			"updated_at":          outcome.At,
		})
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "record refund")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
	}
	return nil
}

// FindPendingBefore returns orders still awaiting payment that were created
// before cutoff, oldest first.
func (r *Repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = pagination.MaxLimit
	}
	var out []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND created_at < ?", enums.PaymentStatusPending, cutoff.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find pending orders")
	}
	return out, nil
}

// ListQuery filters an order listing.
type ListQuery struct {
	UserID        *uuid.UUID
	SellerID      *uuid.UUID
	ActiveOnly    bool
	PaymentStatus *enums.PaymentStatus
	ItemStatus    *enums.OrderItemStatus
	Search        string
	Limit         int
	Cursor        *pagination.Cursor
	Direction     pagination.Direction
}

var activeItemStatuses = []enums.OrderItemStatus{
	enums.OrderItemStatusPending,
	enums.OrderItemStatusProcessing,
	enums.OrderItemStatusShipped,
}

// List pages through orders by creation time. The returned cursor is nil on
// the last page.
func (r *Repository) List(ctx context.Context, q ListQuery) ([]models.Order, *pagination.Cursor, error) {
	normalized := pagination.NormalizeLimit(q.Limit)
	query := r.db.WithContext(ctx).Model(&models.Order{})

	if q.UserID != nil {
		query = query.Where("orders.user_id = ?", *q.UserID)
	}
	if q.PaymentStatus != nil {
		query = query.Where("orders.payment_status = ?", *q.PaymentStatus)
	}
	if q.ActiveOnly {
		query = query.Where("orders.payment_status = ?", enums.PaymentStatusPaid)
	}

	itemConds := []string{}
	itemArgs := []any{}
	if q.SellerID != nil {
		itemConds = append(itemConds, "oi.seller_id = ?")
		itemArgs = append(itemArgs, *q.SellerID)
	}
	if q.ActiveOnly {
		itemConds = append(itemConds, "oi.status IN ?")
		itemArgs = append(itemArgs, activeItemStatuses)
	}
	if q.ItemStatus != nil {
		itemConds = append(itemConds, "oi.status = ?")
		itemArgs = append(itemArgs, *q.ItemStatus)
	}
	if term := strings.TrimSpace(q.Search); term != "" {
		itemConds = append(itemConds, `LOWER(oi.product_name) LIKE ? ESCAPE '\'`)
		itemArgs = append(itemArgs, "%"+strings.ToLower(escapeLike(term))+"%")
	}
	if len(itemConds) > 0 {
		sub := "EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND " + strings.Join(itemConds, " AND ") + ")"
		query = query.Where(sub, itemArgs...)
	}

	if q.Cursor != nil {
		clause, args := q.Direction.After("orders", *q.Cursor)
		query = query.Where(clause, args...)
	}

	var rows []models.Order
	err := query.
		Preload("Items", preloadItems).
		Order(q.Direction.OrderBy("orders")).
		Limit(normalized + 1).
		Find(&rows).Error
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	rows, next := pagination.Trim(rows, normalized, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return rows, next, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}
