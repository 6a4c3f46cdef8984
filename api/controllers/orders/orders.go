package orders

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const maxSearchLength = 100

// Service is the order lifecycle surface used by the HTTP layer.
type Service interface {
	Create(ctx context.Context, actor internalorders.Actor, in internalorders.CreateInput) (*internalorders.CreateResult, error)
	Get(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID) (*models.Order, error)
	ListMine(ctx context.Context, actor internalorders.Actor, params internalorders.ListParams) (*internalorders.ListResult, error)
	ListSeller(ctx context.Context, actor internalorders.Actor, params internalorders.ListParams, activeOnly bool) (*internalorders.ListResult, error)
	ListAll(ctx context.Context, params internalorders.ListParams) (*internalorders.ListResult, error)
	UpdateItemStatus(ctx context.Context, actor internalorders.Actor, orderID uuid.UUID, in internalorders.StatusUpdateInput) (*models.Order, error)
	CancelItem(ctx context.Context, actor internalorders.Actor, orderID, itemID uuid.UUID) (*internalorders.CancelResult, error)
}

type createRequest struct {
	SessionID       uuid.UUID             `json:"sessionId" validate:"required"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress" validate:"required"`
	Currency        string                `json:"currency" validate:"omitempty,len=3"`
}

type statusRequest struct {
	ItemID         uuid.UUID `json:"itemId" validate:"required"`
	OrderStatus    string    `json:"orderStatus" validate:"required"`
	TrackingNumber *string   `json:"trackingNumber,omitempty" validate:"omitempty,max=100"`
}

type cancelRequest struct {
	ItemID uuid.UUID `json:"itemId" validate:"required"`
}

// Create converts a checkout session into a pending order and opens a payment.
func Create(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		var payload createRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), actor, internalorders.CreateInput{
			SessionID:       payload.SessionID,
			ShippingAddress: payload.ShippingAddress,
			Currency:        strings.ToUpper(strings.TrimSpace(payload.Currency)),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusCreated, "Order created", map[string]any{
			"order":            newOrderResponse(result.Order),
			"paymentSessionId": result.PaymentSessionID,
		})
	}
}

// Detail returns an order filtered to what the caller may see.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"order": newOrderResponse(order)})
	}
}

// ListMine pages through the caller's own orders.
func ListMine(svc Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, func(ctx context.Context, actor internalorders.Actor, params internalorders.ListParams) (*internalorders.ListResult, error) {
		return svc.ListMine(ctx, actor, params)
	})
}

// ListSeller pages through orders holding the seller's items. With
// activeOnly only paid orders with open items are returned.
func ListSeller(svc Service, activeOnly bool, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, func(ctx context.Context, actor internalorders.Actor, params internalorders.ListParams) (*internalorders.ListResult, error) {
		return svc.ListSeller(ctx, actor, params, activeOnly)
	})
}

// ListAll pages through every order.
func ListAll(svc Service, logg *logger.Logger) http.HandlerFunc {
	return listHandler(svc, logg, func(ctx context.Context, _ internalorders.Actor, params internalorders.ListParams) (*internalorders.ListResult, error) {
		return svc.ListAll(ctx, params)
	})
}

type listFunc func(ctx context.Context, actor internalorders.Actor, params internalorders.ListParams) (*internalorders.ListResult, error)

func listHandler(svc Service, logg *logger.Logger, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		params, err := parseListParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := list(r.Context(), actor, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newListResponse(result))
	}
}

// UpdateStatus advances one of the seller's items.
func UpdateStatus(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload statusRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderItemStatus(strings.ToLower(strings.TrimSpace(payload.OrderStatus)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateItemStatus(r.Context(), actor, orderID, internalorders.StatusUpdateInput{
			ItemID:         payload.ItemID,
			Status:         status,
			TrackingNumber: payload.TrackingNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, http.StatusOK, "Order status updated", map[string]any{"order": newOrderResponse(order)})
	}
}

// Cancel cancels one item on behalf of its buyer or seller.
func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r, svc, logg)
		if !ok {
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload cancelRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CancelItem(r.Context(), actor, orderID, payload.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		body := map[string]any{
			"order":       newOrderResponse(result.Order),
			"cancelledBy": result.CancelledBy,
		}
		if result.RefundAmount != nil {
			body["refundAmount"] = result.RefundAmount
		}
		responses.WriteMessage(w, http.StatusOK, "Order item cancelled", body)
	}
}

func requireActor(w http.ResponseWriter, r *http.Request, svc Service, logg *logger.Logger) (internalorders.Actor, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return internalorders.Actor{}, false
	}
	userID, role, err := middleware.Caller(r.Context())
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.Actor{}, false
	}
	return internalorders.Actor{UserID: userID, Role: role}, true
}

func parseListParams(r *http.Request) (internalorders.ListParams, error) {
	limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return internalorders.ListParams{}, err
	}
	return internalorders.ListParams{
		Limit:         limit,
		Cursor:        validators.QueryString(r, "cursor", 0),
		Sort:          validators.QueryString(r, "sort", 0),
		Search:        validators.QueryString(r, "q", maxSearchLength),
		PaymentStatus: validators.QueryString(r, "paymentStatus", 0),
		Status:        validators.QueryString(r, "status", 0),
	}, nil
}
