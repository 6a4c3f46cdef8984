package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type orderResponse struct {
	ID               uuid.UUID             `json:"id"`
	UserID           uuid.UUID             `json:"userId"`
	User             types.BuyerSnapshot   `json:"user"`
	ShippingAddress  types.ShippingAddress `json:"shippingAddress"`
	Items            []orderItemResponse   `json:"items"`
	TotalAmount      decimal.Decimal       `json:"totalAmount"`
	Currency         enums.Currency        `json:"currency"`
	PaymentStatus    enums.PaymentStatus   `json:"paymentStatus"`
	PaymentMethod    *string               `json:"paymentMethod,omitempty"`
	PaymentSessionID *string               `json:"paymentSessionId,omitempty"`
	PaidAt           *time.Time            `json:"paidAt,omitempty"`
	FailedAt         *time.Time            `json:"failedAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

type orderItemResponse struct {
	ID                uuid.UUID                `json:"id"`
	ProductID         uuid.UUID                `json:"productId"`
	SellerID          uuid.UUID                `json:"sellerId"`
	Name              string                   `json:"name"`
	Quantity          int                      `json:"quantity"`
	Price             decimal.Decimal          `json:"price"`
	OrderStatus       enums.OrderItemStatus    `json:"orderStatus"`
	TrackingNumber    *string                  `json:"trackingNumber,omitempty"`
	DeliveredAt       *time.Time               `json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time               `json:"cancelledAt,omitempty"`
	CancelledBy       *enums.CancellationActor `json:"cancelledBy,omitempty"`
	RefundStatus      *enums.RefundStatus      `json:"refundStatus,omitempty"`
	RefundAmount      *decimal.Decimal         `json:"refundAmount,omitempty"`
	RefundedAmount    *decimal.Decimal         `json:"refundedAmount,omitempty"`
	RefundProcessedAt *time.Time               `json:"refundProcessedAt,omitempty"`
}

type listResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"nextCursor,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	resp := orderResponse{
		ID:               order.ID,
		UserID:           order.UserID,
		User:             order.UserSnapshot,
		ShippingAddress:  order.ShippingAddress,
		Items:            make([]orderItemResponse, 0, len(order.Items)),
		TotalAmount:      order.TotalAmount,
		Currency:         order.Currency,
		PaymentStatus:    order.PaymentStatus,
		PaymentMethod:    order.PaymentMethod,
		PaymentSessionID: order.PaymentSessionID,
		PaidAt:           order.PaidAt,
		FailedAt:         order.FailedAt,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:                item.ID,
			ProductID:         item.ProductID,
			SellerID:          item.SellerID,
			Name:              item.ProductName,
			Quantity:          item.Quantity,
			Price:             item.Price,
			OrderStatus:       item.Status,
			TrackingNumber:    item.TrackingNumber,
			DeliveredAt:       item.DeliveredAt,
			CancelledAt:       item.CancelledAt,
			CancelledBy:       item.CancelledBy,
			RefundStatus:      item.RefundStatus,
			RefundAmount:      item.RefundAmount,
			RefundedAmount:    item.RefundedAmount,
			RefundProcessedAt: item.RefundProcessedAt,
		})
	}
	return resp
}

func newListResponse(result *internalorders.ListResult) listResponse {
	resp := listResponse{Orders: make([]orderResponse, 0, len(result.Orders)), NextCursor: result.NextCursor}
	for i := range result.Orders {
		resp.Orders = append(resp.Orders, newOrderResponse(&result.Orders[i]))
	}
	return resp
}
