package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const (
	categoryOrderPlaced   = "order-placed"
	categoryItemCancelled = "order-item-cancelled"
	categoryRefund        = "refund-updated"
)

func shortID(id fmt.Stringer) string {
	s := id.String()
	if len(s) > 8 {
		return strings.ToUpper(s[:8])
	}
	return strings.ToUpper(s)
}

func money(amount decimal.Decimal, currency enums.Currency) string {
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}

func render(subject string, lines ...string) (string, string) {
	text := strings.Join(lines, "\n\n")
	var b strings.Builder
	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(subject))
	b.WriteString("</h2>")
	for _, line := range lines {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return text, b.String()
}

func orderPlacedMessage(evt payloads.OrderPlacedEvent) Message {
	subject := fmt.Sprintf("We received your order #%s", shortID(evt.OrderID))
	text, body := render(subject,
		fmt.Sprintf("Hi %s,", evt.BuyerName),
		fmt.Sprintf("Your order of %d item(s) totalling %s has been placed and is awaiting payment.", evt.ItemCount, money(evt.TotalAmount, evt.Currency)),
		"We will let you know as soon as the sellers start processing it.",
	)
	return Message{
		ToName:   evt.BuyerName,
		ToEmail:  evt.BuyerEmail,
		Subject:  subject,
		Text:     text,
		HTML:     body,
		Category: categoryOrderPlaced,
	}
}

func itemCancelledMessage(evt payloads.OrderItemCancelledEvent) Message {
	subject := fmt.Sprintf("%s was cancelled", evt.ProductName)
	lines := []string{
		fmt.Sprintf("Hi %s,", evt.BuyerName),
	}
	switch evt.CancelledBy {
	case enums.CancelledBySeller:
		lines = append(lines, fmt.Sprintf("The seller cancelled %d x %s from order #%s.", evt.Quantity, evt.ProductName, shortID(evt.OrderID)))
	default:
		lines = append(lines, fmt.Sprintf("%d x %s was cancelled from order #%s.", evt.Quantity, evt.ProductName, shortID(evt.OrderID)))
	}
	if evt.RefundAmount != nil {
		lines = append(lines, fmt.Sprintf("A refund of %s has been initiated to your original payment method.", money(*evt.RefundAmount, evt.Currency)))
	}
	text, body := render(subject, lines...)
	return Message{
		ToName:   evt.BuyerName,
		ToEmail:  evt.BuyerEmail,
		Subject:  subject,
		Text:     text,
		HTML:     body,
		Category: categoryItemCancelled,
	}
}

func refundUpdatedMessage(evt payloads.RefundUpdatedEvent) (Message, bool) {
	var status string
	switch evt.RefundStatus {
	case enums.RefundStatusSuccess:
		status = fmt.Sprintf("Your refund of %s for %s has been processed.", money(evt.RefundedAmount, evt.Currency), evt.ProductName)
	case enums.RefundStatusFailed, enums.RefundStatusCancelled:
		status = fmt.Sprintf("Your refund for %s could not be completed. Our team will reach out shortly.", evt.ProductName)
	case enums.RefundStatusOnHold:
		status = fmt.Sprintf("Your refund for %s is on hold with the payment provider.", evt.ProductName)
	default:
		return Message{}, false
	}
	subject := fmt.Sprintf("Refund update for order #%s", shortID(evt.OrderID))
	text, body := render(subject, fmt.Sprintf("Hi %s,", evt.BuyerName), status)
	return Message{
		ToName:   evt.BuyerName,
		ToEmail:  evt.BuyerEmail,
		Subject:  subject,
		Text:     text,
		HTML:     body,
		Category: categoryRefund,
	}, true
}
