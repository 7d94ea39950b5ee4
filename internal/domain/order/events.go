package order

import "time"

const (
	EventOrderConfirmed     = "OrderConfirmed"
	EventPendingOrderQueued = "PendingOrderQueued"
)

// OrderConfirmed is published once a checkout reaches a confirmed order
type OrderConfirmed struct {
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id"`
	PaymentMethod string    `json:"payment_method"`
	Total         float64   `json:"total"`
	Items         []Item    `json:"items"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// PendingOrderQueued is published when an order could only be stored locally
type PendingOrderQueued struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Total     float64   `json:"total"`
	Reason    string    `json:"reason"`
	QueuedAt  time.Time `json:"queued_at"`
}

// Confirmed builds the OrderConfirmed payload for o
func Confirmed(o Order, at time.Time) OrderConfirmed {
	return OrderConfirmed{
		OrderID:       o.OrderID,
		PaymentID:     o.PaymentID,
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
		Items:         o.Items,
		CustomerName:  o.Name,
		CustomerEmail: o.Email,
		ConfirmedAt:   at.UTC(),
	}
}

// Queued builds the PendingOrderQueued payload for p
func Queued(p PendingOrder) PendingOrderQueued {
	return PendingOrderQueued{
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		Total:     p.Total,
		Reason:    p.Reason,
		QueuedAt:  p.Timestamp,
	}
}
