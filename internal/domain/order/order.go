package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	// StatusPending is a created order awaiting payment, e.g. cash on delivery
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	// StatusPendingSync marks a locally queued order not yet known to the server
	StatusPendingSync Status = "pending_sync"
	StatusCancelled   Status = "cancelled"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrInvalidOrder  = errors.New("invalid order")
	ErrEmptyOrder    = errors.New("order must have at least one item")
)

// Item is the purchase-time snapshot of one line, decoupled from the catalog
type Item struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Image     string  `json:"image,omitempty"`
}

// Subtotal returns price * quantity
func (i Item) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Customer holds the contact and shipping fields stored on an order
type Customer struct {
	Name       string `json:"customerName"`
	Email      string `json:"customerEmail"`
	Phone      string `json:"customerPhone"`
	Address    string `json:"customerAddress"`
	City       string `json:"customerCity,omitempty"`
	State      string `json:"customerState,omitempty"`
	PostalCode string `json:"customerPostalCode,omitempty"`
}

// HasIdentity reports whether the customer carries a real name and address
func (c Customer) HasIdentity() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Address) != ""
}

// Order is the server-owned order record. The client only creates it (cash on
// delivery or fallback) or reads it back.
type Order struct {
	OrderID   string  `json:"orderId"`
	PaymentID string  `json:"paymentId"`
	Total     float64 `json:"total"`
	Items     []Item  `json:"items"`
	Customer
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Status        Status    `json:"status,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
}

// ItemsTotal sums the item subtotals
func (o Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ItemCount sums item quantities
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// IsZero reports whether o carries no order data at all
func (o Order) IsZero() bool {
	return o.OrderID == "" && o.PaymentID == "" && len(o.Items) == 0 && o.Total == 0
}

// Validate checks the fields required to create an order remotely
func (o Order) Validate() error {
	var problems []string
	if strings.TrimSpace(o.OrderID) == "" {
		problems = append(problems, "orderId is required")
	}
	if strings.TrimSpace(o.PaymentID) == "" {
		problems = append(problems, "paymentId is required")
	}
	if o.Total < 0 {
		problems = append(problems, "total cannot be negative")
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, ErrEmptyOrder)
	}
	for i, it := range o.Items {
		if it.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, "; "))
	}
	return nil
}

// PendingOrder is an order queued locally after remote creation failed.
// It stays until a later sync replaces or removes it.
type PendingOrder struct {
	Order
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// NewPending builds a pending_sync record from o
func NewPending(o Order, now time.Time, reason string) PendingOrder {
	o.Status = StatusPendingSync
	return PendingOrder{Order: o, Timestamp: now.UTC(), Reason: reason}
}
