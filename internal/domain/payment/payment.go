// Package payment defines the payloads exchanged with the remote payment API
// and the gateway widget.
package payment

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/domain/order"
)

// Method is the settlement protocol chosen at checkout
type Method string

const (
	MethodOnline Method = "online"
	MethodCOD    Method = "cod"
)

func (m Method) Valid() bool {
	return m == MethodOnline || m == MethodCOD
}

var ErrInvalidCallback = errors.New("gateway callback is missing fields")

// GatewayItem is the gateway-constrained form of a line: bounded name,
// integer minor-unit amount, quantity at least 1.
type GatewayItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Quantity int    `json:"quantity"`
	// Total is the line amount in minor units. Line totals sum to the order
	// amount; Amount*Quantity can be off by a minor unit for sub-cent prices.
	Total int64 `json:"total"`
}

// CustomerInfo is the customer block sent to the payment API
type CustomerInfo struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// CustomerInfoFrom converts an order customer
func CustomerInfoFrom(c order.Customer) CustomerInfo {
	return CustomerInfo{
		Name:       c.Name,
		Email:      c.Email,
		Phone:      c.Phone,
		Address:    c.Address,
		City:       c.City,
		State:      c.State,
		PostalCode: c.PostalCode,
	}
}

// CreateOrderRequest is the body of POST /payment/create-order
type CreateOrderRequest struct {
	Amount       int64         `json:"amount"`
	Currency     string        `json:"currency"`
	Receipt      string        `json:"receipt"`
	CustomerInfo CustomerInfo  `json:"customerInfo"`
	Items        []GatewayItem `json:"items"`
	OrderItems   []order.Item  `json:"orderItems"`
}

// GatewayOrder is the order minted by the gateway
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrderResponse carries the public gateway key and the gateway order
type CreateOrderResponse struct {
	Key   string       `json:"key"`
	Order GatewayOrder `json:"order"`
}

// Callback is what the gateway widget reports on success
type Callback struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	GatewaySignature string `json:"gatewaySignature"`
}

// Validate checks that every callback field is present
func (c Callback) Validate() error {
	if strings.TrimSpace(c.GatewayOrderID) == "" ||
		strings.TrimSpace(c.GatewayPaymentID) == "" ||
		strings.TrimSpace(c.GatewaySignature) == "" {
		return ErrInvalidCallback
	}
	return nil
}

// VerifyRequest is the body of POST /payment/verify
type VerifyRequest struct {
	Callback
	CustomerInfo CustomerInfo `json:"customerInfo"`
	Items        []order.Item `json:"items"`
	Amount       float64      `json:"amount"`
}

// VerifyResponse is returned when the server accepts the signature
type VerifyResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message,omitempty"`
}

// CancelRequest is the body of POST /payment/cancel
type CancelRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	Reason         string `json:"reason,omitempty"`
}

// ToMinor converts a major-unit amount to integer minor units, rounding half away from zero
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinor converts minor units back to a major-unit amount
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
