package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

// MockOrderAPI is an in-memory stand-in for the remote order and payment API.
// Calls are recorded; the *Err fields force failures and the *Func fields
// replace the default behavior.
type MockOrderAPI struct {
	mu     sync.Mutex
	orders map[string]order.Order // paymentID -> order

	CreatePaymentOrderCalls []payment.CreateOrderRequest
	CreatePaymentOrderErr   error
	CreatePaymentOrderFunc  func(ctx context.Context, req payment.CreateOrderRequest) (payment.CreateOrderResponse, error)

	VerifyCalls []payment.VerifyRequest
	VerifyErr   error
	VerifyFunc  func(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResponse, error)

	CancelCalls []payment.CancelRequest
	CancelErr   error

	CreateOrderCalls []order.Order
	CreateOrderErr   error

	GetOrderByPaymentCalls []string
	GetOrderByPaymentErr   error
}

func NewMockOrderAPI() *MockOrderAPI {
	return &MockOrderAPI{
		orders:                  make(map[string]order.Order),
		CreatePaymentOrderCalls: make([]payment.CreateOrderRequest, 0),
		VerifyCalls:             make([]payment.VerifyRequest, 0),
		CancelCalls:             make([]payment.CancelRequest, 0),
		CreateOrderCalls:        make([]order.Order, 0),
		GetOrderByPaymentCalls:  make([]string, 0),
	}
}

// AddOrder seeds an order as if the server already stored it
func (m *MockOrderAPI) AddOrder(o order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.PaymentID] = o
}

// OrderCount returns the number of orders the server knows
func (m *MockOrderAPI) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockOrderAPI) CreatePaymentOrder(ctx context.Context, req payment.CreateOrderRequest) (payment.CreateOrderResponse, error) {
	m.mu.Lock()
	m.CreatePaymentOrderCalls = append(m.CreatePaymentOrderCalls, req)
	n := len(m.CreatePaymentOrderCalls)
	fn, err := m.CreatePaymentOrderFunc, m.CreatePaymentOrderErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return payment.CreateOrderResponse{}, err
	}
	return payment.CreateOrderResponse{
		Key: "key_test",
		Order: payment.GatewayOrder{
			ID:       fmt.Sprintf("order_mock_%d", n),
			Amount:   req.Amount,
			Currency: req.Currency,
		},
	}, nil
}

// VerifyPayment accepts every signature by default and stores the verified order
func (m *MockOrderAPI) VerifyPayment(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResponse, error) {
	m.mu.Lock()
	m.VerifyCalls = append(m.VerifyCalls, req)
	fn, err := m.VerifyFunc, m.VerifyErr
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return payment.VerifyResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return payment.VerifyResponse{}, err
	}

	orderID := "ORD-" + req.GatewayOrderID
	m.AddOrder(order.Order{
		OrderID:   orderID,
		PaymentID: req.GatewayPaymentID,
		Total:     req.Amount,
		Items:     req.Items,
		Status:    order.StatusPaid,
	})
	return payment.VerifyResponse{Success: true, OrderID: orderID}, nil
}

func (m *MockOrderAPI) CancelPayment(ctx context.Context, req payment.CancelRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CancelCalls = append(m.CancelCalls, req)
	return m.CancelErr
}

func (m *MockOrderAPI) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateOrderCalls = append(m.CreateOrderCalls, o)
	if m.CreateOrderErr != nil {
		return order.Order{}, m.CreateOrderErr
	}
	m.orders[o.PaymentID] = o
	return o, nil
}

func (m *MockOrderAPI) GetOrderByPayment(ctx context.Context, paymentID string) (order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetOrderByPaymentCalls = append(m.GetOrderByPaymentCalls, paymentID)
	if m.GetOrderByPaymentErr != nil {
		return order.Order{}, m.GetOrderByPaymentErr
	}
	o, ok := m.orders[paymentID]
	if !ok {
		return order.Order{}, order.ErrOrderNotFound
	}
	return o, nil
}
