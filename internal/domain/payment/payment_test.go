package payment

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/domain/order"
)

func TestToMinor(t *testing.T) {
	tests := []struct {
		amount   string
		expected int64
	}{
		{"0", 0},
		{"499", 49900},
		{"19.99", 1999},
		{"0.105", 11},
		{"1234.5", 123450},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToMinor(decimal.RequireFromString(tt.amount)))
		})
	}

	assert.Equal(t, "19.99", FromMinor(1999).String())
}

func TestMethod_Valid(t *testing.T) {
	assert.True(t, MethodOnline.Valid())
	assert.True(t, MethodCOD.Valid())
	assert.False(t, Method("card").Valid())
}

func TestCallback_Validate(t *testing.T) {
	ok := Callback{GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", GatewaySignature: "sig"}
	assert.NoError(t, ok.Validate())

	missing := ok
	missing.GatewaySignature = " "
	assert.ErrorIs(t, missing.Validate(), ErrInvalidCallback)
}

func TestVerifyRequest_FlattensCallback(t *testing.T) {
	req := VerifyRequest{
		Callback: Callback{GatewayOrderID: "order_1", GatewayPaymentID: "pay_1", GatewaySignature: "sig"},
		Items:    []order.Item{{ProductID: "p", Name: "P", Quantity: 1, Price: 10}},
		Amount:   10,
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "order_1", m["gatewayOrderId"])
	assert.Equal(t, "sig", m["gatewaySignature"])
	assert.Equal(t, 10.0, m["amount"])
}

func TestCustomerInfoFrom(t *testing.T) {
	info := CustomerInfoFrom(order.Customer{Name: "A", Email: "a@b.c", Phone: "1", Address: "X", City: "Pune"})
	assert.Equal(t, CustomerInfo{Name: "A", Email: "a@b.c", Phone: "1", Address: "X", City: "Pune"}, info)
}
