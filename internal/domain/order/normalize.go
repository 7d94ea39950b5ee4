package order

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// flexNumber accepts a JSON number or a numeric string
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("not a number: %q", s)
		}
		*f = flexNumber(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexNumber(v)
	return nil
}

type wireItem struct {
	ProductID string     `json:"productId"`
	Product   string     `json:"product"`
	Name      string     `json:"name"`
	Quantity  flexNumber `json:"quantity"`
	Qty       flexNumber `json:"qty"`
	Price     flexNumber `json:"price"`
	Size      string     `json:"size"`
	Color     string     `json:"color"`
	Image     string     `json:"image"`
}

type wireOrder struct {
	ID        string     `json:"_id"`
	OrderID   string     `json:"orderId"`
	PaymentID string     `json:"paymentId"`
	Total     flexNumber `json:"total"`
	Amount    flexNumber `json:"amount"`
	Items     []wireItem `json:"items"`
	Customer
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Decode parses an order returned by the remote API. It accepts the order at
// the top level or wrapped in "order" or "data", fills orderId from "_id",
// total from "amount" and quantities from "qty", and clamps quantities to at least 1.
func Decode(data []byte) (Order, error) {
	var envelope struct {
		Order json.RawMessage `json:"order"`
		Data  json.RawMessage `json:"data"`
	}
	body := data
	if err := json.Unmarshal(data, &envelope); err == nil {
		switch {
		case isObject(envelope.Order):
			body = envelope.Order
		case isObject(envelope.Data):
			body = envelope.Data
		}
	}

	var w wireOrder
	if err := json.Unmarshal(body, &w); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	o := Order{
		OrderID:       strings.TrimSpace(w.OrderID),
		PaymentID:     strings.TrimSpace(w.PaymentID),
		Total:         float64(w.Total),
		Customer:      w.Customer,
		PaymentMethod: w.PaymentMethod,
		Status:        Status(strings.ToLower(strings.TrimSpace(w.Status))),
		CreatedAt:     w.CreatedAt,
	}
	if o.OrderID == "" {
		o.OrderID = strings.TrimSpace(w.ID)
	}
	if o.Total == 0 {
		o.Total = float64(w.Amount)
	}
	for _, wi := range w.Items {
		it := Item{
			ProductID: firstNonEmpty(wi.ProductID, wi.Product),
			Name:      wi.Name,
			Price:     float64(wi.Price),
			Size:      wi.Size,
			Color:     wi.Color,
			Image:     wi.Image,
		}
		q := float64(wi.Quantity)
		if q == 0 {
			q = float64(wi.Qty)
		}
		it.Quantity = max(1, int(math.Floor(q)))
		o.Items = append(o.Items, it)
	}

	if o.OrderID == "" && o.PaymentID == "" {
		return Order{}, fmt.Errorf("%w: response carries neither orderId nor paymentId", ErrInvalidOrder)
	}
	return o, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
