package cart

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// LineItem is one cart row, identified by product and variant selection
type LineItem struct {
	UID           string  `json:"uid"`
	ProductID     string  `json:"productId"`
	Name          string  `json:"name"`
	Image         string  `json:"image,omitempty"`
	Description   string  `json:"description,omitempty"`
	Price         float64 `json:"price"`
	Quantity      int     `json:"quantity"`
	SelectedColor string  `json:"selectedColor,omitempty"`
	SelectedSize  string  `json:"selectedSize,omitempty"`
	StockQuantity *int    `json:"stockQuantity,omitempty"`
}

// Product is the add-time snapshot of a catalog entry. Price is the effective
// unit price, already resolved from offer and list price by the caller.
type Product struct {
	ID            string  `json:"productId"`
	Name          string  `json:"name"`
	Image         string  `json:"image,omitempty"`
	Description   string  `json:"description,omitempty"`
	Price         float64 `json:"price"`
	StockQuantity *int    `json:"stockQuantity,omitempty"`
	SelectedColor string  `json:"selectedColor,omitempty"`
	SelectedSize  string  `json:"selectedSize,omitempty"`
}

// UID returns the identity key of a product with the given variant selection.
// Segments are only present for selected dimensions.
func UID(productID, color, size string) string {
	var b strings.Builder
	b.WriteString(productID)
	if color != "" {
		b.WriteString("::color:")
		b.WriteString(color)
	}
	if size != "" {
		b.WriteString("::size:")
		b.WriteString(size)
	}
	return b.String()
}

// ValidPrice reports whether p is a positive finite number
func ValidPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// Subtotal returns price * quantity
func (li LineItem) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(li.Price).Mul(decimal.NewFromInt(int64(li.Quantity)))
}

func (li LineItem) clone() LineItem {
	if li.StockQuantity != nil {
		n := *li.StockQuantity
		li.StockQuantity = &n
	}
	return li
}

func (p Product) lineItem(quantity int) LineItem {
	li := LineItem{
		UID:           UID(p.ID, p.SelectedColor, p.SelectedSize),
		ProductID:     p.ID,
		Name:          p.Name,
		Image:         p.Image,
		Description:   p.Description,
		Price:         p.Price,
		Quantity:      quantity,
		SelectedColor: p.SelectedColor,
		SelectedSize:  p.SelectedSize,
	}
	if p.StockQuantity != nil {
		n := *p.StockQuantity
		li.StockQuantity = &n
	}
	return li
}

// Total sums price * quantity over items
func Total(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Count sums quantities over items
func Count(items []LineItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
