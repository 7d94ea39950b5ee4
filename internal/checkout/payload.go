package checkout

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

var ErrInvalidPaymentItems = errors.New("some items cannot be paid for")

// Snapshot is the payable subset frozen for one attempt. The displayed amount,
// the gateway payload and the recorded order items all derive from it.
type Snapshot struct {
	Items       []cart.LineItem `json:"items"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
	AmountMinor int64           `json:"amountMinor"`
}

func NewSnapshot(items []cart.LineItem) Snapshot {
	total := cart.Total(items)
	return Snapshot{
		Items:       items,
		Total:       total,
		ItemCount:   cart.Count(items),
		AmountMinor: payment.ToMinor(total),
	}
}

func (s Snapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Matches reports whether both snapshots charge the same amount for the same lines
func (s Snapshot) Matches(other Snapshot) bool {
	if s.AmountMinor != other.AmountMinor || len(s.Items) != len(other.Items) {
		return false
	}
	for i, it := range s.Items {
		o := other.Items[i]
		if it.UID != o.UID || it.Quantity != o.Quantity || it.Price != o.Price {
			return false
		}
	}
	return true
}

// GatewayItems shapes the lines for the gateway: name cut to maxName runes,
// unit amount in minor units, quantity at least 1, and line totals that add
// up to AmountMinor.
func (s Snapshot) GatewayItems(maxName int) []payment.GatewayItem {
	totals := lineMinors(s.Items)
	out := make([]payment.GatewayItem, 0, len(s.Items))
	for i, it := range s.Items {
		out = append(out, payment.GatewayItem{
			ID:       it.UID,
			Name:     truncate(strings.TrimSpace(it.Name), maxName),
			Amount:   payment.ToMinor(decimal.NewFromFloat(safePrice(it.Price))),
			Quantity: max(1, it.Quantity),
			Total:    totals[i],
		})
	}
	return out
}

// lineMinors splits the rounded order amount over the lines by largest
// remainder, so the line totals sum exactly to ToMinor(Total(items)).
func lineMinors(items []cart.LineItem) []int64 {
	hundred := decimal.NewFromInt(100)
	out := make([]int64, len(items))
	fracs := make([]decimal.Decimal, len(items))
	exact := decimal.Zero
	var floored int64
	for i, it := range items {
		it.Price = safePrice(it.Price)
		minor := it.Subtotal().Mul(hundred)
		exact = exact.Add(minor)
		whole := minor.Floor()
		out[i] = whole.IntPart()
		fracs[i] = minor.Sub(whole)
		floored += out[i]
	}

	left := exact.Round(0).IntPart() - floored
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fracs[order[a]].GreaterThan(fracs[order[b]])
	})
	for _, i := range order {
		if left <= 0 {
			break
		}
		if fracs[i].IsZero() {
			continue
		}
		out[i]++
		left--
	}
	return out
}

// RecordItems shapes the lines for order persistence
func (s Snapshot) RecordItems() []order.Item {
	out := make([]order.Item, 0, len(s.Items))
	for _, it := range s.Items {
		out = append(out, order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Size:      it.SelectedSize,
			Color:     it.SelectedColor,
			Image:     it.Image,
		})
	}
	return out
}

// Validate checks every line before anything is sent to the gateway and
// reports all problems at once.
func (s Snapshot) Validate() error {
	var problems []string
	for i, it := range s.Items {
		var p []string
		if strings.TrimSpace(it.UID) == "" || strings.TrimSpace(it.ProductID) == "" {
			p = append(p, "missing identifier")
		}
		if strings.TrimSpace(it.Name) == "" {
			p = append(p, "missing name")
		}
		if math.IsNaN(it.Price) || math.IsInf(it.Price, 0) || it.Price <= 0 {
			p = append(p, "invalid price")
		}
		if it.Quantity < 1 {
			p = append(p, "invalid quantity")
		}
		if len(p) > 0 {
			label := it.Name
			if label == "" {
				label = it.UID
			}
			problems = append(problems, fmt.Sprintf("item %d (%s): %s", i+1, label, strings.Join(p, ", ")))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPaymentItems, strings.Join(problems, "; "))
	}
	return nil
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func safePrice(p float64) float64 {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0
	}
	return p
}
