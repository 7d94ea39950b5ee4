package reconcile

import "strings"

// PlaceholderPolicy decides which payment ids are test or placeholder values
// that must never lead to a fabricated order.
type PlaceholderPolicy struct {
	Prefixes []string
}

// IsPlaceholder reports whether paymentID is empty or starts with a configured prefix
func (p PlaceholderPolicy) IsPlaceholder(paymentID string) bool {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return true
	}
	for _, prefix := range p.Prefixes {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}
