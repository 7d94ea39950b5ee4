// Package stock holds the stock ceiling policy shared by all variant lines of a product.
package stock

// Outcome classifies how much of a request could be granted
type Outcome string

const (
	Full       Outcome = "full"
	Reduced    Outcome = "reduced"
	OutOfStock Outcome = "out_of_stock"
)

// Grant is the result of clamping a requested quantity against a ceiling
type Grant struct {
	Requested int
	Granted   int
	Outcome   Outcome
}

// Clamp computes how much of requested can be granted when held units of the same
// base product are already in the cart. A nil ceiling means the product does not
// track stock and the request is granted in full.
func Clamp(requested, held int, ceiling *int) Grant {
	if requested < 0 {
		requested = 0
	}
	g := Grant{Requested: requested, Granted: requested, Outcome: Full}
	if ceiling == nil {
		return g
	}

	g.Granted = min(requested, Remaining(held, ceiling))
	switch {
	case g.Granted == 0 && requested > 0:
		g.Outcome = OutOfStock
	case g.Granted < requested:
		g.Outcome = Reduced
	}
	return g
}

// Remaining returns the units still available for a product, never negative.
// With a nil ceiling it returns -1.
func Remaining(held int, ceiling *int) int {
	if ceiling == nil {
		return -1
	}
	return max(0, *ceiling-held)
}

// Ceiling is a helper for building optional ceilings
func Ceiling(n int) *int {
	return &n
}
