package cart

import (
	"fmt"

	"github.com/example/storefront/internal/domain/stock"
)

// MaxLineQuantity caps the quantity of a single line, with or without a stock ceiling
const MaxLineQuantity = 999

// Reduce applies cmd to s and returns the new state together with the notice to
// surface. It is pure: s is never modified.
func Reduce(s State, cmd Command) (State, Notice) {
	next := s.Clone()

	var n Notice
	switch c := cmd.(type) {
	case AddItem:
		n = next.add(c)
	case RemoveItem:
		n = next.removeItem(c.UID)
	case UpdateQuantity:
		n = next.updateQuantity(c)
	case Clear:
		next = NewState()
		n = Notice{Kind: KindInfo, Code: CodeCleared, Message: "Cart cleared"}
	case ToggleSelect:
		if !next.Has(c.UID) {
			n = unknownItem(c.UID)
			break
		}
		if next.IsSelected(c.UID) {
			delete(next.Selected, c.UID)
		} else {
			next.Selected[c.UID] = struct{}{}
		}
	case SelectAll:
		for _, it := range next.Items {
			next.Selected[it.UID] = struct{}{}
		}
	case DeselectAll:
		next.Selected = make(map[string]struct{})
	case SetSelected:
		next.Selected = make(map[string]struct{}, len(c.UIDs))
		for _, uid := range c.UIDs {
			if next.Has(uid) {
				next.Selected[uid] = struct{}{}
			}
		}
	case Hydrate:
		next, n = hydrate(c.Items)
	default:
		return s, Notice{Kind: KindError, Code: "unknown_command", Message: fmt.Sprintf("unsupported command %T", cmd)}
	}

	if !n.IsZero() {
		n.ItemCount = Count(next.Items)
	}
	return next, n
}

func (s *State) add(c AddItem) Notice {
	p := c.Product
	if p.ID == "" {
		return Notice{Kind: KindError, Code: CodeInvalidProduct, Message: "This product cannot be added to the cart"}
	}
	if !ValidPrice(p.Price) {
		return Notice{
			Kind:    KindError,
			Code:    CodeInvalidPrice,
			Message: fmt.Sprintf("Invalid price for %s. Please try again later.", displayName(p.Name)),
		}
	}

	qty := c.Quantity
	if qty < 1 {
		qty = 1
	}
	if qty > MaxLineQuantity {
		return quantityLimit(KindError, "", p.Name, 0)
	}

	// a ceiling supplied with the product is the most recent one we know
	if p.StockQuantity != nil {
		s.setCeiling(p.ID, *p.StockQuantity)
	}
	ceiling := p.StockQuantity
	if ceiling == nil {
		ceiling = s.ceiling(p.ID)
	}

	uid := UID(p.ID, p.SelectedColor, p.SelectedSize)
	inLine := 0
	if i := s.index(uid); i >= 0 {
		inLine = s.Items[i].Quantity
	}
	room := MaxLineQuantity - inLine
	if room <= 0 {
		return quantityLimit(KindWarning, uid, p.Name, 0)
	}
	limited := qty > room
	qty = min(qty, room)

	g := stock.Clamp(qty, s.Held(p.ID, ""), ceiling)
	if g.Outcome == stock.OutOfStock {
		return Notice{
			Kind:    KindWarning,
			Code:    CodeOutOfStock,
			UID:     uid,
			Message: fmt.Sprintf("Sorry, %s is out of stock", displayName(p.Name)),
		}
	}

	if i := s.index(uid); i >= 0 {
		s.Items[i].Quantity += g.Granted
	} else {
		li := p.lineItem(g.Granted)
		if li.StockQuantity == nil && ceiling != nil {
			n := *ceiling
			li.StockQuantity = &n
		}
		s.Items = append(s.Items, li)
	}

	if g.Outcome == stock.Reduced {
		return Notice{
			Kind:    KindWarning,
			Code:    CodeReduced,
			UID:     uid,
			Granted: g.Granted,
			Message: fmt.Sprintf("Only %d more of %s could be added (stock limit %d)", g.Granted, displayName(p.Name), *ceiling),
		}
	}
	if limited {
		return quantityLimit(KindWarning, uid, p.Name, g.Granted)
	}
	return Notice{
		Kind:    KindInfo,
		Code:    CodeAdded,
		UID:     uid,
		Granted: g.Granted,
		Message: fmt.Sprintf("%s added to cart", displayName(p.Name)),
	}
}

func (s *State) removeItem(uid string) Notice {
	if !s.remove(uid) {
		return unknownItem(uid)
	}
	return Notice{Kind: KindInfo, Code: CodeRemoved, UID: uid, Message: "Item removed from cart"}
}

func (s *State) updateQuantity(c UpdateQuantity) Notice {
	i := s.index(c.UID)
	if i < 0 {
		return unknownItem(c.UID)
	}
	if c.Quantity <= 0 {
		return s.removeItem(c.UID)
	}

	line := s.Items[i]
	requested := min(c.Quantity, MaxLineQuantity)
	g := stock.Clamp(requested, s.Held(line.ProductID, line.UID), line.StockQuantity)
	switch g.Outcome {
	case stock.OutOfStock:
		s.remove(line.UID)
		return Notice{
			Kind:    KindWarning,
			Code:    CodeOutOfStock,
			UID:     line.UID,
			Message: fmt.Sprintf("Sorry, %s is out of stock", displayName(line.Name)),
		}
	case stock.Reduced:
		s.Items[i].Quantity = g.Granted
		return Notice{
			Kind:    KindWarning,
			Code:    CodeQuantityReduced,
			UID:     line.UID,
			Granted: g.Granted,
			Message: fmt.Sprintf("Only %d of %s available, quantity set to %d", g.Granted, displayName(line.Name), g.Granted),
		}
	}
	s.Items[i].Quantity = g.Granted
	if requested < c.Quantity {
		return quantityLimit(KindWarning, line.UID, line.Name, g.Granted)
	}
	return Notice{}
}

// hydrate rebuilds a state from persisted items. Entries with an invalid price,
// quantity or product are dropped; duplicates are merged and stock ceilings
// re-applied. Variant lines saved with different ceilings all take the lowest.
func hydrate(items []LineItem) (State, Notice) {
	next := NewState()
	dropped := 0
	ceilings := lowestCeilings(items)
	for _, it := range items {
		if it.ProductID == "" || !ValidPrice(it.Price) || it.Quantity < 1 {
			dropped++
			continue
		}
		it = it.clone()
		if it.UID == "" {
			it.UID = UID(it.ProductID, it.SelectedColor, it.SelectedSize)
		}

		ceiling := ceilings[it.ProductID]
		if ceiling != nil {
			n := *ceiling
			it.StockQuantity = &n
		}

		requested := it.Quantity
		i := next.index(it.UID)
		if i >= 0 {
			requested = min(requested, MaxLineQuantity-next.Items[i].Quantity)
		} else {
			requested = min(requested, MaxLineQuantity)
		}
		g := stock.Clamp(requested, next.Held(it.ProductID, ""), ceiling)
		if g.Granted == 0 {
			dropped++
			continue
		}

		if i >= 0 {
			next.Items[i].Quantity += g.Granted
			continue
		}
		it.Quantity = g.Granted
		next.Items = append(next.Items, it)
	}

	if dropped == 0 {
		return next, Notice{}
	}
	return next, Notice{
		Kind:    KindWarning,
		Code:    CodeDroppedInvalid,
		Message: fmt.Sprintf("%d saved cart item(s) could not be restored", dropped),
	}
}

// lowestCeilings returns the lowest stock ceiling stored for each product
func lowestCeilings(items []LineItem) map[string]*int {
	out := make(map[string]*int)
	for _, it := range items {
		if it.StockQuantity == nil {
			continue
		}
		if cur, ok := out[it.ProductID]; !ok || *it.StockQuantity < *cur {
			out[it.ProductID] = it.StockQuantity
		}
	}
	return out
}

func quantityLimit(kind NoticeKind, uid, name string, granted int) Notice {
	return Notice{
		Kind:    kind,
		Code:    CodeQuantityLimit,
		UID:     uid,
		Granted: granted,
		Message: fmt.Sprintf("At most %d of %s can be in the cart", MaxLineQuantity, displayName(name)),
	}
}

func unknownItem(uid string) Notice {
	return Notice{Kind: KindWarning, Code: CodeUnknownItem, UID: uid, Message: "Item is no longer in your cart"}
}

func displayName(name string) string {
	if name == "" {
		return "this item"
	}
	return name
}
