package cart

// State is the cart contents plus the current multi-select subset.
// Items keep insertion order; Selected only ever holds uids present in Items.
type State struct {
	Items    []LineItem
	Selected map[string]struct{}
}

// NewState returns an empty cart
func NewState() State {
	return State{Selected: make(map[string]struct{})}
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := State{
		Items:    make([]LineItem, 0, len(s.Items)),
		Selected: make(map[string]struct{}, len(s.Selected)),
	}
	for _, it := range s.Items {
		out.Items = append(out.Items, it.clone())
	}
	for uid := range s.Selected {
		out.Selected[uid] = struct{}{}
	}
	return out
}

func (s State) index(uid string) int {
	for i, it := range s.Items {
		if it.UID == uid {
			return i
		}
	}
	return -1
}

// Has reports whether a line with uid exists
func (s State) Has(uid string) bool {
	return s.index(uid) >= 0
}

// Held returns the quantity of productID across all its variant lines, excluding exceptUID
func (s State) Held(productID, exceptUID string) int {
	held := 0
	for _, it := range s.Items {
		if it.ProductID == productID && it.UID != exceptUID {
			held += it.Quantity
		}
	}
	return held
}

// ceiling returns the stock ceiling recorded on any line of productID
func (s State) ceiling(productID string) *int {
	for _, it := range s.Items {
		if it.ProductID == productID && it.StockQuantity != nil {
			return it.StockQuantity
		}
	}
	return nil
}

// IsSelected reports whether uid is part of the selection
func (s State) IsSelected(uid string) bool {
	_, ok := s.Selected[uid]
	return ok
}

// SelectedIDs returns the selected uids in cart order
func (s State) SelectedIDs() []string {
	ids := make([]string, 0, len(s.Selected))
	for _, it := range s.Items {
		if s.IsSelected(it.UID) {
			ids = append(ids, it.UID)
		}
	}
	return ids
}

// SelectedItems returns the selected lines in cart order
func (s State) SelectedItems() []LineItem {
	items := make([]LineItem, 0, len(s.Selected))
	for _, it := range s.Items {
		if s.IsSelected(it.UID) {
			items = append(items, it.clone())
		}
	}
	return items
}

// Payable returns the selected lines, or the whole cart when nothing is selected
func (s State) Payable() []LineItem {
	if len(s.Selected) > 0 {
		return s.SelectedItems()
	}
	items := make([]LineItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, it.clone())
	}
	return items
}

func (s *State) remove(uid string) bool {
	i := s.index(uid)
	if i < 0 {
		return false
	}
	s.Items = append(s.Items[:i], s.Items[i+1:]...)
	delete(s.Selected, uid)
	return true
}

func (s *State) setCeiling(productID string, ceiling int) {
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			n := ceiling
			s.Items[i].StockQuantity = &n
		}
	}
}
