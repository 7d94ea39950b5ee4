package cart

// Command is a cart mutation handled by Reduce
type Command interface {
	isCommand()
}

// AddItem adds quantity of a product, merging with the line of the same uid
type AddItem struct {
	Product  Product
	Quantity int
}

// RemoveItem deletes a line and drops it from the selection
type RemoveItem struct {
	UID string
}

// UpdateQuantity sets the quantity of a line; zero or less removes it
type UpdateQuantity struct {
	UID      string
	Quantity int
}

// Clear empties items and selection
type Clear struct{}

// ToggleSelect flips selection of one line
type ToggleSelect struct {
	UID string
}

// SelectAll selects every line
type SelectAll struct{}

// DeselectAll empties the selection
type DeselectAll struct{}

// SetSelected replaces the selection; uids not in the cart are dropped
type SetSelected struct {
	UIDs []string
}

// Hydrate replaces the cart with previously persisted items
type Hydrate struct {
	Items []LineItem
}

func (AddItem) isCommand()        {}
func (RemoveItem) isCommand()     {}
func (UpdateQuantity) isCommand() {}
func (Clear) isCommand()          {}
func (ToggleSelect) isCommand()   {}
func (SelectAll) isCommand()      {}
func (DeselectAll) isCommand()    {}
func (SetSelected) isCommand()    {}
func (Hydrate) isCommand()        {}

// mutatesItems reports whether cmd can change the persisted item list
func mutatesItems(cmd Command) bool {
	switch cmd.(type) {
	case AddItem, RemoveItem, UpdateQuantity, Clear:
		return true
	}
	return false
}
