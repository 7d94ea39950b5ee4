package cart

// NoticeKind tells the UI how to surface a notice
type NoticeKind string

const (
	// KindInfo is a transient toast
	KindInfo NoticeKind = "info"
	// KindWarning must be acknowledged by the user
	KindWarning NoticeKind = "warning"
	KindError   NoticeKind = "error"
)

const (
	CodeAdded           = "added"
	CodeReduced         = "reduced"
	CodeOutOfStock      = "out_of_stock"
	CodeInvalidPrice    = "invalid_price"
	CodeInvalidProduct  = "invalid_product"
	CodeQuantityReduced = "quantity_reduced"
	CodeRemoved         = "removed"
	CodeCleared         = "cleared"
	CodeUnknownItem     = "unknown_item"
	CodeDroppedInvalid  = "dropped_invalid"
	CodeQuantityLimit   = "quantity_limit"
)

// Notice is the user-visible result of a cart mutation. The zero value means
// nothing needs to be shown.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	UID       string     `json:"uid,omitempty"`
	Granted   int        `json:"granted,omitempty"`
	ItemCount int        `json:"itemCount"`
}

// IsZero reports whether the notice is empty
func (n Notice) IsZero() bool {
	return n.Code == ""
}
