package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/infrastructure/shopapi"
	"github.com/example/storefront/internal/session"
)

const maxBodyBytes = 1 << 20

type Handlers struct {
	logger *zap.Logger
}

func NewHandlers(logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{logger: logger.Named("api")}
}

// cartView is the cart as rendered by the UI; all figures come from one snapshot
type cartView struct {
	Items             []cart.LineItem `json:"items"`
	SelectedIDs       []string        `json:"selectedIds"`
	Total             decimal.Decimal `json:"total"`
	ItemCount         int             `json:"itemCount"`
	SelectedTotal     decimal.Decimal `json:"selectedTotal"`
	SelectedItemCount int             `json:"selectedItemCount"`
	Notice            *cart.Notice    `json:"notice,omitempty"`
}

func newCartView(st cart.State, n cart.Notice) cartView {
	selected := st.SelectedItems()
	v := cartView{
		Items:             st.Items,
		SelectedIDs:       st.SelectedIDs(),
		Total:             cart.Total(st.Items),
		ItemCount:         cart.Count(st.Items),
		SelectedTotal:     cart.Total(selected),
		SelectedItemCount: cart.Count(selected),
	}
	if v.Items == nil {
		v.Items = []cart.LineItem{}
	}
	if !n.IsZero() {
		v.Notice = &n
	}
	return v
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, newCartView(s.Cart.Snapshot(), cart.Notice{}))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		cart.Product
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	n := s.Cart.AddItem(r.Context(), req.Product, req.Quantity)
	status := http.StatusOK
	if n.Kind == cart.KindError {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, newCartView(s.Cart.Snapshot(), n))
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	uid := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Quantity int `json:"quantity"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	n := s.Cart.UpdateQuantity(r.Context(), uid, req.Quantity)
	status := http.StatusOK
	if n.Code == cart.CodeUnknownItem {
		status = http.StatusNotFound
	}
	respondJSON(w, status, newCartView(s.Cart.Snapshot(), n))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	uid := extractPathParam(r.URL.Path, "/cart/items/")

	n := s.Cart.RemoveItem(r.Context(), uid)
	status := http.StatusOK
	if n.Code == cart.CodeUnknownItem {
		status = http.StatusNotFound
	}
	respondJSON(w, status, newCartView(s.Cart.Snapshot(), n))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	n := s.Cart.Clear(r.Context())
	respondJSON(w, http.StatusOK, newCartView(s.Cart.Snapshot(), n))
}

// UpdateSelection applies one of toggle, all, none or set to the selection
func (h *Handlers) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Action string   `json:"action"`
		UID    string   `json:"uid"`
		UIDs   []string `json:"uids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var n cart.Notice
	switch strings.ToLower(req.Action) {
	case "toggle":
		n = s.Cart.ToggleSelect(r.Context(), req.UID)
	case "all":
		s.Cart.SelectAll(r.Context())
	case "none":
		s.Cart.DeselectAll(r.Context())
	case "set":
		s.Cart.SetSelected(r.Context(), req.UIDs)
	default:
		respondError(w, "action must be one of toggle, all, none, set", http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, newCartView(s.Cart.Snapshot(), n))
}

// Helper functions

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := middleware.GetSession(r.Context())
	if err != nil {
		h.logger.Error("Request without session", zap.String("path", r.URL.Path))
		respondError(w, "session unavailable", http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}

// identity returns the authenticated customer, or nil for an anonymous request
func identity(r *http.Request) *checkout.Identity {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		return nil
	}
	return &checkout.Identity{UserID: claims.UserID, Email: claims.Email}
}

// apiContext forwards the customer's token to the remote API
func apiContext(r *http.Request) context.Context {
	ctx := r.Context()
	if token := middleware.GetToken(ctx); token != "" {
		ctx = shopapi.WithAccessToken(ctx, token)
	}
	return ctx
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			respondError(w, "request body is empty", http.StatusBadRequest)
			return false
		}
		respondError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
