package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
)

const (
	loginPath         = "/login"
	cartPath          = "/cart"
	pendingOrdersPath = "/pending-orders"
)

// Checkout Handlers

// BeginCheckout returns the payable subset the checkout page displays
func (h *Handlers) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := s.Checkout.Begin(apiContext(r), identity(r))
	if err != nil {
		h.checkoutError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *Handlers) BuyNow(w http.ResponseWriter, r *http.Request) {
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

	snap, n, err := s.Checkout.BuyNow(apiContext(r), identity(r), req.Product, req.Quantity)
	if err != nil {
		h.checkoutError(w, err, &n)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"snapshot": snap, "notice": n})
}

// ResumeCheckout consumes the intent stored before login
func (h *Handlers) ResumeCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	in, found, err := s.Checkout.ResumeIntent(apiContext(r), identity(r))
	if err != nil {
		h.checkoutError(w, err, nil)
		return
	}
	if !found {
		respondJSON(w, http.StatusOK, map[string]any{"resumed": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"resumed": true, "intent": in})
}

func (h *Handlers) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var draft checkout.Draft
	if !decodeBody(w, r, &draft) {
		return
	}

	a, err := s.Checkout.Submit(apiContext(r), identity(r), draft)
	if err != nil {
		h.checkoutError(w, err, nil)
		return
	}
	respondJSON(w, attemptStatus(a), a)
}

func (h *Handlers) GatewayCallback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var cb payment.Callback
	if !decodeBody(w, r, &cb) {
		return
	}

	a, err := s.Checkout.CompleteGateway(apiContext(r), cb)
	if err != nil {
		h.checkoutError(w, err, nil)
		return
	}
	respondJSON(w, attemptStatus(a), a)
}

func (h *Handlers) GatewayDismiss(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	a, err := s.Checkout.DismissGateway(apiContext(r))
	if err != nil {
		h.checkoutError(w, err, nil)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (h *Handlers) GetAttempt(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	a, found := s.Checkout.Current()
	if !found {
		respondError(w, "no checkout attempt", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// Confirmation Handlers

// Confirmation renders the confirmation step. POST carries the order from
// navigation; GET is a reload and recovers it from the handoff slot.
func (h *Handlers) Confirmation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var nav *order.Order
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			respondError(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if len(body) > 0 {
			o, err := order.Decode(body)
			if err != nil {
				respondError(w, err.Error(), http.StatusBadRequest)
				return
			}
			nav = &o
		}
	}

	view := s.Confirmation.Open(apiContext(r), nav)
	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) GetPendingOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	list, err := s.Confirmation.Pending().List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list pending orders", zap.String("session_id", s.ID), zap.Error(err))
		respondError(w, "failed to list pending orders", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []order.PendingOrder{}
	}
	respondJSON(w, http.StatusOK, list)
}

// attemptStatus maps an attempt to the response code; a failed attempt is a
// normal outcome the UI renders, so only its shape differs.
func attemptStatus(a checkout.Attempt) int {
	if a.State == checkout.StateFailed {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

func (h *Handlers) checkoutError(w http.ResponseWriter, err error, n *cart.Notice) {
	switch {
	case errors.Is(err, checkout.ErrLoginRequired):
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error(), "redirect": loginPath})
	case errors.Is(err, checkout.ErrEmptyCart):
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "redirect": cartPath})
	case errors.Is(err, checkout.ErrOrderPending):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "redirect": pendingOrdersPath})
	case errors.Is(err, checkout.ErrBuyNowRejected):
		body := map[string]any{"error": err.Error()}
		if n != nil && !n.IsZero() {
			body["notice"] = n
		}
		respondJSON(w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, checkout.ErrCheckoutInProgress),
		errors.Is(err, checkout.ErrInvalidTransition),
		errors.Is(err, checkout.ErrNoAttempt):
		respondError(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("Checkout request failed", zap.Error(err))
		respondError(w, "checkout failed", http.StatusInternalServerError)
	}
}
