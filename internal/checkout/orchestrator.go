// Package checkout turns the payable cart subset and the customer form into an
// order, through either the payment gateway or cash on delivery.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/event"
	"github.com/example/storefront/internal/infrastructure/shopapi"
	"github.com/example/storefront/internal/reconcile"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrLoginRequired      = errors.New("login required to check out")
	ErrCheckoutInProgress = errors.New("a checkout is already in progress")
	ErrNoAttempt          = errors.New("no checkout attempt")
	ErrBuyNowRejected     = errors.New("item could not be added for buy now")
	ErrOrderPending       = errors.New("an earlier order for these items is still being confirmed")
)

// PaymentAPI is the part of the remote API checkout needs
type PaymentAPI interface {
	CreatePaymentOrder(ctx context.Context, req payment.CreateOrderRequest) (payment.CreateOrderResponse, error)
	VerifyPayment(ctx context.Context, req payment.VerifyRequest) (payment.VerifyResponse, error)
	CancelPayment(ctx context.Context, req payment.CancelRequest) error
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
}

// Cart is the cart surface checkout reads and selects on
type Cart interface {
	AddItem(ctx context.Context, p cart.Product, quantity int) cart.Notice
	SetSelected(ctx context.Context, uids []string)
	Payable() []cart.LineItem
	IsEmpty() bool
}

// Identity is the authenticated customer; nil means anonymous
type Identity struct {
	UserID string
	Email  string
}

// Options holds checkout policy
type Options struct {
	Currency         string
	GatewayNameMax   int
	VerifyTimeout    time.Duration
	CODPaymentPrefix string
	StoreName        string
}

// Orchestrator drives the checkout attempts of one session. At most one
// attempt is in flight; network calls run without holding the lock.
type Orchestrator struct {
	mu      sync.Mutex
	attempt *Attempt
	// quote is the snapshot last shown by Begin; Submit charges only that
	quote *Snapshot

	cart      Cart
	api       PaymentAPI
	intents   *IntentStore
	handoff   *reconcile.Handoff
	pending   *reconcile.PendingQueue
	publisher event.Publisher
	logger    *zap.Logger
	opts      Options

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(c Cart, api PaymentAPI, intents *IntentStore, handoff *reconcile.Handoff, pending *reconcile.PendingQueue, publisher event.Publisher, logger *zap.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = event.Nop{}
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.GatewayNameMax <= 0 {
		opts.GatewayNameMax = 50
	}
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = 30 * time.Second
	}
	if opts.CODPaymentPrefix == "" {
		opts.CODPaymentPrefix = "COD_"
	}
	return &Orchestrator{
		cart:      c,
		api:       api,
		intents:   intents,
		handoff:   handoff,
		pending:   pending,
		publisher: publisher,
		logger:    logger.Named("checkout"),
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Begin checks the entry preconditions and returns the current payable subset.
// An anonymous customer gets a resumable intent stored and ErrLoginRequired.
func (o *Orchestrator) Begin(ctx context.Context, id *Identity) (Snapshot, error) {
	if o.cart.IsEmpty() {
		return Snapshot{}, ErrEmptyCart
	}
	if id == nil {
		o.saveIntent(ctx, Intent{Type: IntentCheckout, RedirectTo: "/checkout"})
		return Snapshot{}, ErrLoginRequired
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	snap := NewSnapshot(o.cart.Payable())
	o.quote = &snap
	return snap, nil
}

// BuyNow adds one product and makes it the only selected line, then behaves like Begin
func (o *Orchestrator) BuyNow(ctx context.Context, id *Identity, p cart.Product, quantity int) (Snapshot, cart.Notice, error) {
	n := o.cart.AddItem(ctx, p, quantity)
	if n.Kind == cart.KindError || n.Code == cart.CodeOutOfStock {
		return Snapshot{}, n, fmt.Errorf("%w: %s", ErrBuyNowRejected, n.Message)
	}

	uid := cart.UID(p.ID, p.SelectedColor, p.SelectedSize)
	o.cart.SetSelected(ctx, []string{uid})

	if id == nil {
		o.saveIntent(ctx, Intent{Type: IntentBuyNow, RedirectTo: "/checkout", UIDs: []string{uid}})
		return Snapshot{}, n, ErrLoginRequired
	}
	snap, err := o.Begin(ctx, id)
	return snap, n, err
}

// ResumeIntent consumes the stored intent after login and restores its selection
func (o *Orchestrator) ResumeIntent(ctx context.Context, id *Identity) (Intent, bool, error) {
	if id == nil {
		return Intent{}, false, ErrLoginRequired
	}
	in, found, err := o.intents.Consume(ctx)
	if err != nil {
		o.logger.Warn("Discarding unreadable intent", zap.Error(err))
		return Intent{}, false, nil
	}
	if !found {
		return Intent{}, false, nil
	}
	if in.Type == IntentBuyNow {
		o.cart.SetSelected(ctx, in.UIDs)
	}
	return in, true, nil
}

func (o *Orchestrator) saveIntent(ctx context.Context, in Intent) {
	if err := o.intents.Save(ctx, in); err != nil {
		o.logger.Error("Failed to save checkout intent", zap.Error(err))
	}
}

// Current returns a copy of the latest attempt
func (o *Orchestrator) Current() (Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil {
		return Attempt{}, false
	}
	return o.attempt.clone(), true
}

// Submit starts a new attempt. Form and item problems end in FAILED with a
// reason and a nil error; the returned error is reserved for preconditions.
func (o *Orchestrator) Submit(ctx context.Context, id *Identity, d Draft) (Attempt, error) {
	o.mu.Lock()
	if o.attempt != nil && o.attempt.Busy() {
		o.mu.Unlock()
		return Attempt{}, ErrCheckoutInProgress
	}
	if id == nil {
		o.mu.Unlock()
		o.saveIntent(ctx, Intent{Type: IntentCheckout, RedirectTo: "/checkout"})
		return Attempt{}, ErrLoginRequired
	}

	snap := NewSnapshot(o.cart.Payable())
	if snap.IsEmpty() {
		o.mu.Unlock()
		return Attempt{}, ErrEmptyCart
	}

	if o.unsettledLocked(ctx, snap) {
		o.mu.Unlock()
		return Attempt{}, ErrOrderPending
	}

	a := newAttempt(o.newID())
	a.Draft = d.Normalize()
	a.Method = a.Draft.Method
	a.Snapshot = snap
	o.attempt = a
	_ = a.transition(StateValidating, o.now())

	if o.quoteChangedLocked(a.Draft, snap) {
		o.quote = &snap
		o.failLocked(ctx, a, "Your cart changed since you opened checkout. Please review the new total and try again.")
		return o.unlockWith(a)
	}

	if err := a.Draft.Validate(); err != nil {
		o.failLocked(ctx, a, userMessage(err))
		return o.unlockWith(a)
	}
	if err := snap.Validate(); err != nil {
		o.failLocked(ctx, a, userMessage(err))
		return o.unlockWith(a)
	}

	if a.Method == payment.MethodCOD {
		_ = a.transition(StateCODSubmitting, o.now())
		o.mu.Unlock()
		return o.submitCOD(ctx, a)
	}
	_ = a.transition(StateOnlinePending, o.now())
	o.mu.Unlock()
	return o.openGateway(ctx, a)
}

// quoteChangedLocked reports whether snap differs from what the customer was
// shown, either by Begin or by the amount echoed back in the draft.
func (o *Orchestrator) quoteChangedLocked(d Draft, snap Snapshot) bool {
	if d.AmountMinor != 0 && d.AmountMinor != snap.AmountMinor {
		return true
	}
	return o.quote != nil && !o.quote.Matches(snap)
}

// unsettledLocked reports whether the previous attempt for the same lines
// ended with an unknown outcome whose order is still queued
func (o *Orchestrator) unsettledLocked(ctx context.Context, snap Snapshot) bool {
	prev := o.attempt
	if prev == nil || prev.State != StateFailed || prev.Order == nil || !prev.Snapshot.Matches(snap) {
		return false
	}
	_, found, err := o.pending.Get(ctx, reconcile.PendingID(*prev.Order))
	if err != nil {
		o.logger.Warn("Failed to look up pending order", zap.String("order_id", prev.Order.OrderID), zap.Error(err))
		return true
	}
	return found
}

func (o *Orchestrator) submitCOD(ctx context.Context, a *Attempt) (Attempt, error) {
	orderID := NewOrderID(o.now())
	rec := order.Order{
		OrderID:       orderID,
		PaymentID:     o.opts.CODPaymentPrefix + orderID,
		Total:         a.Snapshot.Total.InexactFloat64(),
		Items:         a.Snapshot.RecordItems(),
		Customer:      a.Draft.Customer(),
		PaymentMethod: string(payment.MethodCOD),
		Status:        order.StatusPending,
	}

	created, err := o.api.CreateOrder(ctx, rec)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case errors.Is(err, shopapi.ErrUnavailable):
		o.logger.Error("COD order creation did not complete", zap.String("order_id", orderID), zap.Error(err))
		o.failLocked(ctx, a, "We could not reach the store. Your order has been saved and will be confirmed shortly.")
		a.Order = o.queuePending(ctx, rec, fmt.Sprintf("order creation did not complete: %v", err))
		o.handOff(ctx, *a.Order)
		return a.clone(), nil
	case err != nil:
		o.logger.Warn("COD order creation failed", zap.String("order_id", orderID), zap.Error(err))
		o.failLocked(ctx, a, "We could not place your order. Please try again.")
		return a.clone(), nil
	}
	if created.OrderID == "" {
		created = rec
	}
	o.succeedLocked(ctx, a, created)
	return a.clone(), nil
}

func (o *Orchestrator) openGateway(ctx context.Context, a *Attempt) (Attempt, error) {
	req := payment.CreateOrderRequest{
		Amount:       a.Snapshot.AmountMinor,
		Currency:     o.opts.Currency,
		Receipt:      NewReceipt(),
		CustomerInfo: payment.CustomerInfoFrom(a.Draft.Customer()),
		Items:        a.Snapshot.GatewayItems(o.opts.GatewayNameMax),
		OrderItems:   a.Snapshot.RecordItems(),
	}

	resp, err := o.api.CreatePaymentOrder(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case err != nil:
		o.logger.Warn("Payment order creation failed", zap.String("attempt_id", a.ID), zap.Error(err))
		o.failLocked(ctx, a, "Could not start the payment. Please try again.")
		return a.clone(), nil
	case resp.Order.Amount != req.Amount:
		o.logger.Error("Gateway amount mismatch",
			zap.String("attempt_id", a.ID),
			zap.Int64("expected", req.Amount),
			zap.Int64("got", resp.Order.Amount))
		o.failLocked(ctx, a, "The payment amount did not match your order. Please try again.")
		return a.clone(), nil
	}

	a.Gateway = &GatewaySession{
		Key:         resp.Key,
		OrderID:     resp.Order.ID,
		Amount:      resp.Order.Amount,
		Currency:    firstNonEmpty(resp.Order.Currency, req.Currency),
		Description: fmt.Sprintf("%s order (%d items)", firstNonEmpty(o.opts.StoreName, "Storefront"), a.Snapshot.ItemCount),
		Name:        a.Draft.Name,
		Email:       a.Draft.Email,
		Phone:       a.Draft.Phone,
	}
	_ = a.transition(StateGatewayOpen, o.now())
	return a.clone(), nil
}

// CompleteGateway handles the success callback of the gateway widget and
// verifies the signature with the server, bounded by VerifyTimeout.
func (o *Orchestrator) CompleteGateway(ctx context.Context, cb payment.Callback) (Attempt, error) {
	o.mu.Lock()
	a := o.attempt
	if a == nil {
		o.mu.Unlock()
		return Attempt{}, ErrNoAttempt
	}
	if a.State != StateGatewayOpen {
		defer o.mu.Unlock()
		return a.clone(), fmt.Errorf("%w: gateway callback in state %s", ErrInvalidTransition, a.State)
	}
	if err := cb.Validate(); err != nil {
		o.failLocked(ctx, a, "The payment response was incomplete. You have not been charged by us; please try again.")
		return o.unlockWith(a)
	}
	if cb.GatewayOrderID != a.Gateway.OrderID {
		o.failLocked(ctx, a, "The payment response did not match this checkout. Please try again.")
		return o.unlockWith(a)
	}
	_ = a.transition(StateVerifying, o.now())
	o.mu.Unlock()

	req := payment.VerifyRequest{
		Callback:     cb,
		CustomerInfo: payment.CustomerInfoFrom(a.Draft.Customer()),
		Items:        a.Snapshot.RecordItems(),
		Amount:       a.Snapshot.Total.InexactFloat64(),
	}

	// verification outlives a disconnected client but never the timeout
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.VerifyTimeout)
	defer cancel()
	resp, err := o.api.VerifyPayment(vctx, req)

	rec := order.Order{
		OrderID:       firstNonEmpty(resp.OrderID, cb.GatewayOrderID),
		PaymentID:     cb.GatewayPaymentID,
		Total:         req.Amount,
		Items:         req.Items,
		Customer:      a.Draft.Customer(),
		PaymentMethod: string(payment.MethodOnline),
		Status:        order.StatusPaid,
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err == nil {
		o.succeedLocked(ctx, a, rec)
		return a.clone(), nil
	}

	if errors.Is(err, shopapi.ErrRequestFailed) {
		o.logger.Warn("Payment verification rejected", zap.String("payment_id", cb.GatewayPaymentID), zap.Error(err))
		o.failLocked(ctx, a, "Payment verification failed. If money was deducted it will be refunded.")
		return a.clone(), nil
	}

	// the outcome is unknown: the payment may have been captured
	o.logger.Error("Payment verification did not complete",
		zap.String("payment_id", cb.GatewayPaymentID),
		zap.Error(err))
	o.failLocked(ctx, a, "We could not confirm your payment yet. Your order has been saved and will be confirmed shortly.")
	a.Order = o.queuePending(ctx, rec, fmt.Sprintf("verification did not complete: %v", err))
	o.handOff(ctx, *a.Order)
	return a.clone(), nil
}

// DismissGateway handles the user closing the gateway widget. The attempt
// fails silently and the gateway order is cancelled on a best-effort basis.
func (o *Orchestrator) DismissGateway(ctx context.Context) (Attempt, error) {
	o.mu.Lock()
	a := o.attempt
	if a == nil {
		o.mu.Unlock()
		return Attempt{}, ErrNoAttempt
	}
	if a.State != StateGatewayOpen {
		defer o.mu.Unlock()
		return a.clone(), fmt.Errorf("%w: dismiss in state %s", ErrInvalidTransition, a.State)
	}
	a.Silent = true
	o.failLocked(ctx, a, "Payment cancelled")
	gatewayOrderID := a.Gateway.OrderID
	out := a.clone()
	o.mu.Unlock()

	if err := o.api.CancelPayment(ctx, payment.CancelRequest{GatewayOrderID: gatewayOrderID, Reason: "dismissed"}); err != nil {
		o.logger.Debug("Cancel payment failed", zap.String("gateway_order_id", gatewayOrderID), zap.Error(err))
	}
	return out, nil
}

func (o *Orchestrator) unlockWith(a *Attempt) (Attempt, error) {
	defer o.mu.Unlock()
	return a.clone(), nil
}

// failLocked moves a to FAILED; the caller holds o.mu
func (o *Orchestrator) failLocked(ctx context.Context, a *Attempt, reason string) {
	if err := a.fail(reason, o.now()); err != nil {
		o.logger.Error("Failed to fail checkout attempt", zap.String("attempt_id", a.ID), zap.Error(err))
		return
	}
	o.publish(ctx, event.TypeCheckoutFailed, a.ID, event.CheckoutFailed{
		AttemptID: a.ID,
		Method:    string(a.Method),
		State:     string(a.History[len(a.History)-1].From),
		Reason:    reason,
		FailedAt:  o.now().UTC(),
	})
}

// succeedLocked moves a to SUCCEEDED and hands the order to the confirmation step
func (o *Orchestrator) succeedLocked(ctx context.Context, a *Attempt, rec order.Order) {
	if err := a.transition(StateSucceeded, o.now()); err != nil {
		o.logger.Error("Failed to complete checkout attempt", zap.String("attempt_id", a.ID), zap.Error(err))
		return
	}
	a.Order = &rec
	a.Reason = ""
	o.quote = nil

	o.handOff(ctx, rec)
	o.logger.Info("Checkout succeeded",
		zap.String("order_id", rec.OrderID),
		zap.String("payment_id", rec.PaymentID),
		zap.String("method", rec.PaymentMethod))
	o.publish(ctx, event.TypeOrderConfirmed, rec.OrderID, order.Confirmed(rec, o.now()))
}

func (o *Orchestrator) handOff(ctx context.Context, rec order.Order) {
	if err := o.handoff.Put(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Error("Failed to write order handoff", zap.String("order_id", rec.OrderID), zap.Error(err))
	}
}

// LastOrder returns the order of the latest attempt, settled or queued
func (o *Orchestrator) LastOrder() (order.Order, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt == nil || o.attempt.Order == nil {
		return order.Order{}, false
	}
	return *o.attempt.Order, true
}

// queuePending stores rec for a later sync and returns the locally known order
func (o *Orchestrator) queuePending(ctx context.Context, rec order.Order, reason string) *order.Order {
	p := order.NewPending(rec, o.now(), reason)
	if err := o.pending.Put(context.WithoutCancel(ctx), p); err != nil {
		o.logger.Error("Failed to queue pending order", zap.String("order_id", rec.OrderID), zap.Error(err))
	} else {
		o.publish(ctx, event.TypePendingOrderQueued, rec.OrderID, order.Queued(p))
	}
	return &p.Order
}

func (o *Orchestrator) publish(ctx context.Context, eventType, aggregateID string, data any) {
	e, err := event.New(eventType, aggregateID, data)
	if err != nil {
		o.logger.Error("Failed to build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// NewOrderID mints a client-side order id: ORD-<unix-ms>-<8 hex>
func NewOrderID(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), shortHex())
}

// NewReceipt mints a gateway receipt reference
func NewReceipt() string {
	return "rcpt_" + shortHex()
}

func shortHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func userMessage(err error) string {
	msg := err.Error()
	if msg == "" {
		return "Something went wrong. Please try again."
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
