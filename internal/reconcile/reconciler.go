// Package reconcile makes sure every settled checkout ends at a confirmation
// with a server-side order, or a durably queued local record when the server
// cannot be reached.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/event"
)

// OrderAPI is the part of the remote API reconciliation needs
type OrderAPI interface {
	GetOrderByPayment(ctx context.Context, paymentID string) (order.Order, error)
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
}

// OrderSource knows the order this session last checked out
type OrderSource interface {
	LastOrder() (order.Order, bool)
}

// CartClearer empties the cart once the confirmation has its data
type CartClearer interface {
	Clear(ctx context.Context) cart.Notice
}

type Outcome string

const (
	// OutcomeExisting means the server already had the order
	OutcomeExisting Outcome = "existing"
	// OutcomeCreated means a fallback order was created
	OutcomeCreated Outcome = "created"
	// OutcomeQueued means the order was stored locally as pending_sync
	OutcomeQueued Outcome = "queued"
	// OutcomeSkipped means there was nothing to reconcile
	OutcomeSkipped Outcome = "skipped"
)

// Result describes one reconciliation
type Result struct {
	Outcome Outcome
	Order   order.Order
	Reason  string
	Err     error
}

// View is what the confirmation screen renders. Verified is false when the
// order came from the client and matches nothing this session checked out.
type View struct {
	Order     order.Order `json:"order"`
	HasData   bool        `json:"hasData"`
	Recovered bool        `json:"recovered"`
	Verified  bool        `json:"verified"`
}

// Options holds reconciliation policy
type Options struct {
	Policy     PlaceholderPolicy
	ClearGrace time.Duration
	Timeout    time.Duration
	// SessionID tags the CartCleared events of this reconciler
	SessionID string
	// Known vouches for navigation data once the handoff is gone
	Known OrderSource
}

type Reconciler struct {
	api       OrderAPI
	handoff   *Handoff
	pending   *PendingQueue
	cart      CartClearer
	publisher event.Publisher
	logger    *zap.Logger
	opts      Options

	afterFunc func(d time.Duration, f func())
	goFunc    func(f func())
	now       func() time.Time
}

func NewReconciler(api OrderAPI, handoff *Handoff, pending *PendingQueue, cartClearer CartClearer, publisher event.Publisher, logger *zap.Logger, opts Options) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = event.Nop{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Reconciler{
		api:       api,
		handoff:   handoff,
		pending:   pending,
		cart:      cartClearer,
		publisher: publisher,
		logger:    logger.Named("reconcile"),
		opts:      opts,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		goFunc:    func(f func()) { go f() },
		now:       time.Now,
	}
}

// Open resolves the order data for the confirmation step and returns at once.
// nav is the data carried by navigation, nil after a reload. Navigation data
// is trusted only when it matches the handoff slot or the order this session
// last checked out; anything else is rendered unverified and never reconciled.
// Trusted data is reconciled in the background from the server-side copy, and
// the cart is cleared after the grace delay when the handoff was consumed.
func (r *Reconciler) Open(ctx context.Context, nav *order.Order) View {
	if nav == nil || nav.IsZero() {
		o, found, err := r.handoff.Take(ctx)
		if err != nil {
			r.logger.Warn("Failed to recover handoff", zap.Error(err))
			return View{}
		}
		if !found || o.IsZero() {
			return View{}
		}
		r.settle(ctx, o)
		return View{Order: o, HasData: true, Recovered: true, Verified: true}
	}

	view := View{Order: *nav, HasData: true}
	trusted, fromHandoff, ok := r.vouch(ctx, *nav)
	if !ok {
		r.logger.Warn("Unverified confirmation data",
			zap.String("order_id", nav.OrderID),
			zap.String("payment_id", nav.PaymentID))
		return view
	}
	view.Verified = true

	if !fromHandoff {
		// an earlier visit already consumed the handoff and scheduled the clear
		r.reconcileAsync(ctx, trusted)
		return view
	}
	if err := r.handoff.Discard(ctx); err != nil {
		r.logger.Warn("Failed to discard handoff", zap.Error(err))
	}
	r.settle(ctx, trusted)
	return view
}

// vouch finds the server-side copy of the claimed order
func (r *Reconciler) vouch(ctx context.Context, claimed order.Order) (order.Order, bool, bool) {
	held, found, err := r.handoff.Peek(ctx)
	if err != nil {
		r.logger.Warn("Failed to read handoff", zap.Error(err))
	}
	if err == nil && found && sameOrder(claimed, held) {
		return held, true, true
	}
	if r.opts.Known != nil {
		if last, ok := r.opts.Known.LastOrder(); ok && sameOrder(claimed, last) {
			return last, false, true
		}
	}
	return order.Order{}, false, false
}

// sameOrder reports whether claimed identifies known: same payment, same
// order id when one is claimed, and the same total to the minor unit.
func sameOrder(claimed, known order.Order) bool {
	if claimed.PaymentID == "" || claimed.PaymentID != known.PaymentID {
		return false
	}
	if claimed.OrderID != "" && claimed.OrderID != known.OrderID {
		return false
	}
	return math.Round(claimed.Total*100) == math.Round(known.Total*100)
}

func (r *Reconciler) settle(ctx context.Context, o order.Order) {
	r.reconcileAsync(ctx, o)
	r.scheduleClear(o)
}

func (r *Reconciler) reconcileAsync(ctx context.Context, o order.Order) {
	// request values such as the access token are kept, its cancellation is not
	bg := context.WithoutCancel(ctx)
	r.goFunc(func() {
		ctx, cancel := context.WithTimeout(bg, r.opts.Timeout)
		defer cancel()
		r.Reconcile(ctx, o)
	})
}

func (r *Reconciler) scheduleClear(o order.Order) {
	if r.cart == nil {
		return
	}
	r.afterFunc(r.opts.ClearGrace, func() {
		ctx := context.Background()
		r.cart.Clear(ctx)
		r.publish(ctx, event.TypeCartCleared, o.OrderID, event.CartCleared{
			SessionID: r.opts.SessionID,
			OrderID:   o.OrderID,
			ClearedAt: r.now().UTC(),
		})
	})
}

// Reconcile makes sure o exists server-side, creating a fallback order when the
// server does not know it and the data is genuine, and queues it locally otherwise.
func (r *Reconciler) Reconcile(ctx context.Context, o order.Order) Result {
	if o.OrderID == "" && o.PaymentID == "" {
		return Result{Outcome: OutcomeSkipped, Order: o, Reason: "no order or payment id"}
	}
	log := r.logger.With(zap.String("order_id", o.OrderID), zap.String("payment_id", o.PaymentID))

	if o.PaymentID == "" {
		return r.queue(ctx, o, "missing payment id")
	}

	existing, err := r.api.GetOrderByPayment(ctx, o.PaymentID)
	switch {
	case err == nil:
		log.Debug("Order already exists")
		r.dequeue(ctx, o)
		return Result{Outcome: OutcomeExisting, Order: existing}

	case errors.Is(err, order.ErrOrderNotFound):
		if !o.HasIdentity() {
			return r.queue(ctx, o, "order not found and customer identity is incomplete")
		}
		if r.opts.Policy.IsPlaceholder(o.PaymentID) {
			return r.queue(ctx, o, "order not found for placeholder payment id")
		}

		fallback := o
		if fallback.OrderID == "" {
			fallback.OrderID = o.PaymentID
		}
		if fallback.Status == "" || fallback.Status == order.StatusPendingSync {
			fallback.Status = settledStatus(fallback)
		}
		created, err := r.api.CreateOrder(ctx, fallback)
		if err != nil {
			log.Warn("Fallback order creation failed", zap.Error(err))
			return r.queue(ctx, fallback, fmt.Sprintf("fallback order creation failed: %v", err))
		}
		log.Info("Created fallback order")
		r.dequeue(ctx, o)
		return Result{Outcome: OutcomeCreated, Order: created}

	default:
		log.Warn("Order lookup failed", zap.Error(err))
		return r.queue(ctx, o, fmt.Sprintf("order lookup failed: %v", err))
	}
}

// settledStatus is the status a recreated order takes: cash on delivery is
// still unpaid, a verified gateway payment is paid.
func settledStatus(o order.Order) order.Status {
	if o.PaymentMethod == string(payment.MethodCOD) {
		return order.StatusPending
	}
	return order.StatusPaid
}

// dequeue drops the local copy of an order the server now has
func (r *Reconciler) dequeue(ctx context.Context, o order.Order) {
	if err := r.pending.Remove(context.WithoutCancel(ctx), PendingID(o)); err != nil {
		r.logger.Warn("Failed to remove settled pending order", zap.String("order_id", o.OrderID), zap.Error(err))
	}
}

func (r *Reconciler) queue(ctx context.Context, o order.Order, reason string) Result {
	p := order.NewPending(o, r.now(), reason)
	res := Result{Outcome: OutcomeQueued, Order: p.Order, Reason: reason}

	// queuing must survive a cancelled reconcile context
	if err := r.pending.Put(context.WithoutCancel(ctx), p); err != nil {
		r.logger.Error("Failed to queue pending order",
			zap.String("order_id", o.OrderID),
			zap.String("payment_id", o.PaymentID),
			zap.Error(err))
		res.Err = err
		return res
	}

	r.logger.Info("Queued pending order",
		zap.String("order_id", o.OrderID),
		zap.String("payment_id", o.PaymentID),
		zap.String("reason", reason))
	r.publish(ctx, event.TypePendingOrderQueued, p.OrderID, order.Queued(p))
	return res
}

func (r *Reconciler) publish(ctx context.Context, eventType, aggregateID string, data any) {
	e, err := event.New(eventType, aggregateID, data)
	if err != nil {
		r.logger.Error("Failed to build event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	if err := r.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn("Failed to publish event", zap.String("event_type", eventType), zap.Error(err))
	}
}

// Pending exposes the queue for listing
func (r *Reconciler) Pending() *PendingQueue {
	return r.pending
}
