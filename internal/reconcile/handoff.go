package reconcile

import (
	"context"
	"time"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/infrastructure/storage"
)

// HandoffKey is the storage key of the confirmation handoff slot
const HandoffKey = "order_handoff"

// Handoff is a single-use recovery token carrying the order data to the
// confirmation step. Take consumes it so a later visit never sees stale data.
type Handoff struct {
	kv  storage.KV
	ttl time.Duration
}

func NewHandoff(kv storage.KV, ttl time.Duration) *Handoff {
	return &Handoff{kv: kv, ttl: ttl}
}

// Put writes the handoff slot, replacing any previous value
func (h *Handoff) Put(ctx context.Context, o order.Order) error {
	return storage.SetJSON(ctx, h.kv, HandoffKey, o, h.ttl)
}

// Take reads and deletes the handoff slot
func (h *Handoff) Take(ctx context.Context) (order.Order, bool, error) {
	return storage.TakeJSON[order.Order](ctx, h.kv, HandoffKey)
}

// Peek reads the handoff slot and leaves it in place
func (h *Handoff) Peek(ctx context.Context) (order.Order, bool, error) {
	return storage.GetJSON[order.Order](ctx, h.kv, HandoffKey)
}

// Discard deletes the handoff slot without reading it
func (h *Handoff) Discard(ctx context.Context) error {
	return h.kv.Delete(ctx, HandoffKey)
}
