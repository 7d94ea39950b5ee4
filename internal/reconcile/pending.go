package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/domain/order"
	"github.com/example/storefront/internal/infrastructure/storage"
)

// PendingPrefix prefixes the storage keys of queued orders
const PendingPrefix = "pending_order:"

var ErrMissingOrderID = errors.New("pending order needs an order or payment id")

// PendingQueue durably stores orders that could not be created remotely.
// Entries are keyed by order id and always overwritten in full.
type PendingQueue struct {
	kv     storage.KV
	logger *zap.Logger
}

func NewPendingQueue(kv storage.KV, logger *zap.Logger) *PendingQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PendingQueue{kv: kv, logger: logger}
}

func pendingKey(id string) string {
	return PendingPrefix + id
}

// PendingID is the queue id of o: its order id, else its payment id
func PendingID(o order.Order) string {
	if o.OrderID != "" {
		return o.OrderID
	}
	return o.PaymentID
}

// Put stores p, replacing any queued entry with the same id
func (q *PendingQueue) Put(ctx context.Context, p order.PendingOrder) error {
	id := PendingID(p.Order)
	if id == "" {
		return ErrMissingOrderID
	}
	p.Status = order.StatusPendingSync
	if err := storage.SetJSON(ctx, q.kv, pendingKey(id), p, 0); err != nil {
		return fmt.Errorf("failed to queue pending order %s: %w", id, err)
	}
	return nil
}

func (q *PendingQueue) Get(ctx context.Context, id string) (order.PendingOrder, bool, error) {
	return storage.GetJSON[order.PendingOrder](ctx, q.kv, pendingKey(id))
}

// List returns every queued order, oldest first. Unreadable entries are skipped.
func (q *PendingQueue) List(ctx context.Context) ([]order.PendingOrder, error) {
	keys, err := q.kv.Keys(ctx, PendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}

	out := make([]order.PendingOrder, 0, len(keys))
	for _, key := range keys {
		p, found, err := storage.GetJSON[order.PendingOrder](ctx, q.kv, key)
		if err != nil {
			q.logger.Warn("Skipping unreadable pending order", zap.String("key", key), zap.Error(err))
			continue
		}
		if found {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (q *PendingQueue) Remove(ctx context.Context, id string) error {
	return q.kv.Delete(ctx, pendingKey(id))
}
