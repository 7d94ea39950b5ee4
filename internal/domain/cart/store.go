package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/infrastructure/storage"
)

// Notifier receives every non-empty notice produced by a mutation
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// LogNotifier writes notices to the log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notice) {
	fields := []zap.Field{
		zap.String("code", n.Code),
		zap.String("uid", n.UID),
		zap.Int("item_count", n.ItemCount),
	}
	switch n.Kind {
	case KindInfo:
		l.logger.Debug(n.Message, fields...)
	default:
		l.logger.Info(n.Message, fields...)
	}
}

// Store is the sole authority over one cart. Mutations are serialized and each
// one persists the item list before returning.
type Store struct {
	mu       sync.Mutex
	state    State
	kv       storage.KV
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithNotifier replaces the default log notifier
func WithNotifier(n Notifier) StoreOption {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithClock overrides the clock used for snapshot timestamps
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(kv storage.KV, logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		state:  NewState(),
		kv:     kv,
		logger: logger.Named("cart"),
		now:    time.Now,
	}
	s.notifier = NewLogNotifier(s.logger)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load hydrates the cart from durable storage. A missing key starts an empty
// cart; an unparseable payload is logged, deleted and also starts empty.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		s.mu.Lock()
		s.state = NewState()
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.logger.Error("Failed to read cart", zap.Error(err))
		return err
	}

	items, dropped, err := Decode(raw)
	if err != nil {
		s.logger.Warn("Discarding corrupt cart payload", zap.String("key", StorageKey), zap.Error(err))
		if delErr := s.kv.Delete(ctx, StorageKey); delErr != nil {
			s.logger.Error("Failed to delete corrupt cart", zap.Error(delErr))
		}
		items = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, n := Reduce(NewState(), Hydrate{Items: items})
	s.state = next
	if dropped > 0 || n.Code == CodeDroppedInvalid {
		s.logger.Warn("Dropped invalid cart entries during hydration",
			zap.Int("undecodable", dropped),
			zap.Int("kept", len(next.Items)))
		s.persist(ctx)
	}
	return nil
}

// Dispatch applies cmd, persists the items when they can change and forwards the
// resulting notice to the notifier.
func (s *Store) Dispatch(ctx context.Context, cmd Command) Notice {
	s.mu.Lock()
	next, n := Reduce(s.state, cmd)
	s.state = next
	if _, ok := cmd.(Clear); ok {
		s.clearStorage(ctx)
	} else if mutatesItems(cmd) {
		s.persist(ctx)
	}
	s.mu.Unlock()

	if !n.IsZero() {
		s.notifier.Notify(ctx, n)
	}
	return n
}

// persist writes the items; the caller holds s.mu. Failures are logged and the
// in-memory state stays authoritative.
func (s *Store) persist(ctx context.Context) {
	data, err := Encode(s.state.Items, s.now())
	if err != nil {
		s.logger.Error("Failed to encode cart", zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, StorageKey, data, 0); err != nil {
		s.logger.Error("Failed to persist cart", zap.Error(err))
	}
}

func (s *Store) clearStorage(ctx context.Context) {
	if err := s.kv.Delete(ctx, StorageKey); err != nil {
		s.logger.Error("Failed to clear persisted cart", zap.Error(err))
	}
}

func (s *Store) AddItem(ctx context.Context, p Product, quantity int) Notice {
	return s.Dispatch(ctx, AddItem{Product: p, Quantity: quantity})
}

func (s *Store) RemoveItem(ctx context.Context, uid string) Notice {
	return s.Dispatch(ctx, RemoveItem{UID: uid})
}

func (s *Store) UpdateQuantity(ctx context.Context, uid string, quantity int) Notice {
	return s.Dispatch(ctx, UpdateQuantity{UID: uid, Quantity: quantity})
}

func (s *Store) Clear(ctx context.Context) Notice {
	return s.Dispatch(ctx, Clear{})
}

func (s *Store) ToggleSelect(ctx context.Context, uid string) Notice {
	return s.Dispatch(ctx, ToggleSelect{UID: uid})
}

func (s *Store) SelectAll(ctx context.Context) {
	s.Dispatch(ctx, SelectAll{})
}

func (s *Store) DeselectAll(ctx context.Context) {
	s.Dispatch(ctx, DeselectAll{})
}

func (s *Store) SetSelected(ctx context.Context, uids []string) {
	s.Dispatch(ctx, SetSelected{UIDs: uids})
}

// Snapshot returns a deep copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Store) Items() []LineItem {
	return s.Snapshot().Items
}

func (s *Store) SelectedIDs() []string {
	return s.Snapshot().SelectedIDs()
}

func (s *Store) IsSelected(uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsSelected(uid)
}

func (s *Store) Total() decimal.Decimal {
	return Total(s.Snapshot().Items)
}

func (s *Store) ItemCount() int {
	return Count(s.Snapshot().Items)
}

func (s *Store) SelectedTotal() decimal.Decimal {
	return Total(s.Snapshot().SelectedItems())
}

func (s *Store) SelectedItemCount() int {
	return Count(s.Snapshot().SelectedItems())
}

// Payable returns the selected lines, or the whole cart when nothing is selected
func (s *Store) Payable() []LineItem {
	return s.Snapshot().Payable()
}

// IsEmpty reports whether the cart has no lines
func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.Items) == 0
}
