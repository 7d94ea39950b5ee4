// Package session wires one cart, checkout orchestrator and reconciler per
// browser session on top of a shared storage backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/event"
	"github.com/example/storefront/internal/infrastructure/storage"
	"github.com/example/storefront/internal/reconcile"
)

var ErrInvalidID = errors.New("invalid session id")

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// OrderAPI is the remote API surface used by checkout and reconciliation
type OrderAPI interface {
	checkout.PaymentAPI
	reconcile.OrderAPI
}

// Options configures the per-session components
type Options struct {
	HandoffTTL   time.Duration
	IntentMaxAge time.Duration
	Checkout     checkout.Options
	Reconcile    reconcile.Options
}

// OptionsFromConfig maps application config to session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		HandoffTTL:   cfg.Storage.HandoffTTL,
		IntentMaxAge: cfg.Checkout.IntentMaxAge,
		Checkout: checkout.Options{
			Currency:         cfg.Checkout.Currency,
			GatewayNameMax:   cfg.Checkout.GatewayNameMax,
			VerifyTimeout:    cfg.Checkout.VerifyTimeout,
			CODPaymentPrefix: cfg.Checkout.CODPaymentPrefix,
			StoreName:        cfg.App.Name,
		},
		Reconcile: reconcile.Options{
			Policy:     reconcile.PlaceholderPolicy{Prefixes: cfg.Reconcile.PlaceholderPaymentPrefixes},
			ClearGrace: cfg.Reconcile.ClearGrace,
			Timeout:    cfg.Reconcile.Timeout,
		},
	}
}

// Session is the state of one browser session
type Session struct {
	ID           string
	Cart         *cart.Store
	Checkout     *checkout.Orchestrator
	Confirmation *reconcile.Reconciler

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Manager creates sessions on first use and keeps them cached. Durable state
// lives in the storage backend under "session:<id>:", so an evicted session is
// rebuilt from storage on its next request.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	kv        storage.KV
	api       OrderAPI
	publisher event.Publisher
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

func NewManager(kv storage.KV, api OrderAPI, publisher event.Publisher, logger *zap.Logger, opts Options) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = event.Nop{}
	}
	return &Manager{
		sessions:  make(map[string]*Session),
		kv:        kv,
		api:       api,
		publisher: publisher,
		logger:    logger.Named("session"),
		opts:      opts,
		now:       time.Now,
	}
}

// NewID mints a session id
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id can be used as a session id
func ValidID(id string) bool {
	return validID.MatchString(id)
}

// Get returns the session for id, building and hydrating it on first use
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}

	if s, ok := m.cached(id); ok {
		return s, nil
	}

	// hydrate outside the lock
	built, err := m.build(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		// a concurrent request built it first; its cart is the live one
		s.touch(m.now())
		return s, nil
	}
	m.sessions[id] = built
	return built, nil
}

func (m *Manager) cached(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.touch(m.now())
	}
	return s, ok
}

func (m *Manager) build(ctx context.Context, id string) (*Session, error) {
	kv := storage.NewPrefixed(m.kv, "session:"+id+":")
	logger := m.logger.With(zap.String("session_id", id))

	c := cart.NewStore(kv, logger)
	if err := c.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load cart for session %s: %w", id, err)
	}

	handoff := reconcile.NewHandoff(kv, m.opts.HandoffTTL)
	pending := reconcile.NewPendingQueue(kv, logger)

	orch := checkout.NewOrchestrator(c, m.api, checkout.NewIntentStore(kv, m.opts.IntentMaxAge), handoff, pending, m.publisher, logger, m.opts.Checkout)

	ropts := m.opts.Reconcile
	ropts.SessionID = id
	ropts.Known = orch

	s := &Session{
		ID:           id,
		Cart:         c,
		Checkout:     orch,
		Confirmation: reconcile.NewReconciler(m.api, handoff, pending, c, m.publisher, logger, ropts),
		lastSeen:     m.now(),
	}
	logger.Debug("Session opened", zap.Int("cart_items", c.ItemCount()))
	return s, nil
}

// Len returns the number of cached sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Evict drops cached sessions idle for longer than maxIdle and returns how
// many were dropped. Sessions with a checkout in flight are kept.
func (m *Manager) Evict(maxIdle time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	n := 0
	for id, s := range m.sessions {
		if s.idleSince().After(cutoff) {
			continue
		}
		if a, ok := s.Checkout.Current(); ok && a.Busy() {
			continue
		}
		delete(m.sessions, id)
		n++
	}
	if n > 0 {
		m.logger.Debug("Evicted idle sessions", zap.Int("count", n))
	}
	return n
}

// RunEvictor evicts idle sessions every interval until ctx is done
func (m *Manager) RunEvictor(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Evict(maxIdle)
		}
	}
}
