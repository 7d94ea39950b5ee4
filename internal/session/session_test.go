package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/domain/cart"
	"github.com/example/storefront/internal/domain/payment"
	"github.com/example/storefront/internal/infrastructure/mocks"
	"github.com/example/storefront/internal/infrastructure/storage"
	"github.com/example/storefront/internal/reconcile"
)

const (
	sidA = "session-aaaa-0001"
	sidB = "session-bbbb-0002"
)

func testOptions() Options {
	return Options{
		HandoffTTL:   time.Minute,
		IntentMaxAge: time.Minute,
		Checkout:     checkout.Options{Currency: "INR", GatewayNameMax: 50, VerifyTimeout: time.Second, CODPaymentPrefix: "COD_"},
		Reconcile:    reconcile.Options{ClearGrace: time.Millisecond, Timeout: time.Second},
	}
}

func newTestManager() (*Manager, *storage.Memory, *mocks.MockOrderAPI) {
	kv := storage.NewMemory()
	api := mocks.NewMockOrderAPI()
	return NewManager(kv, api, mocks.NewMockPublisher(), nil, testOptions()), kv, api
}

func addMug(t *testing.T, s *Session) {
	t.Helper()
	n := s.Cart.AddItem(context.Background(), cart.Product{ID: "mug", Name: "Mug", Price: 250}, 1)
	require.Equal(t, cart.CodeAdded, n.Code)
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{NewID(), true},
		{sidA, true},
		{"", false},
		{"short", false},
		{"has:colon-in-it", false},
		{"../../etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidID(tt.id))
		})
	}
}

func TestManager_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("caches sessions", func(t *testing.T) {
		m, _, _ := newTestManager()
		s1, err := m.Get(ctx, sidA)
		require.NoError(t, err)
		s2, err := m.Get(ctx, sidA)
		require.NoError(t, err)

		assert.Same(t, s1, s2)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("rejects invalid ids", func(t *testing.T) {
		m, _, _ := newTestManager()
		_, err := m.Get(ctx, "bad id")
		assert.ErrorIs(t, err, ErrInvalidID)
	})

	t.Run("sessions are isolated in storage", func(t *testing.T) {
		m, kv, _ := newTestManager()
		a, err := m.Get(ctx, sidA)
		require.NoError(t, err)
		b, err := m.Get(ctx, sidB)
		require.NoError(t, err)

		addMug(t, a)

		assert.Equal(t, 1, a.Cart.ItemCount())
		assert.True(t, b.Cart.IsEmpty())

		keys, err := kv.Keys(ctx, "session:")
		require.NoError(t, err)
		assert.Equal(t, []string{"session:" + sidA + ":cart"}, keys)
	})

	t.Run("evicted session is rebuilt from storage", func(t *testing.T) {
		m, _, _ := newTestManager()
		s, err := m.Get(ctx, sidA)
		require.NoError(t, err)
		addMug(t, s)

		m.now = func() time.Time { return time.Now().Add(time.Hour) }
		assert.Equal(t, 1, m.Evict(time.Minute))
		assert.Equal(t, 0, m.Len())

		again, err := m.Get(ctx, sidA)
		require.NoError(t, err)
		assert.NotSame(t, s, again)
		assert.Equal(t, 1, again.Cart.ItemCount())
	})
}

// slowKV holds reads under one key prefix until release is closed
type slowKV struct {
	storage.KV
	prefix  string
	release chan struct{}
}

func (k *slowKV) Get(ctx context.Context, key string) ([]byte, error) {
	if strings.HasPrefix(key, k.prefix) {
		<-k.release
	}
	return k.KV.Get(ctx, key)
}

func TestManager_GetConcurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("a slow hydration does not block other sessions", func(t *testing.T) {
		kv := &slowKV{KV: storage.NewMemory(), prefix: "session:" + sidA, release: make(chan struct{})}
		m := NewManager(kv, mocks.NewMockOrderAPI(), nil, nil, testOptions())

		done := make(chan *Session)
		go func() {
			s, _ := m.Get(ctx, sidA)
			done <- s
		}()

		other := make(chan error, 1)
		go func() {
			_, err := m.Get(ctx, sidB)
			other <- err
		}()
		select {
		case err := <-other:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("session B waited on the hydration of session A")
		}

		close(kv.release)
		assert.NotNil(t, <-done)
		assert.Equal(t, 2, m.Len())
	})

	t.Run("concurrent first use yields one session", func(t *testing.T) {
		m, _, _ := newTestManager()

		const n = 16
		got := make([]*Session, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := m.Get(ctx, sidA)
				assert.NoError(t, err)
				got[i] = s
			}(i)
		}
		wg.Wait()

		for _, s := range got {
			assert.Same(t, got[0], s)
		}
		assert.Equal(t, 1, m.Len())
	})
}

func TestManager_EvictKeepsCheckoutInFlight(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()

	busy, err := m.Get(ctx, sidA)
	require.NoError(t, err)
	addMug(t, busy)
	d := checkout.Draft{Name: "Meera", Email: "meera@example.com", Phone: "98", Address: "4 Park St", Method: payment.MethodOnline}
	a, err := busy.Checkout.Submit(ctx, &checkout.Identity{UserID: "u1"}, d)
	require.NoError(t, err)
	require.Equal(t, checkout.StateGatewayOpen, a.State)

	_, err = m.Get(ctx, sidB)
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, m.Evict(time.Minute))
	assert.Equal(t, 1, m.Len())
}

func TestSession_CODCheckoutToConfirmation(t *testing.T) {
	ctx := context.Background()
	m, _, api := newTestManager()

	s, err := m.Get(ctx, sidA)
	require.NoError(t, err)
	addMug(t, s)

	d := checkout.Draft{Name: "Meera", Email: "meera@example.com", Phone: "98", Address: "4 Park St", Method: payment.MethodCOD}
	a, err := s.Checkout.Submit(ctx, &checkout.Identity{UserID: "u1"}, d)
	require.NoError(t, err)
	require.Equal(t, checkout.StateSucceeded, a.State)
	require.Len(t, api.CreateOrderCalls, 1)
	assert.False(t, s.Cart.IsEmpty())

	// reload of the confirmation page: no navigation data
	view := s.Confirmation.Open(ctx, nil)
	require.True(t, view.HasData)
	assert.True(t, view.Recovered)
	assert.Equal(t, a.Order.OrderID, view.Order.OrderID)

	assert.Eventually(t, s.Cart.IsEmpty, time.Second, 5*time.Millisecond)

	second := s.Confirmation.Open(ctx, nil)
	assert.False(t, second.HasData)

	// navigation data for the same order is vouched for by the checkout
	nav := *a.Order
	third := s.Confirmation.Open(ctx, &nav)
	assert.True(t, third.Verified)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		App:       config.AppConfig{Name: "storefront"},
		Storage:   config.StorageConfig{HandoffTTL: 10 * time.Minute},
		Checkout:  config.CheckoutConfig{Currency: "INR", GatewayNameMax: 40, VerifyTimeout: 30 * time.Second, IntentMaxAge: time.Hour, CODPaymentPrefix: "COD_"},
		Reconcile: config.ReconcileConfig{PlaceholderPaymentPrefixes: []string{"pay_test"}, ClearGrace: time.Second, Timeout: 5 * time.Second},
	}

	opts := OptionsFromConfig(cfg)

	assert.Equal(t, 10*time.Minute, opts.HandoffTTL)
	assert.Equal(t, time.Hour, opts.IntentMaxAge)
	assert.Equal(t, 40, opts.Checkout.GatewayNameMax)
	assert.Equal(t, "storefront", opts.Checkout.StoreName)
	assert.Equal(t, []string{"pay_test"}, opts.Reconcile.Policy.Prefixes)
	assert.Equal(t, time.Second, opts.Reconcile.ClearGrace)
}
