package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/checkout"
	"github.com/example/storefront/internal/infrastructure/mocks"
	"github.com/example/storefront/internal/infrastructure/shopapi"
	"github.com/example/storefront/internal/infrastructure/storage"
	"github.com/example/storefront/internal/reconcile"
	"github.com/example/storefront/internal/session"
)

const (
	testSecret = "test-secret-key-for-testing-purposes"
	testSID    = "test-session-0001"
)

type testServer struct {
	handler http.Handler
	api     *mocks.MockOrderAPI
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	api := mocks.NewMockOrderAPI()
	sessions := session.NewManager(storage.NewMemory(), api, mocks.NewMockPublisher(), nil, session.Options{
		HandoffTTL:   time.Minute,
		IntentMaxAge: time.Minute,
		Checkout:     checkout.Options{Currency: "INR", GatewayNameMax: 50, VerifyTimeout: time.Second, CODPaymentPrefix: "COD_"},
		Reconcile:    reconcile.Options{ClearGrace: time.Hour, Timeout: time.Second},
	})
	jwtService := auth.NewJWTService(testSecret, time.Hour)
	tok, err := jwtService.Issue("user-1", "meera@example.com", "Meera")
	require.NoError(t, err)

	return &testServer{
		handler: NewRouter(RouterConfig{
			Handlers:   NewHandlers(nil),
			Sessions:   sessions,
			JWTService: jwtService,
		}),
		api:   api,
		token: tok.Value,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(middleware.SessionHeaderName, testSID)
	if authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type cartResponse struct {
	Items []struct {
		UID      string `json:"uid"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	SelectedIDs []string `json:"selectedIds"`
	Total       string   `json:"total"`
	ItemCount   int      `json:"itemCount"`
	Notice      *struct {
		Kind    string `json:"kind"`
		Code    string `json:"code"`
		Granted int    `json:"granted"`
	} `json:"notice"`
}

func tee(qty int) map[string]any {
	return map[string]any{
		"productId":     "tee",
		"name":          "Cotton Tee",
		"price":         499.5,
		"stockQuantity": 5,
		"selectedColor": "Red",
		"quantity":      qty,
	}
}

func codDraft() checkout.Draft {
	return checkout.Draft{Name: "Meera", Email: "meera@example.com", Phone: "98", Address: "4 Park St", Method: "cod"}
}

// ============================================
// Cart Handler Tests
// ============================================

func TestGetCart_MintsSession(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.SessionHeaderName))
	body := decode[cartResponse](t, rec)
	assert.Empty(t, body.Items)
	assert.Equal(t, "0", body.Total)
}

func TestCartFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items", tee(3), false)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[cartResponse](t, rec)
	require.NotNil(t, body.Notice)
	assert.Equal(t, "added", body.Notice.Code)
	assert.Equal(t, 3, body.ItemCount)

	rec = s.do(t, http.MethodPost, "/cart/items", tee(4), false)
	body = decode[cartResponse](t, rec)
	require.NotNil(t, body.Notice)
	assert.Equal(t, "reduced", body.Notice.Code)
	assert.Equal(t, 2, body.Notice.Granted)
	assert.Equal(t, 5, body.ItemCount)

	uid := url.PathEscape("tee::color:Red")
	rec = s.do(t, http.MethodPatch, "/cart/items/"+uid, map[string]int{"quantity": 1}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[cartResponse](t, rec).ItemCount)

	rec = s.do(t, http.MethodPost, "/cart/selection", map[string]any{"action": "set", "uids": []string{"tee::color:Red", "ghost"}}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"tee::color:Red"}, decode[cartResponse](t, rec).SelectedIDs)

	rec = s.do(t, http.MethodDelete, "/cart/items/ghost", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/cart/items/"+uid, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[cartResponse](t, rec)
	assert.Empty(t, body.Items)
	assert.Empty(t, body.SelectedIDs)
}

func TestAddToCart_InvalidPrice(t *testing.T) {
	s := newTestServer(t)
	item := tee(1)
	item["price"] = 0

	rec := s.do(t, http.MethodPost, "/cart/items", item, false)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[cartResponse](t, rec)
	require.NotNil(t, body.Notice)
	assert.Equal(t, "invalid_price", body.Notice.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"empty add body", http.MethodPost, "/cart/items", nil, http.StatusBadRequest},
		{"unknown selection action", http.MethodPost, "/cart/selection", map[string]string{"action": "flip"}, http.StatusBadRequest},
		{"method not allowed", http.MethodPut, "/cart", nil, http.StatusMethodNotAllowed},
		{"get on post-only route", http.MethodGet, "/checkout/resume", nil, http.StatusMethodNotAllowed},
		{"pending orders need a token", http.MethodGet, "/pending-orders", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, tt.method, tt.path, tt.body, false).Code)
		})
	}
}

// ============================================
// Checkout Handler Tests
// ============================================

func TestBeginCheckout(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/checkout", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "/cart", decode[map[string]string](t, rec)["redirect"])

	s.do(t, http.MethodPost, "/cart/items", tee(2), false)

	rec = s.do(t, http.MethodGet, "/checkout", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "/login", decode[map[string]string](t, rec)["redirect"])

	rec = s.do(t, http.MethodPost, "/checkout/resume", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["resumed"])

	rec = s.do(t, http.MethodGet, "/checkout", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[map[string]any](t, rec)
	assert.Equal(t, float64(99900), snap["amountMinor"])
}

func TestCODCheckoutAndConfirmation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(2), false)

	rec := s.do(t, http.MethodPost, "/checkout", codDraft(), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[checkout.Attempt](t, rec)
	assert.Equal(t, checkout.StateSucceeded, a.State)
	require.Len(t, s.api.CreateOrderCalls, 1)

	rec = s.do(t, http.MethodGet, "/confirmation", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[reconcile.View](t, rec)
	assert.True(t, view.HasData)
	assert.True(t, view.Recovered)
	assert.Equal(t, a.Order.OrderID, view.Order.OrderID)

	// the handoff is single use
	rec = s.do(t, http.MethodGet, "/confirmation", nil, true)
	assert.False(t, decode[reconcile.View](t, rec).HasData)
}

func TestConfirmation_NavigationData(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(1), false)

	rec := s.do(t, http.MethodPost, "/checkout", codDraft(), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[checkout.Attempt](t, rec)

	rec = s.do(t, http.MethodPost, "/confirmation", map[string]any{
		"order": map[string]any{"_id": a.Order.OrderID, "paymentId": a.Order.PaymentID, "amount": "499.5"},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[reconcile.View](t, rec)
	assert.True(t, view.HasData)
	assert.False(t, view.Recovered)
	assert.True(t, view.Verified)
	assert.Equal(t, a.Order.OrderID, view.Order.OrderID)
	assert.Equal(t, 499.5, view.Order.Total)

	// the handoff was matched and consumed
	rec = s.do(t, http.MethodGet, "/confirmation", nil, true)
	assert.False(t, decode[reconcile.View](t, rec).HasData)
}

func TestConfirmation_ForgedNavigationData(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/confirmation", map[string]any{
		"order": map[string]any{
			"_id":             "ORD-9",
			"paymentId":       "pay_Forged9",
			"amount":          "10",
			"customerName":    "Meera",
			"customerEmail":   "meera@example.com",
			"customerPhone":   "98",
			"customerAddress": "4 Park St",
		},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[reconcile.View](t, rec)
	assert.True(t, view.HasData)
	assert.False(t, view.Verified)
	assert.Equal(t, "ORD-9", view.Order.OrderID)

	assert.Empty(t, s.api.GetOrderByPaymentCalls)
	assert.Empty(t, s.api.CreateOrderCalls)
	assert.Equal(t, 0, s.api.OrderCount())
}

func TestSubmitCheckout_UnsettledOrderConflict(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(1), false)
	s.api.CreateOrderErr = shopapi.ErrUnavailable

	rec := s.do(t, http.MethodPost, "/checkout", codDraft(), true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	require.NotNil(t, decode[checkout.Attempt](t, rec).Order)

	rec = s.do(t, http.MethodPost, "/checkout", codDraft(), true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "/pending-orders", decode[map[string]string](t, rec)["redirect"])
	assert.Len(t, s.api.CreateOrderCalls, 1)
}

func TestOnlineCheckout(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(1), false)
	draft := codDraft()
	draft.Method = "online"

	rec := s.do(t, http.MethodPost, "/checkout", draft, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	a := decode[checkout.Attempt](t, rec)
	require.Equal(t, checkout.StateGatewayOpen, a.State)
	require.NotNil(t, a.Gateway)
	assert.Equal(t, int64(49950), a.Gateway.Amount)

	rec = s.do(t, http.MethodPost, "/checkout", draft, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/checkout/attempt", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, checkout.StateGatewayOpen, decode[checkout.Attempt](t, rec).State)

	rec = s.do(t, http.MethodPost, "/checkout/gateway/callback", map[string]string{
		"gatewayOrderId":   a.Gateway.OrderID,
		"gatewayPaymentId": "pay_Live1",
		"gatewaySignature": "sig",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[checkout.Attempt](t, rec)
	assert.Equal(t, checkout.StateSucceeded, done.State)
	assert.Equal(t, "pay_Live1", done.Order.PaymentID)
}

func TestGatewayDismiss(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(1), false)
	draft := codDraft()
	draft.Method = "online"

	rec := s.do(t, http.MethodPost, "/checkout/gateway/dismiss", nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	s.do(t, http.MethodPost, "/checkout", draft, true)
	rec = s.do(t, http.MethodPost, "/checkout/gateway/dismiss", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	a := decode[checkout.Attempt](t, rec)
	assert.Equal(t, checkout.StateFailed, a.State)
	assert.True(t, a.Silent)
	assert.Len(t, s.api.CancelCalls, 1)
}

func TestSubmitCheckout_ValidationFailure(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", tee(1), false)
	draft := codDraft()
	draft.Address = ""

	rec := s.do(t, http.MethodPost, "/checkout", draft, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	a := decode[checkout.Attempt](t, rec)
	assert.Equal(t, checkout.StateFailed, a.State)
	assert.Contains(t, a.Reason, "address")
	assert.Empty(t, s.api.CreateOrderCalls)
}

func TestBuyNow(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/cart/items", map[string]any{"productId": "mug", "name": "Mug", "price": 100, "quantity": 1}, false)

	rec := s.do(t, http.MethodPost, "/checkout/buy-now", tee(1), true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/cart", nil, false)
	assert.Equal(t, []string{"tee::color:Red"}, decode[cartResponse](t, rec).SelectedIDs)

	soldOut := tee(1)
	soldOut["productId"] = "cap"
	soldOut["stockQuantity"] = 0
	rec = s.do(t, http.MethodPost, "/checkout/buy-now", soldOut, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetPendingOrders(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/pending-orders", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}
