package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/infrastructure/mocks"
	"github.com/example/storefront/internal/infrastructure/storage"
	"github.com/example/storefront/internal/session"
)

func newTestManager() *session.Manager {
	return session.NewManager(storage.NewMemory(), mocks.NewMockOrderAPI(), nil, nil, session.Options{
		HandoffTTL:   time.Minute,
		IntentMaxAge: time.Minute,
	})
}

func serveWithSession(t *testing.T, m *session.Manager, prepare func(r *http.Request)) (*httptest.ResponseRecorder, *session.Session) {
	t.Helper()
	var got *session.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := GetSession(r.Context())
		require.NoError(t, err)
		got = s
	})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	prepare(req)
	rec := httptest.NewRecorder()
	SessionMiddleware(m, false, nil)(next).ServeHTTP(rec, req)
	return rec, got
}

func TestSessionMiddleware(t *testing.T) {
	t.Run("mints a session and sets the cookie", func(t *testing.T) {
		m := newTestManager()
		rec, s := serveWithSession(t, m, func(r *http.Request) {})

		require.NotNil(t, s)
		assert.True(t, session.ValidID(s.ID))
		assert.Equal(t, s.ID, rec.Header().Get(SessionHeaderName))

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, SessionCookieName, cookies[0].Name)
		assert.Equal(t, s.ID, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("reuses the cookie session", func(t *testing.T) {
		m := newTestManager()
		_, first := serveWithSession(t, m, func(r *http.Request) {})
		_, second := serveWithSession(t, m, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: first.ID})
		})
		assert.Same(t, first, second)
	})

	t.Run("accepts the header", func(t *testing.T) {
		m := newTestManager()
		_, s := serveWithSession(t, m, func(r *http.Request) {
			r.Header.Set(SessionHeaderName, "client-session-01")
		})
		assert.Equal(t, "client-session-01", s.ID)
	})

	t.Run("replaces an invalid id", func(t *testing.T) {
		m := newTestManager()
		_, s := serveWithSession(t, m, func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "../bad"})
		})
		assert.NotEqual(t, "../bad", s.ID)
		assert.True(t, session.ValidID(s.ID))
	})
}

func TestGetSession_Missing(t *testing.T) {
	_, err := GetSession(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}
