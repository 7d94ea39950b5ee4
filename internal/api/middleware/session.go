package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/storefront/internal/session"
)

const (
	SessionCookieName = "sid"
	SessionHeaderName = "X-Session-ID"

	sessionContextKey contextKey = "session"
)

// SessionMiddleware resolves the browser session from the sid cookie or the
// X-Session-ID header, minting a new one when neither carries a valid id.
func SessionMiddleware(manager *session.Manager, secureCookie bool, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestSessionID(r)
			if !session.ValidID(id) {
				id = session.NewID()
			}

			s, err := manager.Get(r.Context(), id)
			if err != nil {
				logger.Error("Failed to open session", zap.String("session_id", id), zap.Error(err))
				respondError(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(SessionHeaderName, s.ID)

			ctx := context.WithValue(r.Context(), sessionContextKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestSessionID(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.Header.Get(SessionHeaderName)
}

var ErrNoSession = errors.New("no session in context")

// GetSession retrieves the session resolved by SessionMiddleware
func GetSession(ctx context.Context) (*session.Session, error) {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
