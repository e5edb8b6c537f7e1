package auth

import (
	"context"
	"net/http"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "coach_session"

type contextKey string

const userContextKey contextKey = "auth_user"

// RequireAuth rejects requests without a valid session with a bare 401,
// otherwise stores the authenticated user in the request context.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		user, err := s.UserFromToken(r.Context(), cookie.Value)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ContextWithUser returns ctx carrying user the way RequireAuth stores it.
func ContextWithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user placed by RequireAuth.
func UserFromContext(ctx context.Context) (core.User, bool) {
	user, ok := ctx.Value(userContextKey).(core.User)
	return user, ok
}

// SetSessionCookie writes the session cookie on login/register responses.
func SetSessionCookie(w http.ResponseWriter, token string, ttlSeconds int) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   ttlSeconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie on logout.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
