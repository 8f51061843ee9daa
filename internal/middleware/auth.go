// Package middleware contains HTTP middleware for the Raahi application.
//
// Middleware functions follow the standard Go pattern of wrapping
// http.Handler and are composed in cmd/server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/handler"
	"github.com/raahi-app/raahi/internal/identity"
	"github.com/raahi-app/raahi/internal/service"
)

// SessionCookieName is the cookie that carries the session token for
// browser clients. API clients send the same token as a bearer header.
const SessionCookieName = "raahi_session"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const userContextKey contextKey = "user"

// GetUser retrieves the authenticated user from the request context.
// Returns nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

func setUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// AuthMiddleware resolves session tokens to users.
type AuthMiddleware struct {
	verifier identity.Verifier
	users    service.UserService
	logger   *slog.Logger
}

// NewAuthMiddleware creates an AuthMiddleware.
func NewAuthMiddleware(verifier identity.Verifier, users service.UserService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		users:    users,
		logger:   logger,
	}
}

// WithUser attempts to resolve the caller's session and stores the user in
// the request context. The request always continues: report submission is
// open to anonymous citizens, so a missing or invalid token just means no
// user in context.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		ident, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
				m.logger.Warn("identity verification failed", "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetByExternalID(r.Context(), ident.ExternalID)
		if err != nil {
			// Verified but not registered locally. Carry the identity so
			// submissions are still attributed.
			user = &domain.User{
				ExternalID: ident.ExternalID,
				Email:      ident.Email,
				Name:       ident.Name,
				Role:       domain.RoleCivilian,
			}
		}

		next.ServeHTTP(w, r.WithContext(setUser(r.Context(), user)))
	})
}

// RequireUser rejects requests without an authenticated user. Must run
// after WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("middleware.require_user", "Authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests from non-admin users. Must run after
// WithUser.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetUser(r.Context())
		if user == nil {
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("middleware.require_admin", "Authentication required"))
			return
		}
		if !user.IsAdmin() {
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden("middleware.require_admin", "Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stack composes middleware so the first argument is the outermost wrapper.
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// extractToken pulls the session token from the Authorization header or,
// failing that, the session cookie.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}
