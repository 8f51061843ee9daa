package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/identity"
	"github.com/raahi-app/raahi/internal/service"
)

// RegisterHandler links a verified external identity to a local user row.
type RegisterHandler struct {
	verifier identity.Verifier
	users    service.UserService
	logger   *slog.Logger
}

// NewRegisterHandler creates a RegisterHandler.
func NewRegisterHandler(verifier identity.Verifier, users service.UserService, logger *slog.Logger) *RegisterHandler {
	return &RegisterHandler{verifier: verifier, users: users, logger: logger}
}

type userResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
}

// Register handles POST /api/register. The caller presents their identity
// provider token; no request body is needed.
func (h *RegisterHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handler.register"

	token := bearerToken(r)
	if token == "" {
		ErrorResponse(w, r, h.logger, domain.Unauthorized(op, "Authentication required"))
		return
	}

	ident, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), *ident)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, userResponse{
		ID:         user.ID.String(),
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Name:       user.Name,
		Role:       string(user.Role),
	})
}

// bearerToken extracts the token from the Authorization header or the
// session cookie.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
		return ""
	}
	if cookie, err := r.Cookie("raahi_session"); err == nil {
		return cookie.Value
	}
	return ""
}
