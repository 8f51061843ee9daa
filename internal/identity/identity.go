// Package identity verifies session tokens against the external identity
// provider. The rest of the application only sees the Verifier interface,
// so reports can be accepted anonymously when no token is present.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raahi-app/raahi/internal/domain"
)

// Identity is a verified session: who the provider says the caller is.
type Identity struct {
	ExternalID string          `json:"id"`
	Email      string          `json:"email"`
	Name       string          `json:"name"`
	Phone      string          `json:"phone"`
	Role       domain.UserRole `json:"role"`
}

// Verifier validates a session token and returns the identity behind it.
type Verifier interface {
	// Verify returns domain.EUNAUTHORIZED for invalid or expired tokens and
	// domain.EUNAVAILABLE when the provider cannot be reached.
	Verify(ctx context.Context, token string) (*Identity, error)
}

// HTTPVerifier verifies tokens by calling the identity provider's session
// introspection endpoint.
type HTTPVerifier struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPVerifier creates a verifier against the provider at baseURL.
func NewHTTPVerifier(baseURL string, logger *slog.Logger) (*HTTPVerifier, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("identity provider URL is required")
	}
	return &HTTPVerifier{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "identity"),
	}, nil
}

func (v *HTTPVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	const op = "identity.verify"

	if token == "" {
		return nil, domain.Unauthorized(op, "Missing session token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/sessions/verify", nil)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to build verification request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, domain.Unavailable(err, op, "Identity provider unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	default:
		v.logger.Warn("unexpected identity provider status", "status", resp.StatusCode)
		return nil, domain.Unavailable(nil, op, "Identity provider error")
	}

	var ident Identity
	if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
		return nil, domain.Internal(err, op, "failed to decode identity response")
	}
	if ident.ExternalID == "" {
		return nil, domain.Unauthorized(op, "Identity response missing subject")
	}
	if ident.Role == "" {
		ident.Role = domain.RoleCivilian
	}

	return &ident, nil
}

// StaticVerifier resolves tokens from a fixed map. Used in development and
// tests where no identity provider is running.
type StaticVerifier struct {
	Tokens map[string]Identity
}

func (v *StaticVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	const op = "identity.verify"

	ident, ok := v.Tokens[token]
	if !ok {
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}
	return &ident, nil
}
