package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/identity"
)

type mockUserService struct {
	RegisterFunc        func(ctx context.Context, ident identity.Identity) (*domain.User, error)
	GetByExternalIDFunc func(ctx context.Context, externalID string) (*domain.User, error)
}

func (m *mockUserService) Register(ctx context.Context, ident identity.Identity) (*domain.User, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, ident)
	}
	return nil, errors.New("RegisterFunc not implemented")
}

func (m *mockUserService) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	if m.GetByExternalIDFunc != nil {
		return m.GetByExternalIDFunc(ctx, externalID)
	}
	return nil, errors.New("GetByExternalIDFunc not implemented")
}

func newTestRegisterHandler(users *mockUserService) *RegisterHandler {
	verifier := &identity.StaticVerifier{
		Tokens: map[string]identity.Identity{
			"good-token": {
				ExternalID: "ext-42",
				Email:      "asha@example.com",
				Name:       "Asha",
				Role:       domain.RoleCivilian,
			},
		},
	}
	return NewRegisterHandler(verifier, users, testLogger())
}

func TestRegister_Created(t *testing.T) {
	users := &mockUserService{
		RegisterFunc: func(ctx context.Context, ident identity.Identity) (*domain.User, error) {
			assert.Equal(t, "ext-42", ident.ExternalID)
			return &domain.User{
				ID:         uuid.New(),
				ExternalID: ident.ExternalID,
				Email:      ident.Email,
				Name:       ident.Name,
				Role:       domain.RoleCivilian,
			}, nil
		},
	}
	h := newTestRegisterHandler(users)

	req := httptest.NewRequest("POST", "/api/register", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ext-42", resp.ExternalID)
	assert.Equal(t, "asha@example.com", resp.Email)
	assert.Equal(t, "civilian", resp.Role)
}

func TestRegister_AcceptsSessionCookie(t *testing.T) {
	users := &mockUserService{
		RegisterFunc: func(ctx context.Context, ident identity.Identity) (*domain.User, error) {
			return &domain.User{ID: uuid.New(), ExternalID: ident.ExternalID, Email: ident.Email}, nil
		},
	}
	h := newTestRegisterHandler(users)

	req := httptest.NewRequest("POST", "/api/register", nil)
	req.AddCookie(&http.Cookie{Name: "raahi_session", Value: "good-token"})
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRegister_MissingToken(t *testing.T) {
	h := newTestRegisterHandler(&mockUserService{})

	req := httptest.NewRequest("POST", "/api/register", nil)
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_InvalidToken(t *testing.T) {
	h := newTestRegisterHandler(&mockUserService{})

	req := httptest.NewRequest("POST", "/api/register", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_AlreadyRegistered(t *testing.T) {
	users := &mockUserService{
		RegisterFunc: func(ctx context.Context, ident identity.Identity) (*domain.User, error) {
			return nil, domain.Conflict("service.user_register", "User already exists")
		},
	}
	h := newTestRegisterHandler(users)

	req := httptest.NewRequest("POST", "/api/register", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}
