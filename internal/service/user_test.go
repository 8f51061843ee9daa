package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(store, testLogger())

	user, err := svc.Register(context.Background(), identity.Identity{
		ExternalID: "ext_1",
		Email:      "  Asha@Example.COM ",
		Name:       "Asha",
		Phone:      "9999999999",
	})

	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", user.Email, "email is normalized")
	assert.Equal(t, domain.RoleCivilian, user.Role, "role defaults to civilian")
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestRegister_Conflict(t *testing.T) {
	store := newFakeStore()
	svc := NewUserService(store, testLogger())

	ident := identity.Identity{ExternalID: "ext_1", Email: "a@b.com"}
	_, err := svc.Register(context.Background(), ident)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), ident)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestRegister_RequiresEmail(t *testing.T) {
	svc := NewUserService(newFakeStore(), testLogger())

	_, err := svc.Register(context.Background(), identity.Identity{ExternalID: "ext_1"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestRegister_AdminRolePreserved(t *testing.T) {
	svc := NewUserService(newFakeStore(), testLogger())

	user, err := svc.Register(context.Background(), identity.Identity{
		ExternalID: "ext_admin",
		Email:      "admin@city.gov",
		Role:       domain.RoleAdmin,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}

func TestGetByExternalID_NotFound(t *testing.T) {
	svc := NewUserService(newFakeStore(), testLogger())

	_, err := svc.GetByExternalID(context.Background(), "missing")
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}
