// Package service contains business logic for the Raahi application.
//
// This file implements user registration for verified identities.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/raahi-app/raahi/internal/domain"
	"github.com/raahi-app/raahi/internal/identity"
	"github.com/raahi-app/raahi/internal/retry"
)

// UserStore is the persistence surface for users. Implemented by
// repository.Store.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
}

// UserService manages application users backed by external identities.
type UserService interface {
	// Register creates a local user row for a verified identity.
	// Returns domain.ECONFLICT if the identity is already registered.
	Register(ctx context.Context, ident identity.Identity) (*domain.User, error)

	// GetByExternalID resolves a verified identity to its local user row.
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
}

type userService struct {
	store  UserStore
	logger *slog.Logger
	policy retry.Policy
}

// NewUserService creates a UserService.
func NewUserService(store UserStore, logger *slog.Logger) UserService {
	return &userService{
		store:  store,
		logger: logger,
		policy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			Backoff:      retry.Exponential,
			RetryIf:      isTransient,
		},
	}
}

func (s *userService) Register(ctx context.Context, ident identity.Identity) (*domain.User, error) {
	const op = "user.register"

	email := strings.TrimSpace(strings.ToLower(ident.Email))
	if email == "" {
		return nil, domain.Invalid(op, "Email is required")
	}
	if ident.ExternalID == "" {
		return nil, domain.Invalid(op, "Identity is missing a subject")
	}

	role := ident.Role
	if role != domain.RoleAdmin {
		role = domain.RoleCivilian
	}

	user := &domain.User{
		ExternalID: ident.ExternalID,
		Email:      email,
		Name:       strings.TrimSpace(ident.Name),
		Phone:      strings.TrimSpace(ident.Phone),
		Role:       role,
	}

	err := retry.DoVoid(ctx, s.policy, func(ctx context.Context) error {
		return s.store.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)

	return user, nil
}

func (s *userService) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	return retry.Do(ctx, s.policy, func(ctx context.Context) (*domain.User, error) {
		return s.store.GetUserByExternalID(ctx, externalID)
	})
}
