package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/raahi-app/raahi/internal/domain"
)

// CreateUser inserts a user row for a verified external identity.
// Returns domain.ECONFLICT if the external ID or email is already
// registered.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	const op = "repository.create_user"

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (external_id, email, name, phone, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		user.ExternalID, user.Email, user.Name, user.Phone, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict(op, "User already exists")
		}
		return domain.Internal(err, op, "failed to insert user")
	}

	return nil
}

// GetUserByExternalID looks up a user by their identity-provider ID.
func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	const op = "repository.get_user"

	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, external_id, email, name, phone, role, created_at
		FROM users WHERE external_id = $1`,
		externalID,
	).Scan(&user.ID, &user.ExternalID, &user.Email, &user.Name, &user.Phone, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", externalID)
		}
		return nil, domain.Internal(err, op, "failed to fetch user")
	}

	return &user, nil
}
