package store

import (
	"context"
	"fmt"

	"github.com/nikhil/creatortent/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, contact_number,
	display_currency, COALESCE(reply_signature, '') AS reply_signature, created_at, updated_at`

// CreateUser inserts a user, assigning ID and timestamps.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.DisplayCurrency == "" {
		user.DisplayCurrency = "USD"
	}
	now := s.unix()
	user.CreatedAt, user.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, contact_number,
			display_currency, reply_signature, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.ContactNumber,
		user.DisplayCurrency, user.ReplySignature, user.CreatedAt, user.UpdatedAt,
	)
	if isDuplicate(err) {
		return fmt.Errorf("user %s: %w", user.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by login email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// GetUserByID looks a user up by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// UpdateUserProfile updates the editable profile fields.
func (s *Store) UpdateUserProfile(ctx context.Context, user *models.User) error {
	user.UpdatedAt = s.unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, contact_number = ?,
			display_currency = ?, reply_signature = ?, updated_at = ?
		WHERE id = ?`,
		user.FirstName, user.LastName, user.ContactNumber,
		user.DisplayCurrency, user.ReplySignature, user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return mustAffect(res, "user")
}
