package store

import (
	"context"
	"fmt"

	"github.com/nikhil/creatortent/internal/models"
)

// ListRates returns userID's rates ordered by service type.
func (s *Store) ListRates(ctx context.Context, userID string) ([]models.UserRate, error) {
	rates := []models.UserRate{}
	err := s.db.SelectContext(ctx, &rates, `
		SELECT id, user_id, service_type, description, amount, currency, created_at, updated_at
		FROM user_rates WHERE user_id = ? ORDER BY service_type`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	return rates, nil
}

// UpsertRate creates the rate for (user, service type) or overwrites it.
func (s *Store) UpsertRate(ctx context.Context, rate *models.UserRate) error {
	now := s.unix()
	if rate.ID == "" {
		rate.ID = newID()
	}
	rate.CreatedAt, rate.UpdatedAt = now, now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO user_rates (id, user_id, service_type, description, amount, currency, created_at, updated_at)
		VALUES (:id, :user_id, :service_type, :description, :amount, :currency, :created_at, :updated_at)
		ON DUPLICATE KEY UPDATE description = VALUES(description), amount = VALUES(amount),
			currency = VALUES(currency), updated_at = VALUES(updated_at)`, rate)
	if err != nil {
		return fmt.Errorf("failed to save rate: %w", err)
	}

	// The row may have existed already; reload to return its real id.
	err = s.db.GetContext(ctx, rate, `
		SELECT id, user_id, service_type, description, amount, currency, created_at, updated_at
		FROM user_rates WHERE user_id = ? AND service_type = ?`, rate.UserID, rate.ServiceType)
	if err != nil {
		return notFound(err, "rate")
	}
	return nil
}

// DeleteRate removes one of userID's rates.
func (s *Store) DeleteRate(ctx context.Context, userID, rateID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_rates WHERE id = ? AND user_id = ?`, rateID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete rate: %w", err)
	}
	return mustAffect(res, "rate")
}
