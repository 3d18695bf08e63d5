package store

import (
	"context"
	"fmt"

	"github.com/nikhil/creatortent/internal/models"
)

// CreateNotification stores n, filling its id, timestamp and unread flag.
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = newID()
	}
	n.CreatedAt = s.unix()
	n.Read = false

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, tent_id, type, title, body, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, FALSE, ?)`,
		n.ID, n.UserID, nullable(n.TentID), n.Type, n.Title, n.Body, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications pages through userID's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, int, error) {
	where := `WHERE user_id = ?`
	if unreadOnly {
		where += ` AND is_read = FALSE`
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications `+where, userID); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	list := []models.Notification{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT id, user_id, COALESCE(tent_id, '') AS tent_id, type, title, COALESCE(body, '') AS body, is_read, created_at
		FROM notifications `+where+`
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return list, total, nil
}

// MarkNotificationRead flags one of userID's notifications as read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return mustAffect(res, "notification")
}

// MarkAllNotificationsRead flags every unread notification of userID and
// returns how many changed.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = ? AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
