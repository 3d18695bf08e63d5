package store

import (
	"context"
	"fmt"

	"github.com/nikhil/creatortent/internal/models"
)

const connectionColumns = `id, user_id, COALESCE(tent_id, '') AS tent_id, provider, email_address,
	COALESCE(access_token, '') AS access_token, COALESCE(refresh_token, '') AS refresh_token,
	token_expiry, COALESCE(imap_password, '') AS imap_password, auto_reply_enabled, is_active,
	last_synced_at, created_at, updated_at`

const inquiryColumns = `id, connection_id, user_id, COALESCE(tent_id, '') AS tent_id, message_id, thread_id,
	from_email, from_name, subject, COALESCE(snippet, '') AS snippet, received_at, is_business_inquiry,
	confidence, inquiry_type, brand_name, budget, COALESCE(summary, '') AS summary, status,
	auto_replied, replied_at, created_at`

// InquiryFilter narrows ListInquiries. Empty fields do not filter.
type InquiryFilter struct {
	UserID string
	TentID string
	Status string
	Limit  int
	Offset int
}

// UpsertConnection stores a connection keyed by (user, provider, address).
// Reconnecting an existing mailbox refreshes its credentials and reactivates
// it; the stored row is loaded back into conn.
func (s *Store) UpsertConnection(ctx context.Context, conn *models.EmailConnection) error {
	now := s.unix()
	if conn.ID == "" {
		conn.ID = newID()
	}
	conn.CreatedAt, conn.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_connections (id, user_id, tent_id, provider, email_address, access_token,
			refresh_token, token_expiry, imap_password, auto_reply_enabled, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?)
		ON DUPLICATE KEY UPDATE tent_id = VALUES(tent_id), access_token = VALUES(access_token),
			refresh_token = COALESCE(VALUES(refresh_token), refresh_token), token_expiry = VALUES(token_expiry),
			imap_password = VALUES(imap_password), is_active = TRUE, updated_at = VALUES(updated_at)`,
		conn.ID, conn.UserID, nullable(conn.TentID), conn.Provider, conn.EmailAddress,
		nullable(conn.AccessToken), nullable(conn.RefreshToken), conn.TokenExpiry,
		nullable(conn.IMAPPassword), conn.AutoReplyEnabled, now, now)
	if err != nil {
		return fmt.Errorf("failed to save email connection: %w", err)
	}

	err = s.db.GetContext(ctx, conn, `
		SELECT `+connectionColumns+` FROM email_connections
		WHERE user_id = ? AND provider = ? AND email_address = ?`,
		conn.UserID, conn.Provider, conn.EmailAddress)
	if err != nil {
		return notFound(err, "email connection")
	}
	return nil
}

// GetConnection loads a connection by id.
func (s *Store) GetConnection(ctx context.Context, id string) (*models.EmailConnection, error) {
	var conn models.EmailConnection
	if err := s.db.GetContext(ctx, &conn, `SELECT `+connectionColumns+` FROM email_connections WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "email connection")
	}
	return &conn, nil
}

// ListConnections returns userID's connections.
func (s *Store) ListConnections(ctx context.Context, userID string) ([]models.EmailConnection, error) {
	conns := []models.EmailConnection{}
	err := s.db.SelectContext(ctx, &conns, `
		SELECT `+connectionColumns+` FROM email_connections
		WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list email connections: %w", err)
	}
	return conns, nil
}

// ListActiveConnections returns every active connection, for the scheduler.
func (s *Store) ListActiveConnections(ctx context.Context) ([]models.EmailConnection, error) {
	conns := []models.EmailConnection{}
	err := s.db.SelectContext(ctx, &conns, `
		SELECT `+connectionColumns+` FROM email_connections
		WHERE is_active = TRUE ORDER BY last_synced_at IS NOT NULL, last_synced_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active email connections: %w", err)
	}
	return conns, nil
}

// DeleteConnection removes one of userID's connections; its inquiries cascade.
func (s *Store) DeleteConnection(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM email_connections WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete email connection: %w", err)
	}
	return mustAffect(res, "email connection")
}

// SetAutoReply toggles auto-reply on one of userID's connections.
func (s *Store) SetAutoReply(ctx context.Context, userID, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_connections SET auto_reply_enabled = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`, enabled, s.unix(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to update email connection: %w", err)
	}
	return mustAffect(res, "email connection")
}

// UpdateConnectionTokens persists refreshed OAuth tokens (ciphertext).
func (s *Store) UpdateConnectionTokens(ctx context.Context, id, accessToken, refreshToken string, expiry int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_connections
		SET access_token = ?, refresh_token = COALESCE(?, refresh_token), token_expiry = ?, updated_at = ?
		WHERE id = ?`, nullable(accessToken), nullable(refreshToken), expiry, s.unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	return mustAffect(res, "email connection")
}

// SetConnectionActive flips is_active, used when credentials stop working.
func (s *Store) SetConnectionActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_connections SET is_active = ?, updated_at = ? WHERE id = ?`, active, s.unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update email connection: %w", err)
	}
	return mustAffect(res, "email connection")
}

// SetLastSynced records when a sync pass for the connection finished.
func (s *Store) SetLastSynced(ctx context.Context, id string, at int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE email_connections SET last_synced_at = ?, updated_at = ? WHERE id = ?`, at, s.unix(), id)
	if err != nil {
		return fmt.Errorf("failed to record sync time: %w", err)
	}
	return nil
}

// InquiryExists reports whether a message was already stored for a connection.
func (s *Store) InquiryExists(ctx context.Context, connectionID, messageID string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM email_inquiries WHERE connection_id = ? AND message_id = ?`,
		connectionID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to check inquiry: %w", err)
	}
	return n > 0, nil
}

// CreateInquiry stores a classified message. A message already stored for
// the connection yields ErrConflict.
func (s *Store) CreateInquiry(ctx context.Context, inq *models.EmailInquiry) error {
	if inq.ID == "" {
		inq.ID = newID()
	}
	inq.CreatedAt = s.unix()
	if inq.Status == "" {
		inq.Status = models.InquiryNew
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_inquiries (id, connection_id, user_id, tent_id, message_id, thread_id, from_email,
			from_name, subject, snippet, received_at, is_business_inquiry, confidence, inquiry_type,
			brand_name, budget, summary, status, auto_replied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inq.ID, inq.ConnectionID, inq.UserID, nullable(inq.TentID), inq.MessageID, inq.ThreadID,
		inq.FromEmail, inq.FromName, inq.Subject, inq.Snippet, inq.ReceivedAt, inq.IsBusinessInquiry,
		inq.Confidence, inq.InquiryType, inq.BrandName, inq.Budget, inq.Summary, inq.Status,
		inq.AutoReplied, inq.CreatedAt)
	if isDuplicate(err) {
		return fmt.Errorf("message %s: %w", inq.MessageID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to create inquiry: %w", err)
	}
	return nil
}

// GetInquiry loads an inquiry by id.
func (s *Store) GetInquiry(ctx context.Context, id string) (*models.EmailInquiry, error) {
	var inq models.EmailInquiry
	if err := s.db.GetContext(ctx, &inq, `SELECT `+inquiryColumns+` FROM email_inquiries WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "inquiry")
	}
	return &inq, nil
}

// ListInquiries pages through a user's inquiries, newest first.
func (s *Store) ListInquiries(ctx context.Context, f InquiryFilter) ([]models.EmailInquiry, int, error) {
	where := `WHERE user_id = ?`
	args := []interface{}{f.UserID}
	if f.TentID != "" {
		where += ` AND tent_id = ?`
		args = append(args, f.TentID)
	}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM email_inquiries `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count inquiries: %w", err)
	}

	list := []models.EmailInquiry{}
	err := s.db.SelectContext(ctx, &list,
		`SELECT `+inquiryColumns+` FROM email_inquiries `+where+` ORDER BY received_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list inquiries: %w", err)
	}
	return list, total, nil
}

// UpdateInquiryStatus sets the status of one of userID's inquiries.
func (s *Store) UpdateInquiryStatus(ctx context.Context, userID, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_inquiries SET status = ? WHERE id = ? AND user_id = ?`, status, id, userID)
	if err != nil {
		return fmt.Errorf("failed to update inquiry: %w", err)
	}
	return mustAffect(res, "inquiry")
}

// MarkInquiryReplied records a sent reply. auto is true for automatic replies.
func (s *Store) MarkInquiryReplied(ctx context.Context, id string, auto bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_inquiries SET status = ?, replied_at = ?, auto_replied = auto_replied OR ?
		WHERE id = ?`, models.InquiryReplied, s.unix(), auto, id)
	if err != nil {
		return fmt.Errorf("failed to mark inquiry replied: %w", err)
	}
	return mustAffect(res, "inquiry")
}
