package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/creatortent/internal/models"
)

// JoinDecision inspects the current members of a tent, under a row lock, and
// returns the role the joining user gets. An empty role with a nil error means
// the user is already a member and nothing is inserted.
type JoinDecision func(members []models.TentMember) (role string, err error)

const memberColumns = `tm.tent_id, tm.user_id, tm.role, tm.joined_at, u.email, u.first_name, u.last_name`

// CreateTent inserts a tent together with its creator's membership.
func (s *Store) CreateTent(ctx context.Context, tent *models.Tent, creatorRole string) error {
	if tent.ID == "" {
		tent.ID = newID()
	}
	now := s.unix()
	tent.CreatedAt, tent.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tents (id, name, description, invite_code, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tent.ID, tent.Name, tent.Description, tent.InviteCode, tent.CreatedBy, tent.CreatedAt, tent.UpdatedAt,
		)
		if isDuplicate(err) {
			return fmt.Errorf("invite code %s: %w", tent.InviteCode, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to create tent: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tent_members (tent_id, user_id, role, joined_at)
			VALUES (?, ?, ?, ?)`,
			tent.ID, tent.CreatedBy, creatorRole, now,
		)
		if err != nil {
			return fmt.Errorf("failed to add user to tent: %w", err)
		}

		tent.Members = []models.TentMember{{TentID: tent.ID, UserID: tent.CreatedBy, Role: creatorRole, JoinedAt: now}}
		return nil
	})
}

// GetTent loads a tent with its members.
func (s *Store) GetTent(ctx context.Context, id string) (*models.Tent, error) {
	var tent models.Tent
	err := s.db.GetContext(ctx, &tent, `
		SELECT id, name, description, invite_code, created_by, created_at, updated_at
		FROM tents WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err, "tent")
	}

	members, err := s.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	tent.Members = members
	return &tent, nil
}

// GetTentByInviteCode resolves an invite code to a tent (without members).
func (s *Store) GetTentByInviteCode(ctx context.Context, code string) (*models.Tent, error) {
	var tent models.Tent
	err := s.db.GetContext(ctx, &tent, `
		SELECT id, name, description, invite_code, created_by, created_at, updated_at
		FROM tents WHERE invite_code = ?`, code)
	if err != nil {
		return nil, notFound(err, "tent")
	}
	return &tent, nil
}

// ListMembers returns the members of a tent ordered by join time.
func (s *Store) ListMembers(ctx context.Context, tentID string) ([]models.TentMember, error) {
	members := []models.TentMember{}
	err := s.db.SelectContext(ctx, &members, `
		SELECT `+memberColumns+`
		FROM tent_members tm
		JOIN users u ON u.id = tm.user_id
		WHERE tm.tent_id = ?
		ORDER BY tm.joined_at, tm.user_id`, tentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tent members: %w", err)
	}
	return members, nil
}

// ListUserTents pages through the tents userID belongs to, newest first.
func (s *Store) ListUserTents(ctx context.Context, userID string, limit, offset int) ([]models.Tent, int, error) {
	var total int
	err := s.db.GetContext(ctx, &total, `
		SELECT COUNT(*) FROM tent_members WHERE user_id = ?`, userID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count tents: %w", err)
	}

	tents := []models.Tent{}
	err = s.db.SelectContext(ctx, &tents, `
		SELECT t.id, t.name, t.description, t.invite_code, t.created_by, t.created_at, t.updated_at
		FROM tents t
		JOIN tent_members tm ON t.id = tm.tent_id
		WHERE tm.user_id = ?
		ORDER BY t.created_at DESC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tents: %w", err)
	}
	return tents, total, nil
}

// JoinTent adds userID to a tent if decide allows it. The tent row is locked
// for the duration so two concurrent joins cannot both see a free seat.
// It returns the resulting membership and whether a row was inserted.
func (s *Store) JoinTent(ctx context.Context, tentID, userID string, decide JoinDecision) (*models.TentMember, bool, error) {
	var (
		member   *models.TentMember
		inserted bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		if err := tx.GetContext(ctx, &locked, `SELECT id FROM tents WHERE id = ? FOR UPDATE`, tentID); err != nil {
			return notFound(err, "tent")
		}

		members := []models.TentMember{}
		if err := tx.SelectContext(ctx, &members, `
			SELECT tent_id, user_id, role, joined_at FROM tent_members WHERE tent_id = ?`, tentID); err != nil {
			return fmt.Errorf("failed to list tent members: %w", err)
		}

		role, err := decide(members)
		if err != nil {
			return err
		}
		if role == "" {
			for i := range members {
				if members[i].UserID == userID {
					member = &members[i]
				}
			}
			return nil
		}

		now := s.unix()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tent_members (tent_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			tentID, userID, role, now); err != nil {
			return fmt.Errorf("failed to add user to tent: %w", err)
		}
		member = &models.TentMember{TentID: tentID, UserID: userID, Role: role, JoinedAt: now}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return member, inserted, nil
}

// UpdateTent saves name and description.
func (s *Store) UpdateTent(ctx context.Context, tent *models.Tent) error {
	tent.UpdatedAt = s.unix()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tents SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		tent.Name, tent.Description, tent.UpdatedAt, tent.ID)
	if err != nil {
		return fmt.Errorf("failed to update tent: %w", err)
	}
	return mustAffect(res, "tent")
}

// UpdateInviteCode replaces a tent's invite code.
func (s *Store) UpdateInviteCode(ctx context.Context, tentID, code string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tents SET invite_code = ?, updated_at = ? WHERE id = ?`, code, s.unix(), tentID)
	if isDuplicate(err) {
		return fmt.Errorf("invite code %s: %w", code, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update invite code: %w", err)
	}
	return mustAffect(res, "tent")
}

// DeleteTent removes a tent; members, invoices and inquiries cascade.
func (s *Store) DeleteTent(ctx context.Context, tentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tents WHERE id = ?`, tentID)
	if err != nil {
		return fmt.Errorf("failed to delete tent: %w", err)
	}
	return mustAffect(res, "tent")
}

// RemoveMember drops userID from a tent and deletes the tent when it becomes
// empty. When the creator leaves a tent that still has members, the earliest
// remaining member becomes its creator. It returns the number of members left.
func (s *Store) RemoveMember(ctx context.Context, tentID, userID string) (int, error) {
	remaining := 0
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tent_members WHERE tent_id = ? AND user_id = ?`, tentID, userID)
		if err != nil {
			return fmt.Errorf("failed to remove tent member: %w", err)
		}
		if err := mustAffect(res, "membership"); err != nil {
			return err
		}

		if err := tx.GetContext(ctx, &remaining, `SELECT COUNT(*) FROM tent_members WHERE tent_id = ?`, tentID); err != nil {
			return fmt.Errorf("failed to count tent members: %w", err)
		}
		if remaining == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tents WHERE id = ?`, tentID); err != nil {
				return fmt.Errorf("failed to delete empty tent: %w", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tents SET created_by = (
				SELECT user_id FROM tent_members WHERE tent_id = ? ORDER BY joined_at, user_id LIMIT 1
			)
			WHERE id = ? AND created_by = ?`, tentID, tentID, userID)
		if err != nil {
			return fmt.Errorf("failed to transfer tent ownership: %w", err)
		}
		return nil
	})
	return remaining, err
}
