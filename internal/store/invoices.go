package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nikhil/creatortent/internal/models"
)

const invoiceColumns = `id, tent_id, created_by, invoice_number, client_name, client_email, currency,
	issue_date, due_date, status, tax_rate, subtotal, tax_amount, total,
	COALESCE(notes, '') AS notes, created_at, updated_at`

// InvoiceFilter narrows ListInvoices. Empty Status means every status.
type InvoiceFilter struct {
	TentID string
	Status string
	Limit  int
	Offset int
}

// CreateInvoice inserts an invoice and its items in one transaction.
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = newID()
	}
	now := s.unix()
	inv.CreatedAt, inv.UpdatedAt = now, now

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO invoices (id, tent_id, created_by, invoice_number, client_name, client_email, currency,
				issue_date, due_date, status, tax_rate, subtotal, tax_amount, total, notes, created_at, updated_at)
			VALUES (:id, :tent_id, :created_by, :invoice_number, :client_name, :client_email, :currency,
				:issue_date, :due_date, :status, :tax_rate, :subtotal, :tax_amount, :total, :notes, :created_at, :updated_at)`,
			inv)
		if isDuplicate(err) {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to create invoice: %w", err)
		}
		return insertItems(ctx, tx, inv)
	})
}

func insertItems(ctx context.Context, tx *sqlx.Tx, inv *models.Invoice) error {
	for i := range inv.Items {
		item := &inv.Items[i]
		item.ID = newID()
		item.InvoiceID = inv.ID
		item.Position = i
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, position, description, quantity, unit_price, amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.InvoiceID, item.Position, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}
	return nil
}

// GetInvoice loads an invoice with its items in position order.
func (s *Store) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.GetContext(ctx, &inv, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id); err != nil {
		return nil, notFound(err, "invoice")
	}

	items := []models.InvoiceItem{}
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, invoice_id, position, description, quantity, unit_price, amount
		FROM invoice_items WHERE invoice_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	inv.Items = items
	return &inv, nil
}

// ListInvoices pages through a tent's invoices, newest first. Items are not loaded.
func (s *Store) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error) {
	where := `WHERE tent_id = ?`
	args := []interface{}{f.TentID}
	if f.Status != "" {
		where += ` AND status = ?`
		args = append(args, f.Status)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM invoices `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	invoices := []models.Invoice{}
	err := s.db.SelectContext(ctx, &invoices,
		`SELECT `+invoiceColumns+` FROM invoices `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, total, nil
}

// UpdateInvoice rewrites an invoice's editable fields and replaces its items.
// The write only applies while the row still holds from, so an edit racing a
// status change surfaces as ErrConflict instead of undoing it.
func (s *Store) UpdateInvoice(ctx context.Context, inv *models.Invoice, from string) error {
	inv.UpdatedAt = s.unix()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE invoices SET invoice_number = ?, client_name = ?, client_email = ?, currency = ?,
				issue_date = ?, due_date = ?, status = ?, tax_rate = ?, subtotal = ?,
				tax_amount = ?, total = ?, notes = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			inv.InvoiceNumber, inv.ClientName, inv.ClientEmail, inv.Currency,
			inv.IssueDate, inv.DueDate, inv.Status, inv.TaxRate, inv.Subtotal,
			inv.TaxAmount, inv.Total, inv.Notes, inv.UpdatedAt,
			inv.ID, from)
		if isDuplicate(err) {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to verify invoice change: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("invoice %s is no longer %s: %w", inv.ID, from, ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, inv.ID); err != nil {
			return fmt.Errorf("failed to clear invoice items: %w", err)
		}
		return insertItems(ctx, tx, inv)
	})
}

// UpdateInvoiceStatus moves an invoice from one status to another. The
// update only applies while the row still holds from, so a concurrent
// transition surfaces as ErrConflict.
func (s *Store) UpdateInvoiceStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, s.unix(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to verify invoice status change: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invoice %s is no longer %s: %w", id, from, ErrConflict)
	}
	return nil
}

// DeleteInvoice removes an invoice; items cascade.
func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return mustAffect(res, "invoice")
}

// NextInvoiceNumber returns the next INV-YYYYMM-NNNN number for a tent in
// the month of at.
func (s *Store) NextInvoiceNumber(ctx context.Context, tentID string, at time.Time) (string, error) {
	prefix := fmt.Sprintf("INV-%s-", at.UTC().Format("200601"))

	var last int
	err := s.db.GetContext(ctx, &last, `
		SELECT COALESCE(MAX(CAST(SUBSTRING(invoice_number, ?) AS UNSIGNED)), 0)
		FROM invoices WHERE tent_id = ? AND invoice_number LIKE ?`,
		len(prefix)+1, tentID, prefix+"%")
	if err != nil {
		return "", fmt.Errorf("failed to read invoice numbers: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, last+1), nil
}

// InvoiceTotals sums a tent's invoices per status and currency.
func (s *Store) InvoiceTotals(ctx context.Context, tentID string) ([]models.InvoiceStatusTotal, error) {
	totals := []models.InvoiceStatusTotal{}
	err := s.db.SelectContext(ctx, &totals, `
		SELECT status, currency, COUNT(*) AS count, COALESCE(SUM(total), 0) AS total
		FROM invoices WHERE tent_id = ?
		GROUP BY status, currency
		ORDER BY status, currency`, tentID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum invoices: %w", err)
	}
	return totals, nil
}
