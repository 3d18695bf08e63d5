package invoiceService

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nikhil/creatortent/internal/currency"
	"github.com/nikhil/creatortent/internal/models"
)

const (
	maxItems          = 100
	maxDescriptionLen = 500
	maxNotesLen       = 2000

	// Column limits: quantity DECIMAL(12,2), money DECIMAL(14,2).
	moneyPlaces = 2
	maxQuantity = 9999999999.99
	maxMoney    = 999999999999.99
)

var (
	ErrInvalidInvoice    = errors.New("invalid invoice")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("invoice can only be edited while draft or rejected")
	ErrNotDeletable      = errors.New("only draft invoices can be deleted")
	ErrSelfApproval      = errors.New("only the other tent member can approve or reject an invoice")
)

// transitions lists the statuses reachable from each status through the
// status endpoint. Rejected invoices return to draft by being edited.
var transitions = map[string][]string{
	models.InvoiceDraft:           {models.InvoicePendingApproval, models.InvoiceCancelled},
	models.InvoicePendingApproval: {models.InvoiceApproved, models.InvoiceRejected, models.InvoiceCancelled},
	models.InvoiceApproved:        {models.InvoicePaid, models.InvoiceCancelled},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates that actor may move inv to status to.
func CheckTransition(inv *models.Invoice, actorID, to string) error {
	if !CanTransition(inv.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, to)
	}
	if (to == models.InvoiceApproved || to == models.InvoiceRejected) && actorID == inv.CreatedBy {
		return ErrSelfApproval
	}
	return nil
}

// InvoiceRequest is the body of create and update calls.
type InvoiceRequest struct {
	InvoiceNumber string        `json:"invoice_number"`
	ClientName    string        `json:"client_name"`
	ClientEmail   string        `json:"client_email"`
	Currency      string        `json:"currency"`
	IssueDate     int64         `json:"issue_date"`
	DueDate       int64         `json:"due_date"`
	TaxRate       float64       `json:"tax_rate"`
	Notes         string        `json:"notes"`
	Items         []ItemRequest `json:"items"`
}

// ItemRequest is one line of an InvoiceRequest.
type ItemRequest struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInvoice, fmt.Sprintf(format, args...))
}

// Apply validates req and copies it onto inv, recomputing totals.
func (req InvoiceRequest) Apply(inv *models.Invoice) error {
	code, err := currency.Normalize(req.Currency)
	if err != nil {
		return invalid("%v", err)
	}
	if strings.TrimSpace(req.ClientName) == "" {
		return invalid("client_name is required")
	}
	if len(req.Items) == 0 {
		return invalid("at least one item is required")
	}
	if len(req.Items) > maxItems {
		return invalid("at most %d items are allowed", maxItems)
	}
	if req.TaxRate < 0 || req.TaxRate > 100 {
		return invalid("tax_rate must be between 0 and 100")
	}
	if !hasPlaces(req.TaxRate, moneyPlaces) {
		return invalid("tax_rate must have at most %d decimal places", moneyPlaces)
	}
	if req.IssueDate <= 0 {
		return invalid("issue_date is required")
	}
	if req.DueDate < req.IssueDate {
		return invalid("due_date must not be before issue_date")
	}
	if len(req.Notes) > maxNotesLen {
		return invalid("notes must be at most %d characters", maxNotesLen)
	}

	items := make([]models.InvoiceItem, 0, len(req.Items))
	for i, it := range req.Items {
		desc := strings.TrimSpace(it.Description)
		switch {
		case desc == "" || len(desc) > maxDescriptionLen:
			return invalid("item %d: description is required and must be at most %d characters", i+1, maxDescriptionLen)
		case it.Quantity <= 0:
			return invalid("item %d: quantity must be positive", i+1)
		case it.Quantity > maxQuantity || !hasPlaces(it.Quantity, moneyPlaces):
			return invalid("item %d: quantity must be at most %.2f with %d decimal places", i+1, maxQuantity, moneyPlaces)
		case it.UnitPrice < 0:
			return invalid("item %d: unit_price must not be negative", i+1)
		case it.UnitPrice > maxMoney || !hasPlaces(it.UnitPrice, moneyPlaces):
			return invalid("item %d: unit_price must be at most %.2f with %d decimal places", i+1, maxMoney, moneyPlaces)
		}
		items = append(items, models.InvoiceItem{Description: desc, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	inv.ClientName = strings.TrimSpace(req.ClientName)
	inv.ClientEmail = strings.TrimSpace(req.ClientEmail)
	inv.Currency = code
	inv.IssueDate = req.IssueDate
	inv.DueDate = req.DueDate
	inv.TaxRate = req.TaxRate
	inv.Notes = req.Notes
	inv.Items = items
	if n := strings.TrimSpace(req.InvoiceNumber); n != "" {
		inv.InvoiceNumber = n
	}
	ComputeTotals(inv)
	if inv.Total > maxMoney {
		return invalid("total must be at most %.2f", maxMoney)
	}
	return nil
}

// hasPlaces reports whether v carries no more than places decimals, so it
// is stored exactly and totals computed here match a reloaded row.
func hasPlaces(v float64, places int) bool {
	scaled := v * math.Pow(10, float64(places))
	return math.Abs(scaled-math.Round(scaled)) < 1e-6
}

// ComputeTotals fills item amounts, subtotal, tax and total, each rounded to cents.
func ComputeTotals(inv *models.Invoice) {
	var subtotal float64
	for i := range inv.Items {
		item := &inv.Items[i]
		item.Amount = currency.RoundTo(item.Quantity*item.UnitPrice, 2)
		subtotal += item.Amount
	}
	inv.Subtotal = currency.RoundTo(subtotal, 2)
	inv.TaxAmount = currency.RoundTo(inv.Subtotal*inv.TaxRate/100, 2)
	inv.Total = currency.RoundTo(inv.Subtotal+inv.TaxAmount, 2)
}

// StatusSummary is one row of the tent invoice summary.
type StatusSummary struct {
	models.InvoiceStatusTotal
	Formatted string `json:"formatted"`
}

// Summary groups a tent's totals and sums what is still owed per currency.
type Summary struct {
	ByStatus    []StatusSummary   `json:"by_status"`
	Outstanding map[string]string `json:"outstanding"`
	Paid        map[string]string `json:"paid"`
}

// Summarize formats per-status totals with the currency formatter.
func Summarize(totals []models.InvoiceStatusTotal) Summary {
	s := Summary{
		ByStatus:    make([]StatusSummary, 0, len(totals)),
		Outstanding: map[string]string{},
		Paid:        map[string]string{},
	}
	outstanding := map[string]float64{}
	paid := map[string]float64{}
	for _, t := range totals {
		s.ByStatus = append(s.ByStatus, StatusSummary{InvoiceStatusTotal: t, Formatted: currency.Format(t.Total, t.Currency)})
		switch t.Status {
		case models.InvoicePendingApproval, models.InvoiceApproved:
			outstanding[t.Currency] += t.Total
		case models.InvoicePaid:
			paid[t.Currency] += t.Total
		}
	}
	for code, v := range outstanding {
		s.Outstanding[code] = currency.Format(v, code)
	}
	for code, v := range paid {
		s.Paid[code] = currency.Format(v, code)
	}
	return s
}
