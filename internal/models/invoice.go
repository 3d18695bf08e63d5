package models

// Invoice statuses.
const (
	InvoiceDraft           = "draft"
	InvoicePendingApproval = "pending_approval"
	InvoiceApproved        = "approved"
	InvoiceRejected        = "rejected"
	InvoicePaid            = "paid"
	InvoiceCancelled       = "cancelled"
)

// Invoice belongs to a tent and is built by one member for the other to approve.
type Invoice struct {
	ID            string        `json:"id" db:"id"`
	TentID        string        `json:"tent_id" db:"tent_id"`
	CreatedBy     string        `json:"created_by" db:"created_by"`
	InvoiceNumber string        `json:"invoice_number" db:"invoice_number"`
	ClientName    string        `json:"client_name" db:"client_name"`
	ClientEmail   string        `json:"client_email" db:"client_email"`
	Currency      string        `json:"currency" db:"currency"`
	IssueDate     int64         `json:"issue_date" db:"issue_date"`
	DueDate       int64         `json:"due_date" db:"due_date"`
	Status        string        `json:"status" db:"status"`
	TaxRate       float64       `json:"tax_rate" db:"tax_rate"`
	Subtotal      float64       `json:"subtotal" db:"subtotal"`
	TaxAmount     float64       `json:"tax_amount" db:"tax_amount"`
	Total         float64       `json:"total" db:"total"`
	Notes         string        `json:"notes" db:"notes"`
	CreatedAt     int64         `json:"created_at" db:"created_at"`
	UpdatedAt     int64         `json:"updated_at" db:"updated_at"`
	Items         []InvoiceItem `json:"items" db:"-"`
}

// InvoiceItem is one line on an invoice. Amount is quantity × unit price,
// rounded to cents.
type InvoiceItem struct {
	ID          string  `json:"id" db:"id"`
	InvoiceID   string  `json:"invoice_id" db:"invoice_id"`
	Position    int     `json:"position" db:"position"`
	Description string  `json:"description" db:"description"`
	Quantity    float64 `json:"quantity" db:"quantity"`
	UnitPrice   float64 `json:"unit_price" db:"unit_price"`
	Amount      float64 `json:"amount" db:"amount"`
}

// InvoiceStatusTotal aggregates invoices of one status and currency.
type InvoiceStatusTotal struct {
	Status   string  `json:"status" db:"status"`
	Currency string  `json:"currency" db:"currency"`
	Count    int     `json:"count" db:"count"`
	Total    float64 `json:"total" db:"total"`
}
