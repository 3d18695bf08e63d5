package models

// Notification types.
const (
	NotifyMemberJoined   = "member_joined"
	NotifyMemberLeft     = "member_left"
	NotifyInvoiceCreated = "invoice_created"
	NotifyInvoiceUpdated = "invoice_updated"
	NotifyInvoiceStatus  = "invoice_status"
	NotifyInvoiceDeleted = "invoice_deleted"
	NotifyEmailConnected = "email_connected"
	NotifyEmailDisabled  = "email_disabled"
	NotifyNewInquiry     = "new_inquiry"
	NotifyAutoReplySent  = "auto_reply_sent"
)

// Notification is a message for one user, stored and pushed over the hub.
type Notification struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	TentID    string `json:"tent_id,omitempty" db:"tent_id"`
	Type      string `json:"type" db:"type"`
	Title     string `json:"title" db:"title"`
	Body      string `json:"body" db:"body"`
	Read      bool   `json:"read" db:"is_read"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}
