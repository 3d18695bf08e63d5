package models

// UserRate is a price a creator quotes for one kind of work. Rates feed
// the auto-reply sent to business inquiries.
type UserRate struct {
	ID          string  `json:"id" db:"id"`
	UserID      string  `json:"user_id" db:"user_id"`
	ServiceType string  `json:"service_type" db:"service_type"`
	Description string  `json:"description" db:"description"`
	Amount      float64 `json:"amount" db:"amount"`
	Currency    string  `json:"currency" db:"currency"`
	CreatedAt   int64   `json:"created_at" db:"created_at"`
	UpdatedAt   int64   `json:"updated_at" db:"updated_at"`
}
