package models

// User is a registered account. Creators and managers are both users; the
// role they play is decided per tent.
type User struct {
	ID              string `json:"user_id" db:"id"`
	Email           string `json:"email" db:"email"`
	Password        string `json:"password,omitempty" db:"-"`
	PasswordHash    string `json:"-" db:"password_hash"`
	FirstName       string `json:"first_name" db:"first_name"`
	LastName        string `json:"last_name" db:"last_name"`
	ContactNumber   string `json:"contact_number" db:"contact_number"`
	DisplayCurrency string `json:"display_currency" db:"display_currency"`
	ReplySignature  string `json:"reply_signature" db:"reply_signature"`
	CreatedAt       int64  `json:"created_at" db:"created_at"`
	UpdatedAt       int64  `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name, falling back to the email address.
func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	default:
		return u.Email
	}
}
