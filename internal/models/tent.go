package models

// Tent roles. A tent holds exactly one of each once it is full.
const (
	RoleManager = "manager"
	RoleClient  = "client"
)

// MaxTentMembers is the participant limit of a tent.
const MaxTentMembers = 2

// Tent is a two-party collaboration workspace.
type Tent struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Description string       `json:"description" db:"description"`
	InviteCode  string       `json:"invite_code" db:"invite_code"`
	CreatedBy   string       `json:"created_by" db:"created_by"`
	CreatedAt   int64        `json:"created_at" db:"created_at"`
	UpdatedAt   int64        `json:"updated_at" db:"updated_at"`
	Members     []TentMember `json:"members,omitempty" db:"-"`
}

// TentMember represents a tent membership with role
type TentMember struct {
	TentID   string `json:"tent_id" db:"tent_id"`
	UserID   string `json:"user_id" db:"user_id"`
	Role     string `json:"role" db:"role"`
	JoinedAt int64  `json:"joined_at" db:"joined_at"`

	// Populated from users when listing members.
	Email     string `json:"email,omitempty" db:"email"`
	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
}

// IsValidRole reports whether role is one of the two tent roles.
func IsValidRole(role string) bool {
	return role == RoleManager || role == RoleClient
}

// OppositeRole returns the role the second participant takes.
func OppositeRole(role string) string {
	if role == RoleManager {
		return RoleClient
	}
	return RoleManager
}

// HasMember reports whether userID belongs to the tent's loaded members.
func (t *Tent) HasMember(userID string) bool {
	return t.Member(userID) != nil
}

// Member returns the membership of userID, or nil.
func (t *Tent) Member(userID string) *TentMember {
	for i := range t.Members {
		if t.Members[i].UserID == userID {
			return &t.Members[i]
		}
	}
	return nil
}

// OtherMember returns the member that is not userID, or nil when alone.
func (t *Tent) OtherMember(userID string) *TentMember {
	for i := range t.Members {
		if t.Members[i].UserID != userID {
			return &t.Members[i]
		}
	}
	return nil
}
