package models

// User roles.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User represents an authenticated customer or admin.
type User struct {
	BaseModel
	FirstName    string        `json:"first_name"`
	LastName     string        `json:"last_name"`
	Email        string        `gorm:"uniqueIndex" json:"email"`
	Phone        string        `json:"phone"`
	PasswordHash string        `json:"-"`
	Role         string        `gorm:"default:customer" json:"role"`
	Addresses    []UserAddress `json:"addresses,omitempty"`
	Orders       []Order       `json:"orders,omitempty"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
