package domain

// UserRole grants access levels to staff users.
type UserRole string

// Possible user roles
const (
	UserRoleAdmin UserRole = "admin"
	UserRoleStaff UserRole = "staff"
)

// User is a staff member operating the booking system. Credentials live with
// the external identity provider; Username links the two.
type User struct {
	Base
	SoftDelete
	Username    string   `json:"username" validate:"required,min=3,max=64"`
	Email       string   `json:"email" validate:"required,email"`
	DisplayName string   `json:"display_name,omitempty" validate:"max=200"`
	Role        UserRole `json:"role" validate:"required,oneof=admin staff"`
	Active      bool     `json:"active"`
}

// Validate checks the user's field rules.
func (u *User) Validate() error {
	return Check(u)
}
