package model

// Role is the authorization role carried in access tokens.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// IsOperator reports whether the role may receive admin alerts and hold a realtime session.
func (r Role) IsOperator() bool {
	switch r {
	case RoleStaff, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Principal is an authenticated identity.
type Principal struct {
	ID   int64 `db:"id" json:"id"`
	Role Role  `db:"role" json:"role"`
}

// Auth error codes returned in the error envelope
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeTokenInvalid = "TOKEN_INVALID"
)
