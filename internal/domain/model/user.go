package model

import "time"

type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleAdmin  UserRole = "admin"
)

// User is the account that owns orders and memberships.
type User struct {
	ID               int64
	Login            string
	Email            string
	DisplayName      string
	StripeCustomerID string
	Role             UserRole
	PasswordHash     string // bcrypt; empty for accounts without API login
	CreatedAt        time.Time
}

func (u *User) IsAdmin() bool { return u != nil && u.Role == UserRoleAdmin }
