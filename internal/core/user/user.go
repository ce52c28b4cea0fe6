package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// ParseRole accepts any casing and falls back to employee for unknown values.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.Valid() {
		return r
	}
	return RoleEmployee
}

type User struct {
	ID           int64
	Username     string
	Email        string
	FirstName    string
	MiddleName   string
	LastName     string
	DateOfBirth  *time.Time
	PasswordHash string
	Role         Role
	TokenVersion int
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
