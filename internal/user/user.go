package user

import (
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

// Profile is the public view of a user account.
type Profile struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Role        user.Role `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewProfile(u *user.User) *Profile {
	p := &Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FirstName:  u.FirstName,
		MiddleName: u.MiddleName,
		LastName:   u.LastName,
		Role:       u.Role,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = u.DateOfBirth.Format("2006-01-02")
	}
	return p
}

type Filter struct {
	Role   *user.Role
	Active *bool
	Limit  int
	Offset int
}

type Page struct {
	Users []*Profile `json:"users"`
	Total int64      `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}
