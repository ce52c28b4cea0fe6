package user

import (
	"time"

	coreUser "github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

type User struct {
	ID           int64      `gorm:"primaryKey"`
	Username     string     `gorm:"column:username;uniqueIndex;not null"`
	Email        string     `gorm:"column:email;uniqueIndex;not null"`
	FirstName    string     `gorm:"column:first_name"`
	MiddleName   string     `gorm:"column:middle_name"`
	LastName     string     `gorm:"column:last_name"`
	DateOfBirth  *time.Time `gorm:"column:date_of_birth;type:date"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	Role         string     `gorm:"column:role;not null;default:employee"`
	TokenVersion int        `gorm:"column:token_version;not null;default:0"`
	IsActive     bool       `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) ToDomain() *coreUser.User {
	return &coreUser.User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		MiddleName:   u.MiddleName,
		LastName:     u.LastName,
		DateOfBirth:  u.DateOfBirth,
		PasswordHash: u.PasswordHash,
		Role:         coreUser.ParseRole(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func FromDomain(u *coreUser.User) *User {
	return &User{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FirstName:    u.FirstName,
		MiddleName:   u.MiddleName,
		LastName:     u.LastName,
		DateOfBirth:  u.DateOfBirth,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}
