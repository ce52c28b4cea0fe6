package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	userDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/user"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// GetByIdentifier looks a user up by username or, case-insensitively, by email.
func (r *Repository) GetByIdentifier(identifier string) (*user.User, error) {
	var m userDatamodel.User
	err := r.db.
		Where("username = ? OR LOWER(email) = ?", identifier, strings.ToLower(identifier)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by identifier: %w", err)
	}
	return m.ToDomain(), nil
}

func (r *Repository) GetByID(userID int64) (*user.User, error) {
	var m userDatamodel.User
	if err := r.db.First(&m, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return m.ToDomain(), nil
}

func (r *Repository) Create(u *user.User) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userDatamodel.User{}).
			Where("username = ? OR LOWER(email) = ?", u.Username, strings.ToLower(u.Email)).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if count > 0 {
			return internal.ErrUserAlreadyExists
		}

		m := userDatamodel.FromDomain(u)
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		*u = *m.ToDomain()
		return nil
	})
}

// UpdatePassword stores the new hash and bumps token_version in the same row update.
func (r *Repository) UpdatePassword(userID int64, passwordHash string) (*user.User, error) {
	res := r.db.Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash": passwordHash,
			"token_version": gorm.Expr("token_version + 1"),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("update password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, internal.ErrUserNotFound
	}
	return r.GetByID(userID)
}

func (r *Repository) BumpTokenVersion(userID int64) (int, error) {
	res := r.db.Model(&userDatamodel.User{}).
		Where("id = ?", userID).
		Update("token_version", gorm.Expr("token_version + 1"))
	if res.Error != nil {
		return 0, fmt.Errorf("bump token version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, internal.ErrUserNotFound
	}

	u, err := r.GetByID(userID)
	if err != nil {
		return 0, err
	}
	return u.TokenVersion, nil
}
