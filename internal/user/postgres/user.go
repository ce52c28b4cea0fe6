package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	userDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/user"
	coreUser "github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/user"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(userID int64) (*coreUser.User, error) {
	return r.getByID(r.db, userID)
}

func (r *UserRepository) List(ctx context.Context, f user.Filter) ([]*coreUser.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&userDatamodel.User{})
	if f.Role != nil {
		q = q.Where("role = ?", string(*f.Role))
	}
	if f.Active != nil {
		q = q.Where("is_active = ?", *f.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	var models []userDatamodel.User
	if err := q.Order("id ASC").Limit(f.Limit).Offset(f.Offset).Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	out := make([]*coreUser.User, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, total, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, userID int64, role coreUser.Role) (*coreUser.User, error) {
	return r.update(ctx, userID, map[string]interface{}{
		"role": string(role),
	})
}

func (r *UserRepository) Deactivate(ctx context.Context, userID int64) (*coreUser.User, error) {
	return r.update(ctx, userID, map[string]interface{}{
		"is_active":     false,
		"token_version": gorm.Expr("token_version + 1"),
	})
}

func (r *UserRepository) update(ctx context.Context, userID int64, fields map[string]interface{}) (*coreUser.User, error) {
	var out *coreUser.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&userDatamodel.User{}).Where("id = ?", userID).Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("update user: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return internal.ErrUserNotFound
		}
		u, err := r.getByID(tx, userID)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (r *UserRepository) getByID(db *gorm.DB, userID int64) (*coreUser.User, error) {
	var m userDatamodel.User
	if err := db.Where("id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return m.ToDomain(), nil
}
