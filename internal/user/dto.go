package user

import (
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/common/validation"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type ChangeRoleDTO struct {
	Role string `json:"role" validate:"required,oneof=admin manager employee"`
}

func (d ChangeRoleDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type ListUsersQuery struct {
	Role   string
	Active *bool
	Page   int
	Limit  int
}

func (q ListUsersQuery) Filter() (Filter, error) {
	f := Filter{Active: q.Active}

	if q.Role != "" {
		v := validation.NewValidator()
		v.Field("role", q.Role).OneOf(internal.ErrCodeValidationFailed, string(user.RoleAdmin), string(user.RoleManager), string(user.RoleEmployee))
		if err := v.Validate(); err != nil {
			return Filter{}, err
		}
		role := user.Role(q.Role)
		f.Role = &role
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit
	return f, nil
}
