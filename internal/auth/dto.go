package auth

import (
	"strings"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/common/validation"
)

const dateLayout = "2006-01-02"

type RegisterDTO struct {
	Username    string `json:"username" validate:"required,notblank,min=3,max=150"`
	Email       string `json:"email" validate:"required,email"`
	FirstName   string `json:"first_name" validate:"required,notblank,max=100"`
	MiddleName  string `json:"middle_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"required,notblank,max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Password    string `json:"password" validate:"required,strongpassword"`
}

// LoginDTO accepts either the username or the email as identifier.
type LoginDTO struct {
	Identifier string `json:"identifier" validate:"required,notblank"`
	Password   string `json:"password" validate:"required"`
}

type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type ChangePasswordDTO struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,nefield=OldPassword,strongpassword"`
}

type DemoLoginDTO struct {
	Role string `json:"role" validate:"required,oneof=admin manager employee"`
}

func (d RegisterDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d RegisterDTO) BirthDate() (*time.Time, error) {
	if strings.TrimSpace(d.DateOfBirth) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, d.DateOfBirth)
	if err != nil {
		return nil, internal.NewValidationFieldError("date_of_birth", "date_of_birth must use YYYY-MM-DD", internal.ErrCodeInvalidDate)
	}
	return &t, nil
}

func (d LoginDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d RefreshTokenDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d ChangePasswordDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d DemoLoginDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}
