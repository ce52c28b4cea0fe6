package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
)

type Repository interface {
	GetByID(userID int64) (*user.User, error)
	List(ctx context.Context, f Filter) ([]*user.User, int64, error)
	UpdateRole(ctx context.Context, userID int64, role user.Role) (*user.User, error)
	// Deactivate clears is_active and bumps token_version in one statement.
	Deactivate(ctx context.Context, userID int64) (*user.User, error)
}

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, s.logger)
}

func (s *Service) Me(ctx context.Context, actor *auth.User) (*Profile, error) {
	if actor == nil {
		return nil, internal.ErrInvalidToken
	}
	u, err := s.get(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return NewProfile(u), nil
}

// List is open to admins and managers; managers use it to pick assignees.
func (s *Service) List(ctx context.Context, actor *auth.User, q ListUsersQuery) (*Page, error) {
	if !auth.CanSeeAll(actor) {
		return nil, internal.ErrForbidden
	}

	f, err := q.Filter()
	if err != nil {
		return nil, err
	}

	users, total, err := s.repo.List(ctx, f)
	if err != nil {
		s.log(ctx).Error("failed to list users", "error", err)
		return nil, internal.NewInternalError("failed to list users", err)
	}

	profiles := make([]*Profile, 0, len(users))
	for _, u := range users {
		profiles = append(profiles, NewProfile(u))
	}
	return &Page{
		Users: profiles,
		Total: total,
		Page:  f.Offset/f.Limit + 1,
		Limit: f.Limit,
	}, nil
}

func (s *Service) ChangeRole(ctx context.Context, actor *auth.User, userID int64, dto ChangeRoleDTO) (*Profile, error) {
	log := s.log(ctx)

	if err := requireAdmin(actor); err != nil {
		log.Warn("change role denied", "target_id", userID)
		return nil, err
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if actor.ID == userID {
		return nil, internal.NewValidationFieldError("id", "admins cannot change their own role", internal.ErrCodeValidationFailed)
	}

	u, err := s.repo.UpdateRole(ctx, userID, user.Role(dto.Role))
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, err
		}
		log.Error("failed to change role", "target_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to change role", err)
	}

	log.Info("user role changed", "target_id", userID, "role", u.Role, "actor_id", actor.ID)
	return NewProfile(u), nil
}

// Deactivate disables the account. Users are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, actor *auth.User, userID int64) error {
	log := s.log(ctx)

	if err := requireAdmin(actor); err != nil {
		log.Warn("deactivate denied", "target_id", userID)
		return err
	}
	if actor.ID == userID {
		return internal.NewValidationFieldError("id", "admins cannot deactivate themselves", internal.ErrCodeValidationFailed)
	}

	if _, err := s.repo.Deactivate(ctx, userID); err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return err
		}
		log.Error("failed to deactivate user", "target_id", userID, "error", err)
		return internal.NewInternalError("failed to deactivate user", err)
	}

	log.Info("user deactivated", "target_id", userID, "actor_id", actor.ID)
	return nil
}

func (s *Service) get(ctx context.Context, userID int64) (*user.User, error) {
	u, err := s.repo.GetByID(userID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, err
		}
		s.log(ctx).Error("failed to load user", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to load user", err)
	}
	return u, nil
}

func requireAdmin(actor *auth.User) error {
	if actor == nil || !actor.IsAdmin() {
		return internal.ErrForbidden
	}
	return nil
}
