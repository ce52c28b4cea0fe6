package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"golang.org/x/crypto/bcrypt"
)

// Demo accounts created by the seed command, one per role.
var DemoUsernames = map[user.Role]string{
	user.RoleAdmin:    "demo_admin",
	user.RoleManager:  "demo_manager",
	user.RoleEmployee: "demo_employee",
}

type Service struct {
	userRepo         UserRepository
	tokenGenerator   TokenGenerator
	bcryptCost       int
	demoLoginEnabled bool
	logger           *slog.Logger
}

func NewService(userRepo UserRepository, tokenGen TokenGenerator, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		bcryptCost:     bcryptCost,
		logger:         logger,
	}
}

// WithDemoLogin toggles the passwordless demo login.
func (s *Service) WithDemoLogin(enabled bool) *Service {
	s.demoLoginEnabled = enabled
	return s
}

func (s *Service) Register(dto RegisterDTO) (*user.User, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Info("registration rejected", "error", err)
		return nil, err
	}

	birthDate, err := dto.BirthDate()
	if err != nil {
		return nil, err
	}

	hash, err := s.HashPassword(dto.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	u := &user.User{
		Username:     strings.TrimSpace(dto.Username),
		Email:        strings.ToLower(strings.TrimSpace(dto.Email)),
		FirstName:    strings.TrimSpace(dto.FirstName),
		MiddleName:   strings.TrimSpace(dto.MiddleName),
		LastName:     strings.TrimSpace(dto.LastName),
		DateOfBirth:  birthDate,
		PasswordHash: hash,
		Role:         user.RoleEmployee,
		IsActive:     true,
	}

	if err := s.userRepo.Create(u); err != nil {
		if errors.Is(err, internal.ErrUserAlreadyExists) {
			return nil, err
		}
		s.logger.Error("failed to create user", "username", u.Username, "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user registered", "user_id", u.ID, "username", u.Username)
	return u, nil
}

// Authenticate validates credentials and returns tokens
func (s *Service) Authenticate(dto LoginDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.userRepo.GetByIdentifier(strings.TrimSpace(dto.Identifier))
	if err != nil {
		if !errors.Is(err, internal.ErrUserNotFound) {
			s.logger.Error("failed to load user for login", "error", err)
		}
		return AuthTokens{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.Password)); err != nil {
		s.logger.Info("login failed: password mismatch", "user_id", u.ID)
		return AuthTokens{}, ErrInvalidCredentials
	}

	if !u.IsActive {
		s.logger.Info("login refused for inactive user", "user_id", u.ID)
		return AuthTokens{}, ErrUserInactive
	}

	s.logger.Info("user logged in", "user_id", u.ID, "role", u.Role)
	return s.issue(u)
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	u, err := s.currentUser(claims)
	if err != nil {
		return AuthTokens{}, err
	}

	return s.issue(u)
}

// Logout invalidates every token issued to the user so far.
func (s *Service) Logout(userID int64) error {
	version, err := s.userRepo.BumpTokenVersion(userID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return err
		}
		return internal.NewInternalError("failed to log out", err)
	}
	s.logger.Info("user logged out", "user_id", userID, "token_version", version)
	return nil
}

// ChangePassword replaces the password, invalidates outstanding tokens and
// returns a fresh pair.
func (s *Service) ChangePassword(userID int64, dto ChangePasswordDTO) (AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return AuthTokens{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(dto.OldPassword)); err != nil {
		s.logger.Info("change password rejected: old password mismatch", "user_id", userID)
		return AuthTokens{}, internal.NewValidationFieldError("old_password", "old password is incorrect", internal.ErrCodeInvalidPassword)
	}

	hash, err := s.HashPassword(dto.NewPassword)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to hash password", err)
	}

	updated, err := s.userRepo.UpdatePassword(userID, hash)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to update password", err)
	}

	s.logger.Info("password changed", "user_id", userID, "token_version", updated.TokenVersion)
	return s.issue(updated)
}

func (s *Service) DemoLogin(dto DemoLoginDTO) (AuthTokens, error) {
	if !s.demoLoginEnabled {
		return AuthTokens{}, internal.ErrFeatureDisabled
	}
	if err := dto.Validate(); err != nil {
		return AuthTokens{}, err
	}

	role := user.ParseRole(dto.Role)
	u, err := s.userRepo.GetByIdentifier(DemoUsernames[role])
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			s.logger.Warn("demo user missing, run the seed command", "role", role)
		}
		return AuthTokens{}, err
	}
	if !u.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	s.logger.Info("demo login", "user_id", u.ID, "role", role)
	return s.issue(u)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateAccessToken(tokenString)
}

// Verify resolves an access token to the principal it was issued for. Tokens
// of deactivated users and tokens issued before the last logout or password
// change are rejected.
func (s *Service) Verify(tokenString string) (*User, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}

	u, err := s.currentUser(claims)
	if err != nil {
		return nil, err
	}
	return PrincipalFrom(u), nil
}

// VerifySession is Verify for long lived connections: it returns the user id
// and the token version the connection was opened with, for CheckSession.
func (s *Service) VerifySession(tokenString string) (int64, int, error) {
	claims, err := s.tokenGenerator.ValidateAccessToken(tokenString)
	if err != nil {
		return 0, 0, err
	}

	u, err := s.currentUser(claims)
	if err != nil {
		return 0, 0, err
	}
	return u.ID, u.TokenVersion, nil
}

// CheckSession fails once the user logged out, changed password or was
// deactivated after a connection was opened with tokenVersion. The access
// token itself may have expired by then.
func (s *Service) CheckSession(userID int64, tokenVersion int) error {
	_, err := s.activeUser(userID, tokenVersion)
	return err
}

func (s *Service) currentUser(claims *Claims) (*user.User, error) {
	userID, err := claims.ID64()
	if err != nil {
		return nil, ErrInvalidToken
	}
	return s.activeUser(userID, claims.TokenVersion)
}

func (s *Service) activeUser(userID int64, tokenVersion int) (*user.User, error) {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if !u.IsActive {
		return nil, ErrUserInactive
	}
	if u.TokenVersion != tokenVersion {
		s.logger.Info("token revoked", "user_id", userID, "token_version", tokenVersion, "current_version", u.TokenVersion)
		return nil, ErrInvalidToken
	}
	return u, nil
}

func (s *Service) issue(u *user.User) (AuthTokens, error) {
	accessToken, expiresAt, err := s.tokenGenerator.GenerateAccessToken(u)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate access token", err)
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(u)
	if err != nil {
		return AuthTokens{}, internal.NewInternalError("failed to generate refresh token", err)
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    expiresAt,
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
	}, nil
}

// HashPassword creates a bcrypt hash of the password
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}
