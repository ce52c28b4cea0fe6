package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
)

type contextKey string

const ContextUserKey contextKey = "auth_user"

// User is the authenticated principal attached to a request.
type User struct {
	ID       int64     `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     user.Role `json:"role"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == user.RoleAdmin
}

func (u *User) IsManager() bool {
	return u != nil && u.Role == user.RoleManager
}

func (u *User) IsEmployee() bool {
	return u != nil && u.Role == user.RoleEmployee
}

func PrincipalFrom(u *user.User) *User {
	return &User{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

func UserFromContext(ctx context.Context) (*User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(ContextUserKey).(*User)
	return u, ok && u != nil
}

func ContextWithUser(ctx context.Context, u *User) context.Context {
	ctx = context.WithValue(ctx, ContextUserKey, u)
	return internal.ContextWithUserID(ctx, u.ID)
}

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims represents JWT token claims
type Claims struct {
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Role         user.Role `json:"role"`
	TokenVersion int       `json:"token_version"`
	TokenType    TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

type AuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         user.Role `json:"role"`
}

// TokenGenerator creates and parses signed tokens.
type TokenGenerator interface {
	GenerateAccessToken(u *user.User) (token string, expiresAt time.Time, err error)
	GenerateRefreshToken(u *user.User) (token string, err error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

// UserRepository is the slice of user storage the auth flows need.
type UserRepository interface {
	GetByIdentifier(identifier string) (*user.User, error)
	GetByID(userID int64) (*user.User, error)
	Create(u *user.User) error
	UpdatePassword(userID int64, passwordHash string) (*user.User, error)
	BumpTokenVersion(userID int64) (int, error)
}

var (
	ErrInvalidCredentials = internal.ErrInvalidCredentials
	ErrInvalidToken       = internal.ErrInvalidToken
	ErrTokenExpired       = internal.ErrTokenExpired
	ErrUserInactive       = internal.ErrUserInactive
)
