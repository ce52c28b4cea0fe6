package middleware

import (
	"net/http"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
)

// RequireRoles lets the request through only when the authenticated user has
// one of roles. It must run after the auth middleware.
func RequireRoles(roles ...user.Role) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(nil)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := auth.UserFromContext(r.Context())
			if !ok || u == nil {
				base.HandleServiceError(w, r, internal.ErrInvalidToken)
				return
			}

			for _, role := range roles {
				if u.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.From(r.Context()).Warn("access denied: role not allowed",
				"user_id", u.ID,
				"role", u.Role,
				"required_roles", roles)
			base.HandleServiceError(w, r, internal.ErrForbidden)
		})
	}
}
