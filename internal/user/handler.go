package user

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
)

type ServiceAPI interface {
	Me(ctx context.Context, actor *auth.User) (*Profile, error)
	List(ctx context.Context, actor *auth.User, q ListUsersQuery) (*Page, error)
	ChangeRole(ctx context.Context, actor *auth.User, userID int64, dto ChangeRoleDTO) (*Profile, error)
	Deactivate(ctx context.Context, actor *auth.User, userID int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.Logger.Error("GetCurrentUser: user not found in context", "ok", ok)
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return
	}

	p, err := h.Service.Me(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, p)
}

// ListUsers handles GET /users?role=&active=&page=&limit=
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.Logger.Error("ListUsers: user not found in context")
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return
	}

	values := r.URL.Query()
	q := ListUsersQuery{Role: values.Get("role")}
	if raw := values.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.HandleServiceError(w, r, internal.NewValidationFieldError("active", "active must be true or false", internal.ErrCodeValidationFailed))
			return
		}
		q.Active = &active
	}
	if raw := values.Get("page"); raw != "" {
		q.Page, _ = strconv.Atoi(raw)
	}
	if raw := values.Get("limit"); raw != "" {
		q.Limit, _ = strconv.Atoi(raw)
	}

	page, err := h.Service.List(r.Context(), actor, q)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, page)
}

// ChangeRole handles PATCH /users/{id}/role
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.Logger.Error("ChangeRole: user not found in context")
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return
	}

	id, err := transport.ParseIDParam("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	var dto ChangeRoleDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	p, err := h.Service.ChangeRole(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Logger.Info("ChangeRole: role updated", "target_id", id, "role", p.Role, "user_id", actor.ID)
	h.WriteJSON(w, http.StatusOK, p)
}

// Deactivate handles DELETE /users/{id}
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.Logger.Error("Deactivate: user not found in context")
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return
	}

	id, err := transport.ParseIDParam("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.Deactivate(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
