package task

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
)

type ServiceAPI interface {
	CreateTask(ctx context.Context, actor *auth.User, dto CreateTaskDTO) (*Task, error)
	GetTask(ctx context.Context, actor *auth.User, id int64) (*Task, error)
	ListTasks(ctx context.Context, actor *auth.User, q ListTasksQuery) (*Page, error)
	UpdateTask(ctx context.Context, actor *auth.User, id int64, dto UpdateTaskDTO) (*Task, error)
	UpdateStatus(ctx context.Context, actor *auth.User, id int64, newStatus Status) (*Task, error)
	CompleteTask(ctx context.Context, actor *auth.User, id int64) (*Task, error)
	Assign(ctx context.Context, actor *auth.User, id, assigneeID int64) (*Task, error)
	UpdateDeadline(ctx context.Context, actor *auth.User, id int64, dto UpdateDeadlineDTO) (*Task, error)
	DeleteTask(ctx context.Context, actor *auth.User, id int64) error
	AddComment(ctx context.Context, actor *auth.User, id int64, dto CommentDTO) (*Comment, error)
	ListComments(ctx context.Context, actor *auth.User, id int64) ([]*Comment, error)
	Summary(ctx context.Context, actor *auth.User) (*Summary, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "CreateTask")
	if !ok {
		return
	}

	var dto CreateTaskDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.CreateTask(r.Context(), actor, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Logger.Info("CreateTask: task created", "task_id", t.ID, "user_id", actor.ID)
	h.WriteJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "GetTask")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.Service.GetTask(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "ListTasks")
	if !ok {
		return
	}

	q, err := parseListQuery(r)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	page, err := h.Service.ListTasks(r.Context(), actor, q)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "UpdateTask")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var dto UpdateTaskDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.UpdateTask(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "UpdateStatus")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var dto UpdateStatusDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.UpdateStatus(r.Context(), actor, id, Status(dto.Status))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Logger.Info("UpdateStatus: status changed", "task_id", id, "status", t.Status, "user_id", actor.ID)
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "CompleteTask")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.Service.CompleteTask(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) AssignTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "AssignTask")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var dto AssignDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.Assign(r.Context(), actor, id, dto.AssigneeID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Logger.Info("AssignTask: task assigned", "task_id", id, "assignee_id", dto.AssigneeID, "user_id", actor.ID)
	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateDeadline(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "UpdateDeadline")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var dto UpdateDeadlineDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	t, err := h.Service.UpdateDeadline(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "DeleteTask")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	if err := h.Service.DeleteTask(r.Context(), actor, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.Logger.Info("DeleteTask: task deleted", "task_id", id, "user_id", actor.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "AddComment")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	var dto CommentDTO
	if err := h.DecodeJSON(w, r, &dto); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	c, err := h.Service.AddComment(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "ListComments")
	if !ok {
		return
	}
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	comments, err := h.Service.ListComments(r.Context(), actor, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, comments)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r, "Summary")
	if !ok {
		return
	}

	summary, err := h.Service.Summary(r.Context(), actor)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request, op string) (*auth.User, bool) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok || u == nil {
		h.Logger.Error(op + ": user not found in context")
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return nil, false
	}
	return u, true
}

func (h *Handler) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := transport.ParseIDParam("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return 0, false
	}
	return id, true
}

func parseListQuery(r *http.Request) (ListTasksQuery, error) {
	values := r.URL.Query()
	q := ListTasksQuery{Status: values.Get("status")}

	var err error
	if q.DeadlineBefore, err = parseTimeParam("deadline_before", values.Get("deadline_before")); err != nil {
		return q, err
	}
	if q.DeadlineAfter, err = parseTimeParam("deadline_after", values.Get("deadline_after")); err != nil {
		return q, err
	}

	for name, dst := range map[string]**int64{"assignee_id": &q.AssigneeID, "creator_id": &q.CreatorID} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		id, err := transport.ParseIDParam(name, raw)
		if err != nil {
			return q, err
		}
		*dst = &id
	}

	if raw := values.Get("page"); raw != "" {
		if q.Page, err = strconv.Atoi(raw); err != nil {
			return q, internal.NewValidationFieldError("page", "page must be an integer", internal.ErrCodeValidationFailed)
		}
	}
	if raw := values.Get("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil {
			return q, internal.NewValidationFieldError("limit", "limit must be an integer", internal.ErrCodeValidationFailed)
		}
	}

	return q, nil
}

// parseTimeParam accepts RFC3339 timestamps or plain dates.
func parseTimeParam(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, internal.NewValidationFieldError(name, name+" must be RFC3339 or YYYY-MM-DD", internal.ErrCodeInvalidDate)
}
