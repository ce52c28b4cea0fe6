package task

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/events"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
)

// Repository interface defines the data access methods for tasks
type Repository interface {
	Create(ctx context.Context, t *Task) error
	GetByID(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context, f Filter) ([]*Task, int64, error)
	// Update applies p to the task and returns the stored row. It returns
	// ErrStale when p.Expect is set and no longer matches.
	Update(ctx context.Context, id int64, p Patch) (*Task, error)
	// Delete removes the task with its comments and attachment rows and
	// returns the storage keys of the removed attachments.
	Delete(ctx context.Context, id int64) ([]string, error)
	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, taskID int64) ([]*Comment, error)
}

// SummaryReader counts tasks per status. A nil assigneeID counts every task.
type SummaryReader interface {
	StatusCounts(ctx context.Context, assigneeID *int64) (Summary, error)
}

type UserDirectory interface {
	GetByID(userID int64) (*user.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev events.NotificationEvent)
}

type FileRemover interface {
	Remove(key string) error
}

// Service handles task business logic
type Service struct {
	repo      Repository
	summaries SummaryReader
	users     UserDirectory
	notifier  Notifier
	files     FileRemover
	logger    *slog.Logger
}

func NewService(repo Repository, summaries SummaryReader, users UserDirectory, notifier Notifier, files FileRemover, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		summaries: summaries,
		users:     users,
		notifier:  notifier,
		files:     files,
		logger:    logger,
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, s.logger)
}

func (s *Service) CreateTask(ctx context.Context, actor *auth.User, dto CreateTaskDTO) (*Task, error) {
	log := s.log(ctx)

	if err := auth.Authorize(actor, auth.TaskResource{}, auth.ActionCreateTask); err != nil {
		log.Warn("create task denied", "actor_id", actorID(actor), "role", actorRole(actor))
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		log.Info("task validation failed", "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	t := &Task{
		Title:       strings.TrimSpace(dto.Title),
		Description: strings.TrimSpace(dto.Description),
		DocsURL:     dto.DocsURL,
		Status:      StatusOpen,
		Deadline:    dto.Deadline.UTC(),
		Labels:      SplitLabels(JoinLabels(dto.Labels)),
		CreatorID:   actor.ID,
	}

	if dto.AssigneeID != nil {
		if err := s.validateAssignee(*dto.AssigneeID); err != nil {
			log.Info("task assignee rejected", "assignee_id", *dto.AssigneeID, "error", err)
			return nil, err
		}
		assigneeID := *dto.AssigneeID
		t.AssigneeID = &assigneeID
		t.AssignedAt = &now
	}

	if err := s.repo.Create(ctx, t); err != nil {
		log.Error("failed to create task", "error", err, "creator_id", actor.ID)
		return nil, internal.NewInternalError("failed to create task", err)
	}

	log.Info("task created", "task_id", t.ID, "creator_id", actor.ID, "assignee_id", t.AssigneeID)

	if t.AssigneeID != nil {
		s.notifier.Notify(ctx, events.NewTaskAssignedEvent(*t.AssigneeID, t.ID, t.Title))
	}

	return t, nil
}

func (s *Service) GetTask(ctx context.Context, actor *auth.User, id int64) (*Task, error) {
	return s.load(ctx, actor, id, auth.ActionReadTask)
}

// ListTasks never fails authorization: employees simply only see the tasks
// assigned to them.
func (s *Service) ListTasks(ctx context.Context, actor *auth.User, q ListTasksQuery) (*Page, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, err
	}

	if !auth.CanSeeAll(actor) {
		if actor == nil {
			return nil, internal.ErrForbidden
		}
		self := actor.ID
		f.AssigneeID = &self
	}

	tasks, total, err := s.repo.List(ctx, f)
	if err != nil {
		s.log(ctx).Error("failed to list tasks", "error", err)
		return nil, internal.NewInternalError("failed to list tasks", err)
	}
	if tasks == nil {
		tasks = []*Task{}
	}

	return &Page{
		Tasks: tasks,
		Total: total,
		Page:  f.Offset/f.Limit + 1,
		Limit: f.Limit,
	}, nil
}

func (s *Service) UpdateTask(ctx context.Context, actor *auth.User, id int64, dto UpdateTaskDTO) (*Task, error) {
	if _, err := s.load(ctx, actor, id, auth.ActionUpdateTask); err != nil {
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if dto.Empty() {
		return nil, internal.NewValidationError("no fields to update", internal.ErrCodeValidationFailed)
	}

	var p Patch
	if dto.Title != nil {
		title := strings.TrimSpace(*dto.Title)
		p.Title = &title
	}
	if dto.Description != nil {
		description := strings.TrimSpace(*dto.Description)
		p.Description = &description
	}
	p.DocsURL = dto.DocsURL
	if dto.Deadline != nil {
		deadline := dto.Deadline.UTC()
		p.Deadline = &deadline
	}
	if dto.Labels != nil {
		labels := SplitLabels(JoinLabels(*dto.Labels))
		p.Labels = &labels
	}

	t, err := s.apply(ctx, id, p)
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("task updated", "task_id", id, "actor_id", actor.ID)
	return t, nil
}

// UpdateStatus moves the task to newStatus. Admins and the creating manager
// may set any status other than the current one; the assignee may only move
// one step forward. The write only lands while the task still has the status
// and assignee the decision was made on; otherwise it is InvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, actor *auth.User, id int64, newStatus Status) (*Task, error) {
	log := s.log(ctx)

	if !newStatus.Valid() {
		return nil, internal.NewValidationFieldError("status", "status must be one of open, in_progress, completed", internal.ErrCodeInvalidStatus)
	}

	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	res := t.Resource()
	switch {
	case auth.Authorize(actor, res, auth.ActionOverrideStatus) == nil:
		if newStatus == t.Status {
			log.Info("status transition rejected", "task_id", id, "from", t.Status, "to", newStatus)
			return nil, internal.ErrInvalidTransition
		}
	case auth.Authorize(actor, res, auth.ActionChangeStatus) == nil:
		if next, ok := t.Status.Next(); !ok || next != newStatus {
			log.Info("status transition rejected", "task_id", id, "from", t.Status, "to", newStatus, "actor_id", actor.ID)
			return nil, internal.ErrInvalidTransition
		}
	default:
		log.Warn("update status denied", "task_id", id, "actor_id", actorID(actor), "role", actorRole(actor))
		return nil, internal.ErrForbidden
	}

	previous := t.Status
	t, err = s.apply(ctx, id, Patch{Status: &newStatus, Expect: t.Snapshot()})
	if err != nil {
		if errors.Is(err, ErrStale) {
			log.Info("status transition lost a race", "task_id", id, "from", previous, "to", newStatus, "actor_id", actor.ID)
			return nil, internal.ErrInvalidTransition
		}
		return nil, err
	}

	log.Info("task status changed", "task_id", id, "from", previous, "to", newStatus, "actor_id", actor.ID)

	if newStatus == StatusCompleted {
		s.notifier.Notify(ctx, events.NewTaskCompletedEvent(t.CreatorID, t.ID, t.Title, actor.Username))
	}

	return t, nil
}

func (s *Service) CompleteTask(ctx context.Context, actor *auth.User, id int64) (*Task, error) {
	return s.UpdateStatus(ctx, actor, id, StatusCompleted)
}

func (s *Service) Assign(ctx context.Context, actor *auth.User, id, assigneeID int64) (*Task, error) {
	if _, err := s.load(ctx, actor, id, auth.ActionAssignTask); err != nil {
		return nil, err
	}

	if err := s.validateAssignee(assigneeID); err != nil {
		s.log(ctx).Info("task assignee rejected", "task_id", id, "assignee_id", assigneeID, "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	t, err := s.apply(ctx, id, Patch{AssigneeID: &assigneeID, AssignedAt: &now})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("task assigned", "task_id", id, "assignee_id", assigneeID, "actor_id", actor.ID)
	s.notifier.Notify(ctx, events.NewTaskAssignedEvent(assigneeID, t.ID, t.Title))

	return t, nil
}

func (s *Service) UpdateDeadline(ctx context.Context, actor *auth.User, id int64, dto UpdateDeadlineDTO) (*Task, error) {
	if _, err := s.load(ctx, actor, id, auth.ActionSetDeadline); err != nil {
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	deadline := dto.Deadline.UTC()
	t, err := s.apply(ctx, id, Patch{Deadline: &deadline})
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info("task deadline changed", "task_id", id, "deadline", t.Deadline, "actor_id", actor.ID)
	return t, nil
}

func (s *Service) DeleteTask(ctx context.Context, actor *auth.User, id int64) error {
	log := s.log(ctx)

	if _, err := s.load(ctx, actor, id, auth.ActionDeleteTask); err != nil {
		return err
	}

	keys, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrTaskNotFound) {
			return err
		}
		log.Error("failed to delete task", "task_id", id, "error", err)
		return internal.NewInternalError("failed to delete task", err)
	}

	// rows are gone at this point; a leftover file is only wasted space
	for _, key := range keys {
		if err := s.files.Remove(key); err != nil {
			log.Warn("failed to remove attachment file", "task_id", id, "storage_key", key, "error", err)
		}
	}

	log.Info("task deleted", "task_id", id, "actor_id", actor.ID, "attachments_removed", len(keys))
	return nil
}

func (s *Service) AddComment(ctx context.Context, actor *auth.User, id int64, dto CommentDTO) (*Comment, error) {
	t, err := s.load(ctx, actor, id, auth.ActionComment)
	if err != nil {
		return nil, err
	}

	if err := dto.Validate(); err != nil {
		return nil, err
	}

	c := &Comment{
		TaskID:   t.ID,
		AuthorID: actor.ID,
		Body:     strings.TrimSpace(dto.Body),
	}
	if err := s.repo.AddComment(ctx, c); err != nil {
		s.log(ctx).Error("failed to add comment", "task_id", id, "error", err)
		return nil, internal.NewInternalError("failed to add comment", err)
	}

	s.log(ctx).Info("comment added", "task_id", id, "comment_id", c.ID, "author_id", actor.ID)

	for _, recipient := range t.Participants() {
		if recipient == actor.ID {
			continue
		}
		s.notifier.Notify(ctx, events.NewTaskCommentedEvent(recipient, t.ID, t.Title, actor.Username))
	}

	return c, nil
}

func (s *Service) ListComments(ctx context.Context, actor *auth.User, id int64) ([]*Comment, error) {
	if _, err := s.load(ctx, actor, id, auth.ActionReadTask); err != nil {
		return nil, err
	}

	comments, err := s.repo.ListComments(ctx, id)
	if err != nil {
		s.log(ctx).Error("failed to list comments", "task_id", id, "error", err)
		return nil, internal.NewInternalError("failed to list comments", err)
	}
	if comments == nil {
		comments = []*Comment{}
	}
	return comments, nil
}

// Summary counts tasks per status over the same scope ListTasks uses.
func (s *Service) Summary(ctx context.Context, actor *auth.User) (*Summary, error) {
	var scope *int64
	if !auth.CanSeeAll(actor) {
		if actor == nil {
			return nil, internal.ErrForbidden
		}
		self := actor.ID
		scope = &self
	}

	summary, err := s.summaries.StatusCounts(ctx, scope)
	if err != nil {
		s.log(ctx).Error("failed to summarise tasks", "error", err)
		return nil, internal.NewInternalError("failed to summarise tasks", err)
	}
	return &summary, nil
}

// Resource is used by the attachment service to authorise against a task.
func (s *Service) Resource(ctx context.Context, id int64) (*Task, error) {
	return s.find(ctx, id)
}

func (s *Service) find(ctx context.Context, id int64) (*Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, internal.ErrTaskNotFound) {
			return nil, err
		}
		s.log(ctx).Error("failed to load task", "task_id", id, "error", err)
		return nil, internal.NewInternalError("failed to load task", err)
	}
	return t, nil
}

func (s *Service) load(ctx context.Context, actor *auth.User, id int64, action auth.Action) (*Task, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, t.Resource(), action); err != nil {
		s.log(ctx).Warn("task action denied",
			"task_id", id,
			"action", action,
			"actor_id", actorID(actor),
			"role", actorRole(actor))
		return nil, err
	}
	return t, nil
}

func (s *Service) apply(ctx context.Context, id int64, p Patch) (*Task, error) {
	t, err := s.repo.Update(ctx, id, p)
	if err != nil {
		if errors.Is(err, internal.ErrTaskNotFound) || errors.Is(err, ErrStale) {
			return nil, err
		}
		s.log(ctx).Error("failed to update task", "task_id", id, "error", err)
		return nil, internal.NewInternalError("failed to update task", err)
	}
	return t, nil
}

func (s *Service) validateAssignee(assigneeID int64) error {
	u, err := s.users.GetByID(assigneeID)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return internal.NewValidationFieldError("assignee_id", "assignee does not exist", internal.ErrCodeInvalidAssignee)
		}
		return internal.NewInternalError("failed to load assignee", err)
	}
	if !u.IsActive {
		return internal.NewValidationFieldError("assignee_id", "assignee is inactive", internal.ErrCodeInvalidAssignee)
	}
	if u.Role != user.RoleEmployee {
		return internal.NewValidationFieldError("assignee_id", "tasks can only be assigned to employees", internal.ErrCodeInvalidAssignee)
	}
	return nil
}

func actorID(actor *auth.User) int64 {
	if actor == nil {
		return 0
	}
	return actor.ID
}

func actorRole(actor *auth.User) user.Role {
	if actor == nil {
		return ""
	}
	return actor.Role
}
