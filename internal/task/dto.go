package task

import (
	"strings"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/common/validation"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxCommentBody  = 2000
)

type CreateTaskDTO struct {
	Title       string    `json:"title" validate:"required,notblank,max=255"`
	Description string    `json:"description" validate:"required,notblank"`
	DocsURL     *string   `json:"docs_url" validate:"omitempty,url"`
	Deadline    time.Time `json:"deadline" validate:"required"`
	Labels      []string  `json:"labels" validate:"omitempty,dive,max=50"`
	AssigneeID  *int64    `json:"assignee_id" validate:"omitempty,gt=0"`
}

// UpdateTaskDTO is a partial update; nil fields are left unchanged.
type UpdateTaskDTO struct {
	Title       *string    `json:"title" validate:"omitempty,notblank,max=255"`
	Description *string    `json:"description" validate:"omitempty,notblank"`
	DocsURL     *string    `json:"docs_url" validate:"omitempty,url"`
	Deadline    *time.Time `json:"deadline"`
	Labels      *[]string  `json:"labels" validate:"omitempty,dive,max=50"`
}

type UpdateStatusDTO struct {
	Status string `json:"status" validate:"required,oneof=open in_progress completed"`
}

type AssignDTO struct {
	AssigneeID int64 `json:"assignee_id" validate:"required,gt=0"`
}

type UpdateDeadlineDTO struct {
	Deadline time.Time `json:"deadline" validate:"required"`
}

type CommentDTO struct {
	Body string `json:"body" validate:"required,notblank,max=2000"`
}

type ListTasksQuery struct {
	Status         string
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
	AssigneeID     *int64
	CreatorID      *int64
	Page           int
	Limit          int
}

func (d CreateTaskDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d UpdateTaskDTO) Validate() error {
	// an empty docs_url clears the link
	if d.DocsURL != nil && *d.DocsURL == "" {
		d.DocsURL = nil
	}
	if err := validation.Struct(d); err != nil {
		return err
	}
	if d.Deadline != nil && d.Deadline.IsZero() {
		return internal.NewValidationFieldError("deadline", "deadline is required", internal.ErrCodeInvalidDate)
	}
	return nil
}

func (d UpdateTaskDTO) Empty() bool {
	return d.Title == nil && d.Description == nil && d.DocsURL == nil && d.Deadline == nil && d.Labels == nil
}

func (d UpdateStatusDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d AssignDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d UpdateDeadlineDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

func (d CommentDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

// Filter normalises paging and turns the query into a repository filter.
func (q ListTasksQuery) Filter() (Filter, error) {
	f := Filter{
		DeadlineBefore: q.DeadlineBefore,
		DeadlineAfter:  q.DeadlineAfter,
		AssigneeID:     q.AssigneeID,
		CreatorID:      q.CreatorID,
	}

	v := validation.NewValidator()
	if s := strings.ToLower(strings.TrimSpace(q.Status)); s != "" {
		status := Status(s)
		v.Field("status", s).OneOf(internal.ErrCodeInvalidStatus, string(StatusOpen), string(StatusInProgress), string(StatusCompleted))
		f.Status = &status
	}
	v.Field("deadline_after", q.DeadlineAfter).Custom(func(interface{}) *internal.AppError {
		if q.DeadlineBefore != nil && q.DeadlineAfter != nil && q.DeadlineAfter.After(*q.DeadlineBefore) {
			return internal.NewValidationFieldError("deadline_after", "deadline_after must not be later than deadline_before", internal.ErrCodeInvalidDate)
		}
		return nil
	})
	if err := v.Validate(); err != nil {
		return Filter{}, err
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
