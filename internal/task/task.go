package task

import (
	"errors"
	"strings"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	taskDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/task"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Next is the only status an assignee may move the task to.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusOpen:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusCompleted, true
	}
	return "", false
}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DocsURL     *string    `json:"docs_url,omitempty"`
	Status      Status     `json:"status"`
	Deadline    time.Time  `json:"deadline"`
	Labels      []string   `json:"labels"`
	CreatorID   int64      `json:"creator_id"`
	AssigneeID  *int64     `json:"assignee_id,omitempty"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t *Task) Resource() auth.TaskResource {
	return auth.TaskResource{CreatorID: t.CreatorID, AssigneeID: t.AssigneeID}
}

// Participants are the users that hear about comments on the task.
func (t *Task) Participants() []int64 {
	ids := []int64{t.CreatorID}
	if t.AssigneeID != nil && *t.AssigneeID != t.CreatorID {
		ids = append(ids, *t.AssigneeID)
	}
	return ids
}

// ErrStale is returned by Repository.Update when the row no longer matches
// Patch.Expect.
var ErrStale = errors.New("task changed since it was read")

// Patch is a column scoped update: only non-nil fields are written, so
// concurrent patches touching different fields do not undo each other.
type Patch struct {
	Title       *string
	Description *string
	// DocsURL set to "" clears the link.
	DocsURL    *string
	Deadline   *time.Time
	Labels     *[]string
	Status     *Status
	AssigneeID *int64
	AssignedAt *time.Time

	// Expect makes the write conditional on the row still holding this
	// status and assignee.
	Expect *Snapshot
}

// Snapshot is the part of a task a status decision was made on.
type Snapshot struct {
	Status     Status
	AssigneeID *int64
}

func (t *Task) Snapshot() *Snapshot {
	return &Snapshot{Status: t.Status, AssigneeID: t.AssigneeID}
}

type Comment struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Filter struct {
	Status         *Status
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
	AssigneeID     *int64
	CreatorID      *int64
	Limit          int
	Offset         int
}

type Page struct {
	Tasks []*Task `json:"tasks"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type Summary struct {
	Open       int64 `json:"open"`
	InProgress int64 `json:"in_progress"`
	Completed  int64 `json:"completed"`
	Total      int64 `json:"total"`
}

func (s *Summary) Add(status Status, count int64) {
	switch status {
	case StatusOpen:
		s.Open += count
	case StatusInProgress:
		s.InProgress += count
	case StatusCompleted:
		s.Completed += count
	default:
		return
	}
	s.Total += count
}

func ToDataModel(t *Task) *taskDatamodel.Task {
	return &taskDatamodel.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DocsURL:     t.DocsURL,
		Status:      string(t.Status),
		Deadline:    t.Deadline,
		Labels:      JoinLabels(t.Labels),
		CreatorID:   t.CreatorID,
		AssigneeID:  t.AssigneeID,
		AssignedAt:  t.AssignedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func FromDataModel(m *taskDatamodel.Task) *Task {
	return &Task{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		DocsURL:     m.DocsURL,
		Status:      Status(m.Status),
		Deadline:    m.Deadline,
		Labels:      SplitLabels(m.Labels),
		CreatorID:   m.CreatorID,
		AssigneeID:  m.AssigneeID,
		AssignedAt:  m.AssignedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func CommentToDataModel(c *Comment) *taskDatamodel.Comment {
	return &taskDatamodel.Comment{
		ID:        c.ID,
		TaskID:    c.TaskID,
		AuthorID:  c.AuthorID,
		Body:      c.Body,
		CreatedAt: c.CreatedAt,
	}
}

func CommentFromDataModel(m *taskDatamodel.Comment) *Comment {
	return &Comment{
		ID:        m.ID,
		TaskID:    m.TaskID,
		AuthorID:  m.AuthorID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// Labels are stored comma separated.
func JoinLabels(labels []string) string {
	clean := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			clean = append(clean, l)
		}
	}
	return strings.Join(clean, ",")
}

func SplitLabels(raw string) []string {
	out := []string{}
	for _, l := range strings.Split(raw, ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
