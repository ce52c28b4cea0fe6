package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	taskDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/task"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	"gorm.io/gorm"
)

// TaskRepository implements the task.Repository interface using GORM
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	m := task.ToDataModel(t)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	*t = *task.FromDataModel(m)
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, id int64) (*task.Task, error) {
	var m taskDatamodel.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task.FromDataModel(&m), nil
}

func (r *TaskRepository) List(ctx context.Context, f task.Filter) ([]*task.Task, int64, error) {
	q := r.db.WithContext(ctx).Model(&taskDatamodel.Task{})

	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.DeadlineBefore != nil {
		q = q.Where("deadline <= ?", *f.DeadlineBefore)
	}
	if f.DeadlineAfter != nil {
		q = q.Where("deadline >= ?", *f.DeadlineAfter)
	}
	if f.AssigneeID != nil {
		q = q.Where("assignee_id = ?", *f.AssigneeID)
	}
	if f.CreatorID != nil {
		q = q.Where("creator_id = ?", *f.CreatorID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	var models []taskDatamodel.Task
	err := q.Order("deadline ASC").
		Order("id ASC").
		Limit(f.Limit).
		Offset(f.Offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(models))
	for i := range models {
		tasks = append(tasks, task.FromDataModel(&models[i]))
	}
	return tasks, total, nil
}

// Update writes only the columns set in p and reloads the row in the same
// transaction. With p.Expect set the UPDATE also matches on status and
// assignee, so racing writers serialise on the row and the loser gets
// task.ErrStale.
func (r *TaskRepository) Update(ctx context.Context, id int64, p task.Patch) (*task.Task, error) {
	var m taskDatamodel.Task

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&taskDatamodel.Task{}).Where("id = ?", id)
		if p.Expect != nil {
			q = q.Where("status = ?", string(p.Expect.Status))
			if p.Expect.AssigneeID == nil {
				q = q.Where("assignee_id IS NULL")
			} else {
				q = q.Where("assignee_id = ?", *p.Expect.AssigneeID)
			}
		}

		res := q.Updates(patchColumns(p))
		if res.Error != nil {
			return fmt.Errorf("update task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&taskDatamodel.Task{}).Where("id = ?", id).Count(&exists).Error; err != nil {
				return fmt.Errorf("check task: %w", err)
			}
			if exists == 0 {
				return internal.ErrTaskNotFound
			}
			return task.ErrStale
		}

		if err := tx.Where("id = ?", id).First(&m).Error; err != nil {
			return fmt.Errorf("reload task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task.FromDataModel(&m), nil
}

func patchColumns(p task.Patch) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": time.Now().UTC()}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.DocsURL != nil {
		if *p.DocsURL == "" {
			cols["docs_url"] = nil
		} else {
			cols["docs_url"] = *p.DocsURL
		}
	}
	if p.Deadline != nil {
		cols["deadline"] = p.Deadline.UTC()
	}
	if p.Labels != nil {
		cols["labels"] = task.JoinLabels(*p.Labels)
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.AssigneeID != nil {
		cols["assignee_id"] = *p.AssigneeID
	}
	if p.AssignedAt != nil {
		cols["assigned_at"] = p.AssignedAt.UTC()
	}
	return cols
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) ([]string, error) {
	var keys []string

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&taskDatamodel.Attachment{}).
			Where("task_id = ?", id).
			Pluck("storage_key", &keys).Error; err != nil {
			return fmt.Errorf("collect attachments: %w", err)
		}
		if err := tx.Where("task_id = ?", id).Delete(&taskDatamodel.Attachment{}).Error; err != nil {
			return fmt.Errorf("delete attachments: %w", err)
		}
		if err := tx.Where("task_id = ?", id).Delete(&taskDatamodel.Comment{}).Error; err != nil {
			return fmt.Errorf("delete comments: %w", err)
		}

		res := tx.Delete(&taskDatamodel.Task{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return internal.ErrTaskNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *TaskRepository) AddComment(ctx context.Context, c *task.Comment) error {
	m := task.CommentToDataModel(c)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	*c = *task.CommentFromDataModel(m)
	return nil
}

func (r *TaskRepository) ListComments(ctx context.Context, taskID int64) ([]*task.Comment, error) {
	var models []taskDatamodel.Comment
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}

	comments := make([]*task.Comment, 0, len(models))
	for i := range models {
		comments = append(comments, task.CommentFromDataModel(&models[i]))
	}
	return comments, nil
}
