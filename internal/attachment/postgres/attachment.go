package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	taskDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/task"
	"gorm.io/gorm"
)

type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) Create(ctx context.Context, a *attachment.Attachment) error {
	m := attachment.ToDataModel(a)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	*a = *attachment.FromDataModel(m)
	return nil
}

// GetByID only finds the attachment when it belongs to taskID.
func (r *AttachmentRepository) GetByID(ctx context.Context, taskID, id int64) (*attachment.Attachment, error) {
	var m taskDatamodel.Attachment
	err := r.db.WithContext(ctx).
		Where("id = ? AND task_id = ?", id, taskID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return attachment.FromDataModel(&m), nil
}

func (r *AttachmentRepository) ListByTask(ctx context.Context, taskID int64) ([]*attachment.Attachment, error) {
	var models []taskDatamodel.Attachment
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("uploaded_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	out := make([]*attachment.Attachment, 0, len(models))
	for i := range models {
		out = append(out, attachment.FromDataModel(&models[i]))
	}
	return out, nil
}

func (r *AttachmentRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&taskDatamodel.Attachment{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete attachment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return internal.ErrAttachmentNotFound
	}
	return nil
}
