package attachment

import (
	"time"

	taskDatamodel "github.com/ojhankit/team-collaboration-sys-backend/internal/core/datamodel/task"
)

type Attachment struct {
	ID          int64     `json:"id"`
	TaskID      int64     `json:"task_id"`
	UploaderID  int64     `json:"uploader_id"`
	FileName    string    `json:"file_name"`
	StorageKey  string    `json:"-"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func ToDataModel(a *Attachment) *taskDatamodel.Attachment {
	return &taskDatamodel.Attachment{
		ID:          a.ID,
		TaskID:      a.TaskID,
		UploaderID:  a.UploaderID,
		FileName:    a.FileName,
		StorageKey:  a.StorageKey,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		UploadedAt:  a.UploadedAt,
	}
}

func FromDataModel(m *taskDatamodel.Attachment) *Attachment {
	return &Attachment{
		ID:          m.ID,
		TaskID:      m.TaskID,
		UploaderID:  m.UploaderID,
		FileName:    m.FileName,
		StorageKey:  m.StorageKey,
		ContentType: m.ContentType,
		SizeBytes:   m.SizeBytes,
		UploadedAt:  m.UploadedAt,
	}
}
