package task

import "time"

type Task struct {
	ID          int64      `gorm:"primaryKey"`
	Title       string     `gorm:"column:title;size:255;not null"`
	Description string     `gorm:"column:description;not null"`
	DocsURL     *string    `gorm:"column:docs_url"`
	Status      string     `gorm:"column:status;not null;default:open;index"`
	Deadline    time.Time  `gorm:"column:deadline;not null;index"`
	Labels      string     `gorm:"column:labels"`
	CreatorID   int64      `gorm:"column:creator_id;not null;index"`
	AssigneeID  *int64     `gorm:"column:assignee_id;index"`
	AssignedAt  *time.Time `gorm:"column:assigned_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Task) TableName() string {
	return "tasks"
}

type Attachment struct {
	ID          int64     `gorm:"primaryKey"`
	TaskID      int64     `gorm:"column:task_id;not null;index"`
	UploaderID  int64     `gorm:"column:uploader_id;not null"`
	FileName    string    `gorm:"column:file_name;not null"`
	StorageKey  string    `gorm:"column:storage_key;uniqueIndex;not null"`
	ContentType string    `gorm:"column:content_type"`
	SizeBytes   int64     `gorm:"column:size_bytes"`
	UploadedAt  time.Time `gorm:"column:uploaded_at;autoCreateTime"`
}

func (Attachment) TableName() string {
	return "task_attachments"
}

type Comment struct {
	ID        int64     `gorm:"primaryKey"`
	TaskID    int64     `gorm:"column:task_id;not null;index"`
	AuthorID  int64     `gorm:"column:author_id;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Comment) TableName() string {
	return "task_comments"
}
