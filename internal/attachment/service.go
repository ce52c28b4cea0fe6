package attachment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/spf13/afero"
)

const maxFileNameLength = 255

type Repository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, taskID, id int64) (*Attachment, error)
	ListByTask(ctx context.Context, taskID int64) ([]*Attachment, error)
	Delete(ctx context.Context, id int64) error
}

// TaskLookup loads the task an attachment belongs to.
type TaskLookup interface {
	Resource(ctx context.Context, id int64) (*task.Task, error)
}

type Storage interface {
	Save(key string, r io.Reader) (int64, error)
	Open(key string) (afero.File, error)
	Remove(key string) error
}

type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

type Service struct {
	repo   Repository
	tasks  TaskLookup
	store  Storage
	logger *slog.Logger
}

func NewService(repo Repository, tasks TaskLookup, store Storage, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		tasks:  tasks,
		store:  store,
		logger: logger,
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromOr(ctx, s.logger)
}

func (s *Service) Upload(ctx context.Context, actor *auth.User, taskID int64, up Upload) (*Attachment, error) {
	log := s.log(ctx)

	if _, err := s.authorize(ctx, actor, taskID, auth.ActionUploadAttachment); err != nil {
		return nil, err
	}

	name := cleanFileName(up.FileName)
	if name == "" {
		return nil, internal.NewValidationFieldError("file", "file name is required", internal.ErrCodeInvalidFile)
	}

	key := NewKey(taskID, name)
	size, err := s.store.Save(key, up.Body)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			log.Info("attachment rejected", "task_id", taskID, "reason", "too large")
			return nil, internal.NewValidationFieldError("file", "file exceeds the upload limit", internal.ErrCodeInvalidFile)
		}
		log.Error("failed to store attachment", "task_id", taskID, "error", err)
		return nil, internal.NewInternalError("failed to store attachment", err)
	}
	if size == 0 {
		_ = s.store.Remove(key)
		return nil, internal.NewValidationFieldError("file", "file is empty", internal.ErrCodeInvalidFile)
	}

	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	a := &Attachment{
		TaskID:      taskID,
		UploaderID:  actor.ID,
		FileName:    name,
		StorageKey:  key,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if rmErr := s.store.Remove(key); rmErr != nil {
			log.Warn("failed to remove orphaned attachment file", "storage_key", key, "error", rmErr)
		}
		log.Error("failed to record attachment", "task_id", taskID, "error", err)
		return nil, internal.NewInternalError("failed to record attachment", err)
	}

	log.Info("attachment uploaded", "task_id", taskID, "attachment_id", a.ID, "size_bytes", size, "uploader_id", actor.ID)
	return a, nil
}

func (s *Service) List(ctx context.Context, actor *auth.User, taskID int64) ([]*Attachment, error) {
	if _, err := s.authorize(ctx, actor, taskID, auth.ActionReadTask); err != nil {
		return nil, err
	}

	items, err := s.repo.ListByTask(ctx, taskID)
	if err != nil {
		s.log(ctx).Error("failed to list attachments", "task_id", taskID, "error", err)
		return nil, internal.NewInternalError("failed to list attachments", err)
	}
	if items == nil {
		items = []*Attachment{}
	}
	return items, nil
}

// Open returns the attachment metadata with its content. The caller closes
// the file.
func (s *Service) Open(ctx context.Context, actor *auth.User, taskID, id int64) (*Attachment, afero.File, error) {
	if _, err := s.authorize(ctx, actor, taskID, auth.ActionReadTask); err != nil {
		return nil, nil, err
	}

	a, err := s.find(ctx, taskID, id)
	if err != nil {
		return nil, nil, err
	}

	f, err := s.store.Open(a.StorageKey)
	if err != nil {
		s.log(ctx).Error("attachment file missing", "attachment_id", id, "storage_key", a.StorageKey, "error", err)
		return nil, nil, internal.ErrAttachmentNotFound
	}
	return a, f, nil
}

// Delete is allowed to whoever may manage attachments on the task, and to the
// uploader while they can still see the task.
func (s *Service) Delete(ctx context.Context, actor *auth.User, taskID, id int64) error {
	log := s.log(ctx)

	t, err := s.authorize(ctx, actor, taskID, auth.ActionReadTask)
	if err != nil {
		return err
	}

	a, err := s.find(ctx, taskID, id)
	if err != nil {
		return err
	}

	if a.UploaderID != actor.ID {
		if err := auth.Authorize(actor, t.Resource(), auth.ActionDeleteAttachment); err != nil {
			log.Warn("attachment delete denied", "attachment_id", id, "actor_id", actor.ID)
			return err
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, internal.ErrAttachmentNotFound) {
			return err
		}
		log.Error("failed to delete attachment", "attachment_id", id, "error", err)
		return internal.NewInternalError("failed to delete attachment", err)
	}

	if err := s.store.Remove(a.StorageKey); err != nil {
		log.Warn("failed to remove attachment file", "storage_key", a.StorageKey, "error", err)
	}

	log.Info("attachment deleted", "task_id", taskID, "attachment_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) authorize(ctx context.Context, actor *auth.User, taskID int64, action auth.Action) (*task.Task, error) {
	t, err := s.tasks.Resource(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(actor, t.Resource(), action); err != nil {
		var actorID int64
		if actor != nil {
			actorID = actor.ID
		}
		s.log(ctx).Warn("attachment action denied", "task_id", taskID, "action", action, "actor_id", actorID)
		return nil, err
	}
	return t, nil
}

func (s *Service) find(ctx context.Context, taskID, id int64) (*Attachment, error) {
	a, err := s.repo.GetByID(ctx, taskID, id)
	if err != nil {
		if errors.Is(err, internal.ErrAttachmentNotFound) {
			return nil, err
		}
		s.log(ctx).Error("failed to load attachment", "attachment_id", id, "error", err)
		return nil, internal.NewInternalError("failed to load attachment", err)
	}
	return a, nil
}

// cleanFileName drops any directory part a client sent along and keeps the
// name valid UTF-8 within maxFileNameLength bytes.
func cleanFileName(name string) string {
	name = strings.ToValidUTF8(name, "")
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(filepath.Base("/" + name))
	if name == "/" || name == "." {
		return ""
	}
	if len(name) > maxFileNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		cut := maxFileNameLength - len(ext)
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut] + ext
	}
	return name
}
