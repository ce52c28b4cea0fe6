package attachment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/pkg/logger"
	"github.com/spf13/afero"
)

const formField = "file"

type ServiceAPI interface {
	Upload(ctx context.Context, actor *auth.User, taskID int64, up Upload) (*Attachment, error)
	List(ctx context.Context, actor *auth.User, taskID int64) ([]*Attachment, error)
	Open(ctx context.Context, actor *auth.User, taskID, id int64) (*Attachment, afero.File, error)
	Delete(ctx context.Context, actor *auth.User, taskID, id int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	maxBytes int64
}

func NewHandler(service ServiceAPI, maxBytes int64) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
		maxBytes:    maxBytes,
	}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.scope(w, r, "Upload")
	if !ok {
		return
	}

	if h.maxBytes > 0 {
		// room for the multipart envelope around the file
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	}

	reader, err := r.MultipartReader()
	if err != nil {
		h.HandleServiceError(w, r, internal.NewValidationFieldError(formField, "request must be multipart/form-data", internal.ErrCodeInvalidFile))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.Logger.Info("Upload: malformed multipart body", "error", err)
			h.HandleServiceError(w, r, tooLargeOr(err, internal.NewValidationFieldError(formField, "malformed multipart body", internal.ErrCodeInvalidFile)))
			return
		}
		if part.FormName() != formField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		a, err := h.Service.Upload(r.Context(), actor, taskID, Upload{
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Body:        part,
		})
		_ = part.Close()
		if err != nil {
			h.HandleServiceError(w, r, tooLargeOr(err, err))
			return
		}

		h.Logger.Info("Upload: attachment stored", "task_id", taskID, "attachment_id", a.ID, "user_id", actor.ID)
		h.WriteJSON(w, http.StatusCreated, a)
		return
	}

	h.HandleServiceError(w, r, internal.NewValidationFieldError(formField, "file is required", internal.ErrCodeInvalidFile))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.scope(w, r, "List")
	if !ok {
		return
	}

	items, err := h.Service.List(r.Context(), actor, taskID)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.scope(w, r, "Download")
	if !ok {
		return
	}
	id, err := transport.ParseIDParam("attachmentID", chi.URLParam(r, "attachmentID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	a, f, err := h.Service.Open(r.Context(), actor, taskID, id)
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", a.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(a.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.Logger.Error("Download: failed to stream attachment", "attachment_id", id, "error", err)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, taskID, ok := h.scope(w, r, "Delete")
	if !ok {
		return
	}
	id, err := transport.ParseIDParam("attachmentID", chi.URLParam(r, "attachmentID"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	if err := h.Service.Delete(r.Context(), actor, taskID, id); err != nil {
		h.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request, op string) (*auth.User, int64, bool) {
	actor, ok := auth.UserFromContext(r.Context())
	if !ok || actor == nil {
		h.Logger.Error(op + ": user not found in context")
		h.HandleServiceError(w, r, internal.ErrInvalidToken)
		return nil, 0, false
	}
	taskID, err := transport.ParseIDParam("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleServiceError(w, r, err)
		return nil, 0, false
	}
	return actor, taskID, true
}

func tooLargeOr(err, fallback error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return internal.NewValidationFieldError(formField, "file exceeds the upload limit", internal.ErrCodeInvalidFile)
	}
	return fallback
}
