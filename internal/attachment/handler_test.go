package attachment_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

var _ = Describe("AttachmentHandler", func() {
	var router chi.Router

	principals := map[string]*auth.User{
		"manager":   manager,
		"employee":  employee,
		"employee2": employee2,
	}

	BeforeEach(func() {
		service := attachment.NewService(newMockRepository(), newStubTasks(), attachment.NewFileStoreOn(afero.NewMemMapFs(), 64), quietLogger())
		handler := attachment.NewHandler(service, 64)

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if p, ok := principals[r.Header.Get("X-Test-User")]; ok {
					r = r.WithContext(auth.ContextWithUser(r.Context(), p))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.Get("/tasks/{id}/attachments", handler.List)
		router.Post("/tasks/{id}/attachments", handler.Upload)
		router.Get("/tasks/{id}/attachments/{attachmentID}", handler.Download)
		router.Delete("/tasks/{id}/attachments/{attachmentID}", handler.Delete)
	})

	multipartBody := func(field, name, content string) (*bytes.Buffer, string) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		Expect(mw.WriteField("note", "ignored")).To(Succeed())
		part, err := mw.CreateFormFile(field, name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())
		return body, mw.FormDataContentType()
	}

	upload := func(as, field, name, content string) *httptest.ResponseRecorder {
		body, contentType := multipartBody(field, name, content)
		req := httptest.NewRequest(http.MethodPost, "/tasks/10/attachments", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-Test-User", as)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	do := func(method, path, as string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("X-Test-User", as)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("should upload, list, download and delete an attachment", func() {
		rec := upload("employee", "file", "notes.txt", "hello world")
		Expect(rec.Code).To(Equal(http.StatusCreated))
		var created attachment.Attachment
		Expect(json.Unmarshal(rec.Body.Bytes(), &created)).To(Succeed())
		Expect(created.FileName).To(Equal("notes.txt"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("storage_key"))

		rec = do(http.MethodGet, "/tasks/10/attachments", "manager")
		Expect(rec.Code).To(Equal(http.StatusOK))
		var items []attachment.Attachment
		Expect(json.Unmarshal(rec.Body.Bytes(), &items)).To(Succeed())
		Expect(items).To(HaveLen(1))

		path := "/tasks/10/attachments/" + strconv.FormatInt(created.ID, 10)
		rec = do(http.MethodGet, path, "manager")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("hello world"))
		Expect(rec.Header().Get("Content-Disposition")).To(ContainSubstring("notes.txt"))

		rec = do(http.MethodDelete, path, "employee")
		Expect(rec.Code).To(Equal(http.StatusNoContent))

		rec = do(http.MethodGet, path, "manager")
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("should answer 400 when the file field is missing", func() {
		rec := upload("employee", "document", "notes.txt", "hello")

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer 400 when the body is not multipart", func() {
		req := httptest.NewRequest(http.MethodPost, "/tasks/10/attachments", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-User", "employee")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer 400 for a file over the limit", func() {
		rec := upload("employee", "file", "big.bin", strings.Repeat("x", 65))

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("should answer 403 for an employee outside the task", func() {
		rec := upload("employee2", "file", "notes.txt", "hello")

		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("should answer 401 without a principal", func() {
		rec := do(http.MethodGet, "/tasks/10/attachments", "")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
