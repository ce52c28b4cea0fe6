package attachment_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ojhankit/team-collaboration-sys-backend/internal"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
)

var _ = Describe("AttachmentService", func() {
	var (
		fs      afero.Fs
		repo    *mockRepository
		service *attachment.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		repo = newMockRepository()
		service = attachment.NewService(repo, newStubTasks(), attachment.NewFileStoreOn(fs, 1024), quietLogger())
		ctx = context.Background()
	})

	upload := func(name, body string) attachment.Upload {
		return attachment.Upload{FileName: name, ContentType: "text/plain", Body: strings.NewReader(body)}
	}

	Describe("Upload", func() {
		It("should store the file and record it for the assignee", func() {
			a, err := service.Upload(ctx, employee, 10, upload("report.txt", "numbers"))

			Expect(err).NotTo(HaveOccurred())
			Expect(a.ID).To(BeNumerically(">", 0))
			Expect(a.FileName).To(Equal("report.txt"))
			Expect(a.SizeBytes).To(Equal(int64(7)))
			Expect(a.UploaderID).To(Equal(employee.ID))

			exists, _ := afero.Exists(fs, a.StorageKey)
			Expect(exists).To(BeTrue())
		})

		It("should strip directories from the client file name", func() {
			a, err := service.Upload(ctx, manager, 10, upload(`..\..\etc/passwd`, "x"))

			Expect(err).NotTo(HaveOccurred())
			Expect(a.FileName).To(Equal("passwd"))
		})

		It("should shorten a long multi-byte name without splitting a character", func() {
			a, err := service.Upload(ctx, manager, 10, upload(strings.Repeat("ü", 200)+".txt", "x"))

			Expect(err).NotTo(HaveOccurred())
			Expect(utf8.ValidString(a.FileName)).To(BeTrue())
			Expect(len(a.FileName)).To(BeNumerically("<=", 255))
			Expect(a.FileName).To(HaveSuffix(".txt"))
			Expect(a.FileName).To(HavePrefix("üü"))
		})

		It("should drop invalid UTF-8 from the client file name", func() {
			a, err := service.Upload(ctx, manager, 10, upload("re\xffport.txt", "x"))

			Expect(err).NotTo(HaveOccurred())
			Expect(a.FileName).To(Equal("report.txt"))
		})

		It("should default the content type", func() {
			a, err := service.Upload(ctx, admin, 10, attachment.Upload{FileName: "blob", Body: strings.NewReader("x")})

			Expect(err).NotTo(HaveOccurred())
			Expect(a.ContentType).To(Equal("application/octet-stream"))
		})

		It("should forbid an employee who is not assigned", func() {
			_, err := service.Upload(ctx, employee2, 10, upload("a.txt", "x"))

			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
			Expect(repo.items).To(BeEmpty())
		})

		It("should forbid a manager outside the task", func() {
			_, err := service.Upload(ctx, manager2, 10, upload("a.txt", "x"))

			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
		})

		It("should return not found for an unknown task", func() {
			_, err := service.Upload(ctx, admin, 99, upload("a.txt", "x"))

			Expect(errors.Is(err, internal.ErrTaskNotFound)).To(BeTrue())
		})

		It("should reject an empty file and leave nothing behind", func() {
			_, err := service.Upload(ctx, employee, 10, upload("a.txt", ""))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			entries, _ := afero.ReadDir(fs, "tasks/10")
			Expect(entries).To(BeEmpty())
		})

		It("should reject a file over the limit", func() {
			_, err := service.Upload(ctx, employee, 10, upload("a.txt", strings.Repeat("x", 1025)))

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
		})

		It("should remove the stored file when recording fails", func() {
			repo.createError = errors.New("db down")

			_, err := service.Upload(ctx, employee, 10, upload("a.txt", "x"))

			Expect(err).To(HaveOccurred())
			entries, _ := afero.ReadDir(fs, "tasks/10")
			Expect(entries).To(BeEmpty())
		})
	})

	Describe("Open", func() {
		It("should stream the stored content to readers of the task", func() {
			a, err := service.Upload(ctx, employee, 10, upload("a.txt", "content"))
			Expect(err).NotTo(HaveOccurred())

			meta, f, err := service.Open(ctx, manager2, 10, a.ID)

			Expect(err).NotTo(HaveOccurred())
			defer f.Close()
			Expect(meta.FileName).To(Equal("a.txt"))
			data, _ := io.ReadAll(f)
			Expect(string(data)).To(Equal("content"))
		})

		It("should not serve an attachment through another task", func() {
			a, err := service.Upload(ctx, employee, 10, upload("a.txt", "content"))
			Expect(err).NotTo(HaveOccurred())
			tasks := newStubTasks()
			tasks[11] = &task.Task{ID: 11, CreatorID: manager.ID, Status: task.StatusOpen}
			service = attachment.NewService(repo, tasks, attachment.NewFileStoreOn(fs, 1024), quietLogger())

			_, _, err = service.Open(ctx, admin, 11, a.ID)

			Expect(errors.Is(err, internal.ErrAttachmentNotFound)).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("should let the uploader delete their own file", func() {
			a, err := service.Upload(ctx, employee, 10, upload("a.txt", "x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, employee, 10, a.ID)).To(Succeed())

			exists, _ := afero.Exists(fs, a.StorageKey)
			Expect(exists).To(BeFalse())
			Expect(repo.items).To(BeEmpty())
		})

		It("should let the creating manager delete any file on the task", func() {
			a, err := service.Upload(ctx, employee, 10, upload("a.txt", "x"))
			Expect(err).NotTo(HaveOccurred())

			Expect(service.Delete(ctx, manager, 10, a.ID)).To(Succeed())
		})

		It("should forbid another manager", func() {
			a, err := service.Upload(ctx, employee, 10, upload("a.txt", "x"))
			Expect(err).NotTo(HaveOccurred())

			err = service.Delete(ctx, manager2, 10, a.ID)

			Expect(errors.Is(err, internal.ErrForbidden)).To(BeTrue())
			Expect(repo.items).To(HaveLen(1))
		})

		It("should return not found for an unknown attachment", func() {
			err := service.Delete(ctx, admin, 10, 42)

			Expect(errors.Is(err, internal.ErrAttachmentNotFound)).To(BeTrue())
		})
	})

	Describe("List", func() {
		It("should return an empty list for a task without files", func() {
			items, err := service.List(ctx, employee, 10)

			Expect(err).NotTo(HaveOccurred())
			Expect(items).NotTo(BeNil())
			Expect(items).To(BeEmpty())
		})
	})
})
