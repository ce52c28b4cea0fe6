package openapi_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/openapi"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/rest"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const documentPath = "../../../api/openapi.yml"

var _ = Describe("Load", func() {
	It("should load the shipped document", func() {
		doc, err := openapi.Load(context.Background(), documentPath)

		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version()).To(Equal("1.0.0"))
		Expect(doc.Documents(http.MethodPatch, "/tasks/{id}/status")).To(BeTrue())
		Expect(doc.Documents(http.MethodGet, "/ws/notifications")).To(BeTrue())
		Expect(doc.Documents(http.MethodPut, "/tasks/{id}")).To(BeFalse())
	})

	It("should reject an invalid document", func() {
		// Given a document whose operation has no responses
		path := filepath.Join(GinkgoT().TempDir(), "broken.yml")
		Expect(os.WriteFile(path, []byte("openapi: 3.0.3\ninfo:\n  title: x\n  version: '1'\npaths:\n  /x:\n    get: {}\n"), 0o600)).To(Succeed())

		// When
		_, err := openapi.Load(context.Background(), path)

		// Then
		Expect(err).To(HaveOccurred())
	})

	It("should fail for a missing file", func() {
		_, err := openapi.Load(context.Background(), "does-not-exist.yml")

		Expect(err).To(HaveOccurred())
	})

	It("should describe every route the router mounts", func() {
		// Given the router with every handler present
		doc, err := openapi.Load(context.Background(), documentPath)
		Expect(err).NotTo(HaveOccurred())

		router := chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Health:        rest.NewHealthHandler(nil),
			Auth:          auth.NewHandler(nil),
			User:          user.NewHandler(nil),
			Task:          task.NewHandler(nil),
			Attachment:    attachment.NewHandler(nil, 1),
			Notifications: &notification.WebsocketHandler{},
		}, nil)

		// When walking the mounted routes
		var missing []string
		err = chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			path := trimAPIPrefix(route)
			if path == "" {
				return nil
			}
			if !doc.Documents(method, path) {
				missing = append(missing, method+" "+path)
			}
			return nil
		})

		// Then
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeEmpty())
	})
})

// trimAPIPrefix maps a chi route to the document's server-relative path.
// Routes outside /api/v1 are not part of the document.
func trimAPIPrefix(route string) string {
	const prefix = "/api/v1"
	if len(route) <= len(prefix) || route[:len(prefix)] != prefix {
		return ""
	}
	path := route[len(prefix):]
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
