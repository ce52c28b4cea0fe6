package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/attachment"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/notification"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/task"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/middleware"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/transport/swagger"
	userHandler "github.com/ojhankit/team-collaboration-sys-backend/internal/user"
)

// Handlers groups everything the router mounts. Nil handlers are skipped.
type Handlers struct {
	Health         *HealthHandler
	Auth           *auth.Handler
	User           *userHandler.Handler
	Task           *task.Handler
	Attachment     *attachment.Handler
	Notifications  *notification.WebsocketHandler
	OpenAPIPath    string
	AllowedOrigins []string
}

func RegisterAllRoutes(router *chi.Mux, h Handlers, logger *slog.Logger) {
	// RequestID first so every later log line carries the trace id
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.CORS(h.AllowedOrigins))

	base := transport.NewBaseHandler(logger)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		base.WriteError(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		base.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if h.OpenAPIPath != "" {
		router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, h.OpenAPIPath)
		})
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if h.Health != nil {
			r.Get("/health", h.Health.Health)
			r.Get("/ping", h.Health.Ping)
		}

		// the websocket authenticates itself so browsers can pass ?token=
		if h.Notifications != nil {
			r.Get("/ws/notifications", h.Notifications.Notifications)
		}

		if h.Auth == nil {
			return
		}

		r.Route("/auth", func(sr chi.Router) {
			sr.Post("/register", h.Auth.Register)
			sr.Post("/login", h.Auth.Login)
			sr.Post("/refresh", h.Auth.RefreshToken)
			sr.Post("/demo-login", h.Auth.DemoLogin)

			sr.Group(func(pr chi.Router) {
				pr.Use(h.Auth.AuthMiddleware)
				pr.Post("/logout", h.Auth.Logout)
				pr.Post("/change-password", h.Auth.ChangePassword)
			})
		})

		r.Group(func(pr chi.Router) {
			pr.Use(h.Auth.AuthMiddleware)

			if h.User != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/me", h.User.GetCurrentUser)

					ur.With(middleware.RequireRoles(user.RoleAdmin, user.RoleManager)).Get("/", h.User.ListUsers)

					ur.Group(func(ar chi.Router) {
						ar.Use(middleware.RequireRoles(user.RoleAdmin))
						ar.Patch("/{id}/role", h.User.ChangeRole)
						ar.Delete("/{id}", h.User.Deactivate)
					})
				})
			}

			if h.Task != nil {
				pr.Route("/tasks", func(tr chi.Router) {
					tr.Post("/", h.Task.CreateTask)
					tr.Get("/", h.Task.ListTasks)
					tr.Get("/summary", h.Task.Summary)

					tr.Route("/{id}", func(ir chi.Router) {
						ir.Get("/", h.Task.GetTask)
						ir.Patch("/", h.Task.UpdateTask)
						ir.Delete("/", h.Task.DeleteTask)
						ir.Patch("/status", h.Task.UpdateStatus)
						ir.Post("/complete", h.Task.CompleteTask)
						ir.Patch("/assign", h.Task.AssignTask)
						ir.Patch("/deadline", h.Task.UpdateDeadline)
						ir.Get("/comments", h.Task.ListComments)
						ir.Post("/comments", h.Task.AddComment)

						if h.Attachment != nil {
							ir.Get("/attachments", h.Attachment.List)
							ir.Post("/attachments", h.Attachment.Upload)
							ir.Get("/attachments/{attachmentID}", h.Attachment.Download)
							ir.Delete("/attachments/{attachmentID}", h.Attachment.Delete)
						}
					})
				})
			}
		})
	})
}
