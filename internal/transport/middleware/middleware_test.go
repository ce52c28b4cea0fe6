package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/ojhankit/team-collaboration-sys-backend/internal/auth"
	"github.com/ojhankit/team-collaboration-sys-backend/internal/core/user"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("filterSensitiveBody", func() {
	It("should mask nested secrets and keep everything else", func() {
		out := filterSensitiveBody([]byte(`{"identifier":"bob","password":"Secret1!","nested":{"refresh_token":"abc","ok":1}}`))

		Expect(out).To(ContainSubstring(`"identifier":"bob"`))
		Expect(out).To(ContainSubstring(`"password":"[FILTERED]"`))
		Expect(out).To(ContainSubstring(`"refresh_token":"[FILTERED]"`))
		Expect(out).To(ContainSubstring(`"ok":1`))
		Expect(out).NotTo(ContainSubstring("Secret1!"))
	})

	It("should refuse to echo non JSON bodies that mention secrets", func() {
		Expect(filterSensitiveBody([]byte("password=hunter2"))).To(Equal("[FILTERED - Contains sensitive data]"))
	})

	It("should mask the websocket token query parameter", func() {
		Expect(filterSensitiveQuery(map[string][]string{"token": {"abc"}})).To(Equal("token=[FILTERED]"))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	It("should pass the body through and log without secrets", func() {
		var logs bytes.Buffer
		lg := slog.New(slog.NewTextHandler(&logs, nil))

		var seen string
		h := LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			seen = string(b)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"access_token":"xyz"}`))
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"password":"Secret1!"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(seen).To(Equal(`{"password":"Secret1!"}`))
		Expect(logs.String()).To(ContainSubstring("status_code=201"))
		Expect(logs.String()).NotTo(ContainSubstring("Secret1!"))
		Expect(logs.String()).NotTo(ContainSubstring("xyz"))
		Expect(logs.String()).NotTo(ContainSubstring("Bearer abc"))
	})
})

var _ = Describe("RequestID", func() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	It("should keep a well formed trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, "trace-123")
		rec := httptest.NewRecorder()

		RequestID(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceHeader)).To(Equal("trace-123"))
	})

	It("should replace a missing or malformed trace id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TraceHeader, "bad id\nwith newline")
		rec := httptest.NewRecorder()

		RequestID(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get(TraceHeader)).To(HaveLen(36))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("should turn a panic into a 500 error envelope", func() {
		h := RecoveryMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		var body map[string]map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["error"]["type"]).To(Equal("INTERNAL_ERROR"))
		Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
	})
})

var _ = Describe("RequireRoles", func() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	serve := func(u *auth.User) int {
		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		if u != nil {
			req = req.WithContext(auth.ContextWithUser(req.Context(), u))
		}
		rec := httptest.NewRecorder()
		RequireRoles(user.RoleAdmin, user.RoleManager)(ok).ServeHTTP(rec, req)
		return rec.Code
	}

	It("should allow listed roles", func() {
		Expect(serve(&auth.User{ID: 1, Role: user.RoleManager})).To(Equal(http.StatusNoContent))
	})

	It("should forbid other roles", func() {
		Expect(serve(&auth.User{ID: 2, Role: user.RoleEmployee})).To(Equal(http.StatusForbidden))
	})

	It("should reject anonymous requests", func() {
		Expect(serve(nil)).To(Equal(http.StatusUnauthorized))
	})
})

var _ = Describe("CORS", func() {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	It("should echo an allowed origin", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()

		CORS(SplitOrigins("https://app.example.com, https://admin.example.com"))(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://app.example.com"))
	})

	It("should not echo an unknown origin", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()

		CORS([]string{"https://app.example.com"})(ok).ServeHTTP(rec, req)

		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("should answer preflight requests directly", func() {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "PATCH")
		rec := httptest.NewRecorder()

		CORS([]string{"*"})(ok).ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNoContent))
	})
})
