package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/middleware"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

func setupAuthRouter(t *testing.T, limiter *middleware.FailureLimiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Auth.Username = "admin"
	authService := services.NewAuthService(cfg)
	hash, err := authService.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	cfg.Auth.PasswordHash = hash

	r := gin.New()
	r.Use(middleware.BasicAuth(authService, limiter))
	r.GET("/api/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(middleware.UserContextKey))
	})
	return r
}

func doAuth(r *gin.Engine, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBasicAuth(t *testing.T) {
	r := setupAuthRouter(t, nil)

	w := doAuth(r, "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("WWW-Authenticate"), "Basic") {
		t.Error("expected WWW-Authenticate challenge")
	}

	if w := doAuth(r, "admin", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", w.Code)
	}

	w = doAuth(r, "admin", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "admin" {
		t.Errorf("expected username in context, got %q", w.Body.String())
	}
}

func TestBasicAuth_LocksOutAfterFailures(t *testing.T) {
	limiter := middleware.NewFailureLimiter(2, time.Minute)
	r := setupAuthRouter(t, limiter)

	doAuth(r, "admin", "x")
	doAuth(r, "admin", "y")

	w := doAuth(r, "admin", "secret")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated failures, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestFailureLimiter_ResetAndExpiry(t *testing.T) {
	l := middleware.NewFailureLimiter(1, 50*time.Millisecond)

	l.Fail("1.2.3.4")
	if blocked, _ := l.Blocked("1.2.3.4"); !blocked {
		t.Fatal("expected client to be blocked")
	}
	if blocked, _ := l.Blocked("5.6.7.8"); blocked {
		t.Error("other clients must not be blocked")
	}

	l.Reset("1.2.3.4")
	if blocked, _ := l.Blocked("1.2.3.4"); blocked {
		t.Error("expected reset to unblock")
	}

	l.Fail("1.2.3.4")
	time.Sleep(80 * time.Millisecond)
	if blocked, _ := l.Blocked("1.2.3.4"); blocked {
		t.Error("expected block to expire")
	}
}

func TestBodySizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.BodySizeLimit(8))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"modules":["a"]}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
}
