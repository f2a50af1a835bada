package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/database"
	"github.com/pandeptwidyaop/modbackup/internal/handlers"
	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/runner"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

type testEnv struct {
	cfg      *config.Config
	home     string
	registry *registry.Registry
	ops      *services.OperationService
	history  *services.HistoryService
	router   *gin.Engine
}

func setupHandlerTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	home := t.TempDir()
	cfg.Modules.Dir = t.TempDir()
	cfg.Modules.HomeDir = home
	cfg.Backup.Destination = t.TempDir()
	cfg.Restore.TempDir = t.TempDir()

	modDir := filepath.Join(cfg.Modules.Dir, "editor")
	if err := os.MkdirAll(modDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modDir, "module.yaml"), []byte("name: Editor\nbackup_paths:\n  - ~/.editorrc\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".editorrc"), []byte("theme=dark"), 0644); err != nil {
		t.Fatal(err)
	}

	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := runner.New("sh", 0)
	reg := registry.New(registry.Options{Root: cfg.Modules.Dir, Runner: r, Home: home})
	reg.Reload(context.Background())

	history := services.NewHistoryService(db)
	remotes := services.NewRemoteService(db, nil)
	ops, err := services.NewOperationService(services.OperationDeps{
		Config:   cfg,
		Registry: reg,
		Runner:   r,
		History:  history,
		Remotes:  remotes,
	})
	if err != nil {
		t.Fatalf("failed to create operation service: %v", err)
	}
	t.Cleanup(ops.Close)

	moduleHandler := handlers.NewModuleHandler(reg)
	runHandler := handlers.NewRunHandler(ops, history)
	streamHandler := handlers.NewStreamHandler(history, ops.Events())
	remoteHandler := handlers.NewRemoteHandler(remotes)

	router := gin.New()
	router.GET("/api/version", handlers.Version)
	router.GET("/api/modules", moduleHandler.List)
	router.GET("/api/modules/:id", moduleHandler.Get)
	router.POST("/api/modules/reload", moduleHandler.Reload)
	router.POST("/api/backups", runHandler.StartBackup)
	router.POST("/api/restores", runHandler.StartRestore)
	router.GET("/api/runs", runHandler.List)
	router.GET("/api/runs/:id", runHandler.Get)
	router.GET("/api/runs/:id/stream", streamHandler.Stream)
	router.GET("/api/remotes", remoteHandler.List)
	router.POST("/api/remotes", remoteHandler.Create)
	router.DELETE("/api/remotes/:name", remoteHandler.Delete)

	return &testEnv{cfg: cfg, home: home, registry: reg, ops: ops, history: history, router: router}
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestVersion(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(http.MethodGet, "/api/version", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp["version"] == "" {
		t.Error("expected version in response")
	}
}

func TestModuleHandler(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(http.MethodGet, "/api/modules", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap handlers.SnapshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(snap.Modules) != 1 || snap.Modules[0].ID != "editor" || !snap.Modules[0].DataPresent {
		t.Errorf("unexpected modules: %+v", snap.Modules)
	}

	if w := env.do(http.MethodGet, "/api/modules/editor", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for editor, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/modules/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	if err := os.MkdirAll(filepath.Join(env.cfg.Modules.Dir, "shell"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(env.cfg.Modules.Dir, "shell", "module.yml"), []byte("backup_paths:\n  - ~/.bashrc\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w = env.do(http.MethodPost, "/api/modules/reload", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(snap.Modules) != 2 {
		t.Errorf("expected 2 modules after reload, got %d", len(snap.Modules))
	}
}

func waitForRun(t *testing.T, env *testEnv, id string) *models.Run {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		run, err := env.history.GetRun(id)
		if err == nil && run.Status != models.StatusRunning {
			return run
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return nil
}

func TestRunHandler_BackupAndRestore(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(http.MethodPost, "/api/backups", models.BackupRequest{Modules: []string{"editor"}})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var accepted map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &accepted)

	run := waitForRun(t, env, accepted["run_id"])
	if run.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %+v", run)
	}

	w = env.do(http.MethodGet, "/api/runs/"+run.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if err := os.WriteFile(filepath.Join(env.home, ".editorrc"), []byte("theme=light"), 0644); err != nil {
		t.Fatal(err)
	}

	w = env.do(http.MethodPost, "/api/restores", models.RestoreRequest{Archive: run.Archive, Conflict: "overwrite"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &accepted)
	waitForRun(t, env, accepted["run_id"])

	data, _ := os.ReadFile(filepath.Join(env.home, ".editorrc"))
	if string(data) != "theme=dark" {
		t.Errorf("expected restored content, got %q", data)
	}

	w = env.do(http.MethodGet, "/api/runs", nil)
	var runs []models.Run
	_ = json.Unmarshal(w.Body.Bytes(), &runs)
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestRunHandler_BadRequests(t *testing.T) {
	env := setupHandlerTest(t)

	tests := []struct {
		name   string
		path   string
		body   interface{}
		status int
	}{
		{"backup without modules", "/api/backups", map[string]interface{}{}, http.StatusBadRequest},
		{"backup bad format", "/api/backups", models.BackupRequest{Modules: []string{"editor"}, Format: "rar"}, http.StatusBadRequest},
		{"restore without archive", "/api/restores", models.RestoreRequest{}, http.StatusBadRequest},
		{"restore missing archive", "/api/restores", models.RestoreRequest{Archive: "/nope.zip"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	if w := env.do(http.MethodGet, "/api/runs/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRemoteHandler(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(http.MethodPost, "/api/remotes", models.CreateRemoteRequest{Name: "mirror", Protocol: "https", Host: "backups.example.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(http.MethodPost, "/api/remotes", models.CreateRemoteRequest{Name: "mirror", Protocol: "https"}); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/remotes", models.CreateRemoteRequest{Name: "nas", Protocol: "ftp", Password: "pw"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without encryption key, got %d", w.Code)
	}

	w = env.do(http.MethodGet, "/api/remotes", nil)
	if !strings.Contains(w.Body.String(), "backups.example.com") {
		t.Errorf("expected remote in list, got %s", w.Body.String())
	}

	if w := env.do(http.MethodDelete, "/api/remotes/mirror", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodDelete, "/api/remotes/mirror", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestStreamHandler_FinishedRun(t *testing.T) {
	env := setupHandlerTest(t)

	report, err := env.ops.Backup(context.Background(), &models.BackupRequest{Modules: []string{"editor"}})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	server := httptest.NewServer(env.router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/runs/" + report.RunID + "/stream"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer ws.Close()

	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.Event
	if err := ws.ReadJSON(&ev); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if !ev.Done || ev.Message != string(models.StatusSuccess) {
		t.Errorf("expected done event with success, got %+v", ev)
	}

	if _, _, err := ws.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
}

func TestStreamHandler_UnknownRun(t *testing.T) {
	env := setupHandlerTest(t)

	w := env.do(http.MethodGet, "/api/runs/nope/stream", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
