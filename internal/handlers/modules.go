// Package handlers provides HTTP request handlers for the modbackup API.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
)

// ModuleHandler exposes the registry's current snapshot.
type ModuleHandler struct {
	registry *registry.Registry
}

func NewModuleHandler(reg *registry.Registry) *ModuleHandler {
	return &ModuleHandler{registry: reg}
}

// SnapshotResponse is the JSON view of a registry snapshot.
type SnapshotResponse struct {
	Root     string          `json:"root"`
	LoadedAt time.Time       `json:"loaded_at"`
	Modules  []models.Module `json:"modules"`
	Failures []string        `json:"failures"`
	Warnings []string        `json:"warnings"`
}

func snapshotResponse(snap *registry.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Root:     snap.Root(),
		LoadedAt: snap.LoadedAt(),
		Modules:  snap.Modules(),
		Failures: []string{},
		Warnings: []string{},
	}
	if resp.Modules == nil {
		resp.Modules = []models.Module{}
	}
	for _, f := range snap.Failures() {
		resp.Failures = append(resp.Failures, f.Error())
	}
	for _, w := range snap.Warnings() {
		resp.Warnings = append(resp.Warnings, w.Error())
	}
	return resp
}

// List returns the current snapshot.
// GET /api/modules
func (h *ModuleHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotResponse(h.registry.Current()))
}

// Get returns a single module.
// GET /api/modules/:id
func (h *ModuleHandler) Get(c *gin.Context) {
	mod, ok := h.registry.Current().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "module not found"})
		return
	}
	c.JSON(http.StatusOK, mod)
}

// Reload rescans the modules directory and returns the new snapshot.
// POST /api/modules/reload
func (h *ModuleHandler) Reload(c *gin.Context) {
	snap := h.registry.Reload(c.Request.Context())
	c.JSON(http.StatusOK, snapshotResponse(snap))
}
