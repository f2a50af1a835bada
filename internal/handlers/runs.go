package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

// RunHandler starts backups and restores and reports their history.
type RunHandler struct {
	ops     *services.OperationService
	history *services.HistoryService
}

func NewRunHandler(ops *services.OperationService, history *services.HistoryService) *RunHandler {
	return &RunHandler{ops: ops, history: history}
}

// StartBackup queues a backup run.
// POST /api/backups
func (h *RunHandler) StartBackup(c *gin.Context) {
	var req models.BackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.ops.StartBackup(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// StartRestore queues a restore run.
// POST /api/restores
func (h *RunHandler) StartRestore(c *gin.Context) {
	var req models.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.ops.StartRestore(&req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, services.ErrArchiveAbsent) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": run.ID})
}

// List returns recorded runs, newest first.
// GET /api/runs?limit=&offset=
func (h *RunHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := h.history.ListRuns(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// Get returns one run with its per-module or per-path items.
// GET /api/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.history.GetRun(c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, run)
}
