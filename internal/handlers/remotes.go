package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/models"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

type RemoteHandler struct {
	remotes *services.RemoteService
}

func NewRemoteHandler(remotes *services.RemoteService) *RemoteHandler {
	return &RemoteHandler{remotes: remotes}
}

// GET /api/remotes
func (h *RemoteHandler) List(c *gin.Context) {
	remotes, err := h.remotes.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, remotes)
}

// POST /api/remotes
func (h *RemoteHandler) Create(c *gin.Context) {
	var req models.CreateRemoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	remote, err := h.remotes.Create(&req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRemoteExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrInvalidRemote), errors.Is(err, services.ErrEncryptionKeyRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, remote)
}

// DELETE /api/remotes/:name
func (h *RemoteHandler) Delete(c *gin.Context) {
	if err := h.remotes.Delete(c.Param("name")); err != nil {
		if errors.Is(err, services.ErrRemoteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "remote not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "remote deleted"})
}
