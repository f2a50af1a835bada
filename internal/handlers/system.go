package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/metrics"
	"github.com/pandeptwidyaop/modbackup/internal/service"
	"github.com/pandeptwidyaop/modbackup/internal/version"
)

// SystemHandler reports host status relevant to running backups.
type SystemHandler struct {
	cfg *config.Config
}

func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// SystemStatus represents the system status response.
type SystemStatus struct {
	Platform  string                 `json:"platform"`
	Arch      string                 `json:"arch"`
	IsService bool                   `json:"is_service"`
	Version   string                 `json:"version"`
	Metrics   *metrics.SystemMetrics `json:"metrics,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Version returns build information.
// GET /api/version
func Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Info())
}

// Status returns platform info plus memory, load and free space on the
// backup destination and staging locations.
// GET /api/system/status
func (h *SystemHandler) Status(c *gin.Context) {
	status := SystemStatus{
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
		IsService: service.IsRunningAsService(),
		Version:   version.Version,
	}

	m, err := metrics.GetSystemMetricsWithContext(c.Request.Context(), h.locations())
	if err != nil {
		status.Error = err.Error()
	}
	status.Metrics = m

	c.JSON(http.StatusOK, status)
}

func (h *SystemHandler) locations() []metrics.Location {
	locs := []metrics.Location{
		{Name: "destination", Path: h.cfg.Backup.Destination},
		{Name: "modules", Path: h.cfg.Modules.Dir},
	}
	if h.cfg.Backup.StagingDir != "" {
		locs = append(locs, metrics.Location{Name: "staging", Path: h.cfg.Backup.StagingDir})
	}
	return locs
}
