// Package router assembles the gin engine for `modbackup serve`.
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pandeptwidyaop/modbackup/internal/config"
	"github.com/pandeptwidyaop/modbackup/internal/handlers"
	"github.com/pandeptwidyaop/modbackup/internal/middleware"
	"github.com/pandeptwidyaop/modbackup/internal/registry"
	"github.com/pandeptwidyaop/modbackup/internal/services"
)

// Deps are the services the API is built on.
type Deps struct {
	Config     *config.Config
	Registry   *registry.Registry
	Auth       *services.AuthService
	Operations *services.OperationService
	History    *services.HistoryService
	Remotes    *services.RemoteService
}

func New(deps Deps) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	prefix := r.Group(cfg.Server.PathPrefix)

	moduleHandler := handlers.NewModuleHandler(deps.Registry)
	runHandler := handlers.NewRunHandler(deps.Operations, deps.History)
	streamHandler := handlers.NewStreamHandler(deps.History, deps.Operations.Events())
	remoteHandler := handlers.NewRemoteHandler(deps.Remotes)
	systemHandler := handlers.NewSystemHandler(cfg)

	api := prefix.Group("/api")
	api.Use(middleware.NoStore())
	{
		api.GET("/version", handlers.Version)

		protected := api.Group("")
		protected.Use(middleware.BasicAuth(deps.Auth, middleware.NewFailureLimiter(5, 5*time.Minute)))
		protected.Use(middleware.BodySizeLimit(64 << 10))
		{
			protected.GET("/modules", moduleHandler.List)
			protected.GET("/modules/:id", moduleHandler.Get)
			protected.POST("/modules/reload", moduleHandler.Reload)

			protected.POST("/backups", runHandler.StartBackup)
			protected.POST("/restores", runHandler.StartRestore)

			protected.GET("/runs", runHandler.List)
			protected.GET("/runs/:id", runHandler.Get)
			protected.GET("/runs/:id/stream", streamHandler.Stream)

			protected.GET("/remotes", remoteHandler.List)
			protected.POST("/remotes", remoteHandler.Create)
			protected.DELETE("/remotes/:name", remoteHandler.Delete)

			protected.GET("/system/status", systemHandler.Status)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}
