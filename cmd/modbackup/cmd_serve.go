package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/modbackup/internal/logging"
	"github.com/pandeptwidyaop/modbackup/internal/router"
	"github.com/pandeptwidyaop/modbackup/internal/services"
	"github.com/pandeptwidyaop/modbackup/internal/version"
	"github.com/pandeptwidyaop/modbackup/internal/watcher"
)

var errNoPassword = errors.New("auth.password_hash is not set; generate one with `modbackup passwd`")

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for remote backups and restores",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			// The server always logs to the console.
			if !a.verbose {
				if a.logCloser != nil {
					_ = a.logCloser.Close()
				}
				closer, err := logging.Setup(a.cfg.Log, a.stderr)
				if err != nil {
					return err
				}
				a.logCloser = closer
			}

			auth := services.NewAuthService(a.cfg)
			if !auth.Configured() {
				return errNoPassword
			}

			ctx, stop := signalContext()
			defer stop()

			ops, err := a.operations(ctx)
			if err != nil {
				return err
			}

			if a.cfg.Watcher.IsEnabled() {
				w, err := watcher.New(a.modulesDir(), a.registry.OnRelevantChange, watcher.Options{
					Debounce: a.cfg.Watcher.GetDebounce(),
				})
				if err != nil {
					return fmt.Errorf("failed to create modules watcher: %w", err)
				}
				if err := w.Start(ctx); err != nil {
					log.Printf("[Watcher] Warning: could not watch %s: %v", a.modulesDir(), err)
				}
				defer w.Stop()
			}

			gin.SetMode(gin.ReleaseMode)
			r := router.New(router.Deps{
				Config:     a.cfg,
				Registry:   a.registry,
				Auth:       auth,
				Operations: ops,
				History:    a.history,
				Remotes:    a.remotes,
			})

			addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}

			log.Printf("modbackup %s starting on %s", version.Version, addr)
			log.Printf("Access at: http://%s%s/api", addr, a.cfg.Server.PathPrefix)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("failed to start server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			log.Println("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		}),
	}
}
