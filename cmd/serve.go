package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qcwarehouse/internal/core/container"
	"qcwarehouse/internal/core/routes"
	"qcwarehouse/internal/database"
	"qcwarehouse/internal/middleware"
	"qcwarehouse/pkg/security"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if err := cfg.RequireAuth(); err != nil {
				return err
			}
			security.SetSecret(cfg.JWTSecret)

			skipMigrations, _ := cmd.Flags().GetBool("skip-migrations")
			if !skipMigrations {
				if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir, log); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			db, err := database.NewPostgresConnection(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			log.Info("Connected to the database successfully")

			app, err := container.NewAppContainer(ctx, db, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Warn("Unable to release resources", zap.Error(err))
				}
			}()

			if cfg.LogLevel > zap.DebugLevel {
				gin.SetMode(gin.ReleaseMode)
			}
			router := gin.New()
			router.Use(
				middleware.RecoveryMiddleware(log),
				middleware.RequestLogger(log),
				middleware.TimeoutMiddleware(requestTimeout),
			)

			routes.RegisterUtilityRoutes(router, app)
			routes.RegisterPublicRoutes(router, app)
			routes.RegisterProtectedRoutes(router, app)

			return run(ctx, &http.Server{Addr: cfg.AppHost, Handler: router}, log)
		},
	}
	serveCmd.Flags().Bool("skip-migrations", false, "Do not apply migrations on start")

	return serveCmd
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
