package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	auditLogRepo "qcwarehouse/internal/auditlog"
	"qcwarehouse/internal/core/config"
	"qcwarehouse/internal/integrations/googlesheets"
	"qcwarehouse/internal/metrics"
	"qcwarehouse/internal/middleware"
	"qcwarehouse/internal/qc/handler"
	"qcwarehouse/internal/qc/publisher"
	"qcwarehouse/internal/qc/records"
	"qcwarehouse/internal/qc/scan"
	"qcwarehouse/internal/qc/session"
	"qcwarehouse/internal/rate_limiter"
	"qcwarehouse/internal/repository"
	"qcwarehouse/internal/users"
	"qcwarehouse/pkg/auditlog"
	"qcwarehouse/pkg/security"

	"go.uber.org/zap"
)

const (
	loginAttempts = 5
	loginWindow   = time.Minute
)

type Container struct {
	Repository   *repository.Repository
	Metrics      *metrics.Registry
	AuditLog     *auditlog.Auditlog
	Health       *middleware.Health
	RateLimiter  *rate_limiter.RateLimiter
	Sessions     *session.Manager
	LoginHandler *security.LoginHandler
	UserHandler  *users.UsersHandler
	QCHandler    *handler.QCHandler

	closers []func() error
}

func NewAppContainer(ctx context.Context, db *sql.DB, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	repo := repository.NewRepository(db)
	reg := metrics.NewRegistry()

	health := middleware.NewHealth(cfg.Version)
	health.AddCheck("database", repo.DB.PingContext)

	c := &Container{
		Repository: repo,
		Metrics:    reg,
		Health:     health,
	}

	sinks := publisher.Multi{}
	if cfg.KafkaBrokers != "" {
		sinks = append(sinks, publisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		logger.Info("Publishing submissions to kafka", zap.String("topic", cfg.KafkaTopic))
	}
	if cfg.SheetsID != "" {
		exporter, err := googlesheets.NewExporter(ctx, []byte(cfg.SheetsCredentials), cfg.SheetsID, cfg.SheetsRange)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, exporter)
		logger.Info("Exporting submissions to google sheets", zap.String("range", cfg.SheetsRange))
	}

	var pub publisher.Publisher = publisher.NopPublisher{}
	if len(sinks) > 0 {
		c.closers = append(c.closers, sinks.Close)
		pub = sinks
	}

	var snapshots session.SnapshotStore = session.NewMemorySnapshotStore()
	if cfg.RedisURL != "" {
		redisStore, err := session.NewRedisSnapshotStore(cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			return nil, fmt.Errorf("redis snapshot store: %w", err)
		}
		health.AddCheck("redis", redisStore.Ping)
		c.closers = append(c.closers, redisStore.Close)
		snapshots = redisStore
		logger.Info("Using redis snapshot store")
	}

	auditLogRepository := auditLogRepo.NewRepository(repo)
	c.AuditLog = auditlog.NewAuditLog(auditLogRepository, logger)

	qcRepository := records.NewRepository(repo)
	c.Sessions = session.NewManager(qcRepository, pub, snapshots, reg, logger, session.Options{
		Scan: scan.Options{
			SuccessDelay: cfg.ScanSuccessDelay,
			RejectDelay:  cfg.ScanRejectDelay,
		},
	})

	userRepository := users.NewRepository(repo)
	c.RateLimiter = rate_limiter.NewRateLimiter(loginAttempts, loginWindow)
	c.LoginHandler = security.NewLoginHandler(userRepository, c.RateLimiter, logger)
	c.UserHandler = users.NewHandler(userRepository, logger)
	c.QCHandler = handler.NewQCHandler(c.Sessions, qcRepository, auditLogRepository, c.AuditLog, logger)

	return c, nil
}

// Close tears down open sessions and releases external clients.
func (c *Container) Close() error {
	c.Sessions.CloseAll()
	c.RateLimiter.Stop()

	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
