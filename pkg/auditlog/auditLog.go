package auditlog

import (
	"qcwarehouse/pkg/models"

	"go.uber.org/zap"
)

type Persister interface {
	PersistLog(auditlog models.AuditLog, data interface{}) error
}

type Auditlog struct {
	r      Persister
	logger *zap.Logger
}

type Auditable interface {
	CreateLogView() models.AuditLog
}

// Log records action against item. Failures are logged and never returned;
// callers usually run it in its own goroutine.
func (a *Auditlog) Log(action string, data interface{}, item Auditable, userID *int) {
	auditLog := item.CreateLogView()
	auditLog.Action = action
	auditLog.UserID = userID

	if err := a.r.PersistLog(auditLog, data); err != nil {
		a.logger.Warn("Unable to create audit log entry",
			zap.String("resource_type", auditLog.ResourceType),
			zap.Int("resource_id", auditLog.ResourceID),
			zap.String("action", action),
			zap.Error(err),
		)
		return
	}

	a.logger.Debug("Created audit log entry",
		zap.String("resource_type", auditLog.ResourceType),
		zap.Int("resource_id", auditLog.ResourceID),
		zap.String("action", action),
	)
}

func NewAuditLog(r Persister, logger *zap.Logger) *Auditlog {
	return &Auditlog{r: r, logger: logger}
}
