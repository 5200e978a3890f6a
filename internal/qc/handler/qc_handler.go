// Package handler exposes QC sessions over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"qcwarehouse/internal/qc/ledger"
	"qcwarehouse/internal/qc/scan"
	"qcwarehouse/internal/qc/session"
	"qcwarehouse/internal/repository"
	"qcwarehouse/pkg/auditlog"
	custom_error "qcwarehouse/pkg/errors"
	"qcwarehouse/pkg/metadata"
	"qcwarehouse/pkg/models"
	"qcwarehouse/pkg/roles"
	"qcwarehouse/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QCLister lists QC records.
type QCLister interface {
	GetQCs(conditions repository.QueryBuilder) ([]models.QC, error)
}

// HistoryReader reads the audit trail of a resource.
type HistoryReader interface {
	GetResourceLog(id int, resourceType string) ([]models.AuditLog, error)
}

// AuditLogger records QC lifecycle events.
type AuditLogger interface {
	Log(action string, data interface{}, item auditlog.Auditable, userID *int)
}

type QCHandler struct {
	Sessions *session.Manager
	Records  QCLister
	History  HistoryReader
	AuditLog AuditLogger
	logger   *zap.Logger
}

func NewQCHandler(sessions *session.Manager, records QCLister, history HistoryReader, audit AuditLogger, logger *zap.Logger) *QCHandler {
	RegisterValidators()
	return &QCHandler{
		Sessions: sessions,
		Records:  records,
		History:  history,
		AuditLog: audit,
		logger:   logger,
	}
}

func (h *QCHandler) RegisterRoutes(router *gin.RouterGroup) {
	qc := router.Group("/qc", security.Authorize(roles.Operator))

	qc.GET("", h.GetQCs)
	qc.GET("/:id/history", security.Authorize(roles.Supervisor), h.GetHistory)

	qc.POST("/:id/session", h.OpenSession)
	qc.GET("/:id/session", h.GetSession)
	qc.DELETE("/:id/session", h.CloseSession)
	qc.POST("/:id/session/reset", security.Authorize(roles.Supervisor), h.ResetSession)

	items := qc.Group("/:id/items/:item_id")
	items.POST("/increment", h.Increment)
	items.POST("/decrement", h.Decrement)
	items.POST("/fill", h.Fill)
	items.POST("/reset", h.ResetItem)
	items.POST("/replacements", h.AddReplacement)
	items.DELETE("/replacements/:entry_id", h.RemoveReplacement)
	items.POST("/delayed", h.AddDelayed)
	items.DELETE("/delayed/:entry_id", h.RemoveDelayed)

	qc.POST("/:id/scans", h.Scan)
	qc.GET("/:id/report", h.GetReport)
	qc.POST("/:id/submit", h.Submit)
}

func (h *QCHandler) GetQCs(c *gin.Context) {
	conditions := repository.NewQueryBuilder()

	if raw := c.Query("status"); raw != "" {
		var statuses []string
		for _, part := range strings.Split(raw, ",") {
			status, err := metadata.NewStatus(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status", "details": err.Error()})
				return
			}
			statuses = append(statuses, status.String())
		}
		conditions.AddAnyOf("status", statuses)
	}
	if raw := c.Query("trip_id"); raw != "" {
		tripID, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID", "details": err.Error()})
			return
		}
		conditions.AddCondition("trip_id", tripID)
	}

	qcs, err := h.Records.GetQCs(conditions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not obtain list of QC records", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, qcs)
}

func (h *QCHandler) GetHistory(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	logs, err := h.History.GetResourceLog(qcID, "qc")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not obtain QC history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, logs)
}

func (h *QCHandler) OpenSession(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	s, err := h.Sessions.Open(c.Request.Context(), qcID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	qc := s.QC
	go h.AuditLog.Log("session_opened", gin.H{"items": len(s.Items)}, &qc, userIDPtr(c))

	c.JSON(http.StatusOK, s.View())
}

func (h *QCHandler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, s.View())
}

func (h *QCHandler) CloseSession(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	if err := h.Sessions.Close(qcID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.respondError(c, err)
			return
		}
		h.logger.Warn("QC session closed with errors", zap.Int("qc_id", qcID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"message": "QC session closed"})
}

func (h *QCHandler) ResetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	entries, err := h.Sessions.ResetAll(c.Request.Context(), s.QC.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	qc := s.QC
	go h.AuditLog.Log("session_reset", nil, &qc, userIDPtr(c))

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *QCHandler) Increment(c *gin.Context) {
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.IncrementRegular(itemID)
	})
}

func (h *QCHandler) Decrement(c *gin.Context) {
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.DecrementRegular(itemID)
	})
}

func (h *QCHandler) Fill(c *gin.Context) {
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.BulkFill(itemID)
	})
}

func (h *QCHandler) ResetItem(c *gin.Context) {
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.ResetOne(itemID)
	})
}

func (h *QCHandler) AddReplacement(c *gin.Context) {
	var req ReplacementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.AddReplacement(itemID, ledger.Replacement{
			ID:             req.ID,
			SKU:            req.SKU,
			Quantity:       req.Quantity,
			ManufacturerID: req.ManufacturerID,
			BrandID:        req.BrandID,
		})
	})
}

func (h *QCHandler) RemoveReplacement(c *gin.Context) {
	entryID := c.Param("entry_id")
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.RemoveReplacement(itemID, entryID)
	})
}

func (h *QCHandler) AddDelayed(c *gin.Context) {
	var req DelayedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.AddDelayed(itemID, ledger.Delayed{ID: req.ID, Quantity: req.Quantity})
	})
}

func (h *QCHandler) RemoveDelayed(c *gin.Context) {
	entryID := c.Param("entry_id")
	h.mutate(c, func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason) {
		return l.RemoveDelayed(itemID, entryID)
	})
}

func (h *QCHandler) Scan(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	fb, err := h.Sessions.Scan(c.Request.Context(), qcID, req.Code)
	if err != nil {
		if errors.Is(err, scan.ErrBusy) {
			state := scan.StateFeedback
			if s, getErr := h.Sessions.Get(qcID); getErr == nil {
				state = s.Dispatcher.State()
			}
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": state})
			return
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fb)
}

func (h *QCHandler) GetReport(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	report, err := h.Sessions.Report(qcID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

func (h *QCHandler) Submit(c *gin.Context) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
			return
		}
	}

	userID := userIDPtr(c)
	result, err := h.Sessions.Submit(c.Request.Context(), qcID, userID, req.AllowPartial)
	if err != nil {
		var incomplete *custom_error.IncompleteQCError
		if errors.As(err, &incomplete) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "QC is not complete",
				"details": err.Error(),
				"report":  result.Report,
			})
			return
		}
		h.respondError(c, err)
		return
	}

	payload := result.Payload
	go h.AuditLog.Log("submitted", gin.H{"submission_id": result.SubmissionID, "partial": !result.Report.IsComplete}, &payload, userID)

	c.JSON(http.StatusCreated, result)
}

func (h *QCHandler) mutate(c *gin.Context, op func(l *ledger.Ledger, itemID int) (ledger.Entry, ledger.RejectionReason)) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return
	}
	itemID, err := strconv.Atoi(c.Param("item_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid line item ID", "details": err.Error()})
		return
	}

	result, err := h.Sessions.Mutate(c.Request.Context(), qcID, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return op(l, itemID)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *QCHandler) session(c *gin.Context) (*session.Session, bool) {
	qcID, ok := qcIDParam(c)
	if !ok {
		return nil, false
	}

	s, err := h.Sessions.Get(qcID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return s, true
}

func (h *QCHandler) respondError(c *gin.Context, err error) {
	var notFound *custom_error.NotFoundError
	var duplicate *custom_error.UniqueViolationError
	var missing *custom_error.MissingLedgerEntryError

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "QC session not loaded", "details": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "QC not found", "details": err.Error()})
	case errors.Is(err, session.ErrSubmitting):
		c.JSON(http.StatusConflict, gin.H{"error": "QC submission in progress", "details": err.Error()})
	case errors.Is(err, session.ErrQCNotOpen):
		c.JSON(http.StatusConflict, gin.H{"error": "QC is closed", "details": err.Error()})
	case errors.As(err, &duplicate):
		c.JSON(http.StatusConflict, gin.H{"error": "QC already submitted", "details": err.Error()})
	case errors.Is(err, scan.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "QC session is closing", "details": err.Error()})
	case errors.As(err, &missing):
		h.logger.Error("Ledger out of sync", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "QC session is inconsistent", "details": err.Error()})
	default:
		h.logger.Error("QC request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "details": err.Error()})
	}
}

func qcIDParam(c *gin.Context) (int, bool) {
	qcID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid QC ID", "details": err.Error()})
		return 0, false
	}
	return qcID, true
}

func userIDPtr(c *gin.Context) *int {
	if id, ok := security.GetUserID(c); ok {
		return &id
	}
	return nil
}
