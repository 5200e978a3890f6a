package auditlog

import (
	"errors"
	"testing"

	"qcwarehouse/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) PersistLog(auditlog models.AuditLog, data interface{}) error {
	return m.Called(auditlog, data).Error(0)
}

func TestLogPersistsEntry(t *testing.T) {
	p := new(mockPersister)
	userID := 3
	p.On("PersistLog", models.AuditLog{
		ResourceID:   12,
		ResourceType: "qc",
		Action:       "submit",
		UserID:       &userID,
	}, map[string]int{"items": 2}).Return(nil)

	NewAuditLog(p, zap.NewNop()).Log("submit", map[string]int{"items": 2}, &models.QC{ID: 12}, &userID)

	p.AssertExpectations(t)
}

func TestLogWarnsOnFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := new(mockPersister)
	p.On("PersistLog", mock.Anything, mock.Anything).Return(errors.New("db down"))

	NewAuditLog(p, zap.New(core)).Log("open", nil, &models.QC{ID: 5}, nil)

	entries := logs.FilterMessage("Unable to create audit log entry").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(5), entries[0].ContextMap()["resource_id"])
	}
}
