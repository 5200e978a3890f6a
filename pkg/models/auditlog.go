package models

import (
	"encoding/json"
	"time"
)

// AuditLog is one recorded action against a resource. Data holds the
// action payload exactly as stored in the JSONB column.
type AuditLog struct {
	ID           int             `json:"id" db:"id"`
	ResourceID   int             `json:"resource_id" db:"resource_id"`
	ResourceType string          `json:"resource_type" db:"resource_type"`
	Action       string          `json:"action" db:"action"`
	Data         json.RawMessage `json:"data" db:"data"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UserID       *int            `json:"user_id,omitempty" db:"user_id"`
}
