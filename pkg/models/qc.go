package models

import "time"

// QC is a quality-check task over the lines of one order.
type QC struct {
	ID             int       `json:"id" db:"id"`
	Reference      string    `json:"reference" db:"reference"`
	OrderReference string    `json:"order_reference" db:"order_reference"`
	TripID         *int      `json:"trip_id,omitempty" db:"trip_id"`
	Status         string    `json:"status" db:"status"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// LineItem is one expected part and quantity within a QC.
type LineItem struct {
	ID             int    `json:"id" db:"id"`
	QCID           int    `json:"qc_id" db:"qc_id"`
	PartNumber     string `json:"part_number" db:"part_number"`
	Description    string `json:"description" db:"description"`
	ScanToken      string `json:"scan_token" db:"scan_token"`
	TargetQuantity int    `json:"target_quantity" db:"target_quantity"`
}

func (q *QC) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   q.ID,
		ResourceType: "qc",
	}
}
