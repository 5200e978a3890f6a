package models

import "time"

type SubmissionReplacement struct {
	SKU            string `json:"sku"`
	BrandID        int    `json:"brand_id"`
	ManufacturerID int    `json:"manufacturer_id"`
	Quantity       int    `json:"quantity"`
}

type SubmissionItem struct {
	LineItemID          int                     `json:"line_item_id"`
	PartNumber          string                  `json:"part_number"`
	RegularQuantity     int                     `json:"regular_quantity"`
	ReplacementQuantity int                     `json:"replacement_quantity"`
	DelayedQuantity     int                     `json:"delayed_quantity"`
	MarketQuantity      int                     `json:"market_quantity"` // shortfall left after all counting categories
	Replacements        []SubmissionReplacement `json:"replacements"`
}

// SubmissionPayload is what a finished QC count is persisted and published as.
type SubmissionPayload struct {
	QCID        int              `json:"qc_id"`
	Reference   string           `json:"reference"`
	Items       []SubmissionItem `json:"items"`
	SubmittedBy *int             `json:"submitted_by,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

func (s *SubmissionPayload) CreateLogView() AuditLog {
	return AuditLog{
		ResourceID:   s.QCID,
		ResourceType: "qc_submission",
	}
}
