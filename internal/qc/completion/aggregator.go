// Package completion rolls a QC ledger up into the submission payload and the
// operator-facing completion report.
package completion

import (
	"time"

	"qcwarehouse/internal/qc/ledger"
	custom_error "qcwarehouse/pkg/errors"
	"qcwarehouse/pkg/models"
)

// EntrySource is the read side of a ledger.
type EntrySource interface {
	Entry(itemID int) (ledger.Entry, bool)
}

type Shortfall struct {
	LineItem  models.LineItem `json:"line_item"`
	Counted   int             `json:"counted"`
	Shortfall int             `json:"shortfall"`
}

type Totals struct {
	Target      int `json:"target"`
	Regular     int `json:"regular"`
	Replacement int `json:"replacement"`
	Delayed     int `json:"delayed"`
	Counted     int `json:"counted"`
}

type Report struct {
	QCID       int         `json:"qc_id"`
	IsComplete bool        `json:"is_complete"`
	Incomplete []Shortfall `json:"incomplete_entries"`
	Totals     Totals      `json:"totals"`
}

// BuildSubmission lists every line item with its counted quantities and the
// market quantity still missing. A line item without a ledger entry fails the
// whole build.
func BuildSubmission(qc models.QC, items []models.LineItem, entries EntrySource, now time.Time) (models.SubmissionPayload, error) {
	payload := models.SubmissionPayload{
		QCID:        qc.ID,
		Reference:   qc.Reference,
		Items:       make([]models.SubmissionItem, 0, len(items)),
		SubmittedAt: now,
	}

	for _, item := range items {
		entry, ok := entries.Entry(item.ID)
		if !ok {
			return models.SubmissionPayload{}, &custom_error.MissingLedgerEntryError{QCID: qc.ID, LineItemID: item.ID}
		}

		replacements := make([]models.SubmissionReplacement, 0, len(entry.Replacements))
		for _, r := range entry.Replacements {
			replacements = append(replacements, models.SubmissionReplacement{
				SKU:            r.SKU,
				BrandID:        r.BrandID,
				ManufacturerID: r.ManufacturerID,
				Quantity:       r.Quantity,
			})
		}

		payload.Items = append(payload.Items, models.SubmissionItem{
			LineItemID:          item.ID,
			PartNumber:          item.PartNumber,
			RegularQuantity:     entry.RegularQuantity,
			ReplacementQuantity: entry.TotalReplacementQuantity,
			DelayedQuantity:     entry.TotalDelayedQuantity,
			MarketQuantity:      entry.Headroom(),
			Replacements:        replacements,
		})
	}

	return payload, nil
}

func BuildCompletionReport(qcID int, items []models.LineItem, entries EntrySource) (Report, error) {
	report := Report{
		QCID:       qcID,
		IsComplete: true,
		Incomplete: []Shortfall{},
	}

	for _, item := range items {
		entry, ok := entries.Entry(item.ID)
		if !ok {
			return Report{}, &custom_error.MissingLedgerEntryError{QCID: qcID, LineItemID: item.ID}
		}

		report.Totals.Target += entry.OriginalQuantity
		report.Totals.Regular += entry.RegularQuantity
		report.Totals.Replacement += entry.TotalReplacementQuantity
		report.Totals.Delayed += entry.TotalDelayedQuantity
		report.Totals.Counted += entry.TotalRequestedQuantity

		if entry.TotalRequestedQuantity != entry.OriginalQuantity {
			report.IsComplete = false
			report.Incomplete = append(report.Incomplete, Shortfall{
				LineItem:  item,
				Counted:   entry.TotalRequestedQuantity,
				Shortfall: entry.Headroom(),
			})
		}
	}

	return report, nil
}
