// Package records reads QC records and their line items and stores finished
// submissions.
package records

import (
	"fmt"

	"qcwarehouse/internal/repository"
	custom_error "qcwarehouse/pkg/errors"
	"qcwarehouse/pkg/metadata"
	"qcwarehouse/pkg/models"

	"github.com/doug-martin/goqu/v9"
)

type QCRepository struct {
	repository *repository.Repository
}

func NewRepository(r *repository.Repository) *QCRepository {
	return &QCRepository{repository: r}
}

func (r *QCRepository) GetQC(id int) (*models.QC, error) {
	var qc models.QC
	found, err := r.repository.GoquDBWrapper.
		From("qc_records").
		Select("id", "reference", "order_reference", "trip_id", "status", "created_at").
		Where(goqu.Ex{"id": id}).
		ScanStruct(&qc)

	if err != nil {
		return nil, fmt.Errorf("unable to select qc record %d: %w", id, err)
	}
	if !found {
		return nil, &custom_error.NotFoundError{Resource: "qc", ID: id}
	}

	return &qc, nil
}

func (r *QCRepository) GetQCs(conditions repository.QueryBuilder) ([]models.QC, error) {
	aliases := map[string]string{
		"trip_id": "q.trip_id",
		"status":  "q.status",
	}

	query := r.repository.GoquDBWrapper.
		Select(
			goqu.I("q.id").As("id"),
			goqu.I("q.reference").As("reference"),
			goqu.I("q.order_reference").As("order_reference"),
			goqu.I("q.trip_id").As("trip_id"),
			goqu.I("q.status").As("status"),
			goqu.I("q.created_at").As("created_at"),
		).
		From(goqu.T("qc_records").As("q")).
		Where(conditions.BuildConditions(aliases)).
		Order(goqu.I("q.id").Asc())

	qcs := []models.QC{}
	if err := query.Executor().ScanStructs(&qcs); err != nil {
		return nil, fmt.Errorf("unable to select qc records from database: %w", err)
	}

	return qcs, nil
}

// GetLineItems returns the QC's line items in the order they were listed.
func (r *QCRepository) GetLineItems(qcID int) ([]models.LineItem, error) {
	items := []models.LineItem{}
	err := r.repository.GoquDBWrapper.
		From("qc_line_items").
		Select("id", "qc_id", "part_number", "description", "scan_token", "target_quantity").
		Where(goqu.Ex{"qc_id": qcID}).
		Order(goqu.I("position").Asc(), goqu.I("id").Asc()).
		ScanStructs(&items)

	if err != nil {
		return nil, fmt.Errorf("unable to select line items of qc %d: %w", qcID, err)
	}

	return items, nil
}

func (r *QCRepository) UpdateStatus(qcID int, status metadata.Status) error {
	result, err := r.repository.GoquDBWrapper.
		Update("qc_records").
		Set(goqu.Record{"status": status.String()}).
		Where(goqu.Ex{"id": qcID}).
		Executor().Exec()
	if err != nil {
		return fmt.Errorf("failed to update status of qc %d: %w", qcID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return &custom_error.NotFoundError{Resource: "qc", ID: qcID}
	}

	return nil
}

// PersistSubmission stores the payload and marks the QC submitted in one
// transaction. A second submission of the same QC is a UniqueViolationError.
func (r *QCRepository) PersistSubmission(payload models.SubmissionPayload) (int, error) {
	var submissionID int
	var submittedBy interface{}
	if payload.SubmittedBy != nil {
		submittedBy = *payload.SubmittedBy
	}

	err := repository.WithTransaction(r.repository.GoquDBWrapper, func(tx *goqu.TxDatabase) error {
		_, err := tx.Insert("qc_submissions").
			Rows(goqu.Record{
				"qc_id":        payload.QCID,
				"submitted_by": submittedBy,
				"submitted_at": payload.SubmittedAt,
			}).
			Returning("id").
			Executor().ScanVal(&submissionID)
		if err != nil {
			return custom_error.FromPQ(err, "QC already submitted")
		}

		for _, item := range payload.Items {
			if err := insertSubmissionLine(tx, submissionID, item); err != nil {
				return err
			}
		}

		_, err = tx.Update("qc_records").
			Set(goqu.Record{"status": metadata.StatusSubmitted.String()}).
			Where(goqu.Ex{"id": payload.QCID}).
			Executor().Exec()
		if err != nil {
			return fmt.Errorf("failed to mark qc %d submitted: %w", payload.QCID, err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return submissionID, nil
}

func insertSubmissionLine(tx *goqu.TxDatabase, submissionID int, item models.SubmissionItem) error {
	var lineID int
	_, err := tx.Insert("qc_submission_lines").
		Rows(goqu.Record{
			"submission_id":        submissionID,
			"line_item_id":         item.LineItemID,
			"part_number":          item.PartNumber,
			"regular_quantity":     item.RegularQuantity,
			"replacement_quantity": item.ReplacementQuantity,
			"delayed_quantity":     item.DelayedQuantity,
			"market_quantity":      item.MarketQuantity,
		}).
		Returning("id").
		Executor().ScanVal(&lineID)
	if err != nil {
		return custom_error.FromPQ(err, "Invalid submission line")
	}

	if len(item.Replacements) == 0 {
		return nil
	}

	rows := make([]interface{}, 0, len(item.Replacements))
	for _, rep := range item.Replacements {
		rows = append(rows, goqu.Record{
			"submission_line_id": lineID,
			"sku":                rep.SKU,
			"brand_id":           rep.BrandID,
			"manufacturer_id":    rep.ManufacturerID,
			"quantity":           rep.Quantity,
		})
	}
	if _, err := tx.Insert("qc_submission_replacements").Rows(rows...).Executor().Exec(); err != nil {
		return custom_error.FromPQ(err, "Invalid replacement")
	}

	return nil
}
