package custom_error

import "fmt"

type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// MissingLedgerEntryError means a line item has no ledger entry. The session
// data is inconsistent and the operation must not continue.
type MissingLedgerEntryError struct {
	QCID       int
	LineItemID int
}

func (e *MissingLedgerEntryError) Error() string {
	return fmt.Sprintf("no ledger entry for line item %d of qc %d", e.LineItemID, e.QCID)
}

// IncompleteQCError is returned when a QC is submitted before every line item
// reached its target and the caller did not allow partial submission.
type IncompleteQCError struct {
	QCID       int
	Incomplete int
}

func (e *IncompleteQCError) Error() string {
	return fmt.Sprintf("qc %d has %d incomplete line items", e.QCID, e.Incomplete)
}
