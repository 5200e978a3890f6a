package metadata

import "fmt"

// Status is the lifecycle state of a QC record.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusCancelled  Status = "cancelled"
)

func NewStatus(value string) (Status, error) {
	status := Status(value)
	if !status.isValid() {
		return "", fmt.Errorf("invalid status: %s", value)
	}
	return status, nil
}

func (s Status) isValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusSubmitted, StatusCancelled:
		return true
	default:
		return false
	}
}

// EntryStatus is derived from a ledger entry's counted total against its target.
type EntryStatus string

const (
	EntryNotStarted EntryStatus = "not_started"
	EntryInProgress EntryStatus = "in_progress"
	EntryCompleted  EntryStatus = "completed"
)

// NewEntryStatus derives the status of a line item. A line item with nothing
// to count is completed.
func NewEntryStatus(counted, target int) EntryStatus {
	switch {
	case counted >= target:
		return EntryCompleted
	case counted == 0:
		return EntryNotStarted
	default:
		return EntryInProgress
	}
}

func (s EntryStatus) String() string {
	return string(s)
}

func (s Status) String() string {
	return string(s)
}
