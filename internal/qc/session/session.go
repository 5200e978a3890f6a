// Package session owns the QC sessions loaded by operators: one ledger and one
// scan dispatcher per QC, plus loading, snapshotting and submission.
package session

import (
	"sync"
	"time"

	"qcwarehouse/internal/qc/ledger"
	"qcwarehouse/internal/qc/scan"
	"qcwarehouse/pkg/models"
)

// Session is one loaded QC. The dispatcher works on the same ledger the
// manual operations change.
type Session struct {
	QC         models.QC
	Items      []models.LineItem
	Ledger     *ledger.Ledger
	Dispatcher *scan.Dispatcher
	Scanner    *scan.RemoteScanner
	OpenedAt   time.Time

	// submitMu serializes submissions of this QC.
	submitMu  sync.Mutex
	submitted bool

	// persistMu keeps snapshot saves in ledger version order.
	persistMu    sync.Mutex
	savedVersion uint64
	discarded    bool
}

type View struct {
	QC       models.QC         `json:"qc"`
	Items    []models.LineItem `json:"items"`
	Entries  []ledger.Entry    `json:"entries"`
	State    scan.State        `json:"scanner_state"`
	Scanning bool              `json:"scanning"`
	Feedback *scan.Feedback    `json:"feedback,omitempty"`
	OpenedAt time.Time         `json:"opened_at"`
}

func (s *Session) View() View {
	v := View{
		QC:       s.QC,
		Items:    s.Items,
		Entries:  s.Ledger.Entries(),
		State:    s.Dispatcher.State(),
		Scanning: s.Scanner.Scanning(),
		OpenedAt: s.OpenedAt,
	}
	if fb, ok := s.Dispatcher.Feedback(); ok {
		v.Feedback = &fb
	}
	return v
}

// MutationResult is returned by every manual ledger operation. A rejected
// mutation leaves Entry as it was.
type MutationResult struct {
	Applied bool                   `json:"applied"`
	Reason  ledger.RejectionReason `json:"reason,omitempty"`
	Entry   ledger.Entry           `json:"entry"`
}

// matchesItems reports whether a stored snapshot still describes these line
// items. Snapshots of a QC whose lines changed since are discarded.
func matchesItems(snap ledger.Snapshot, items []models.LineItem) bool {
	if len(snap.Entries) != len(items) {
		return false
	}
	targets := make(map[int]int, len(items))
	for _, item := range items {
		targets[item.ID] = max(item.TargetQuantity, 0)
	}
	for _, e := range snap.Entries {
		target, ok := targets[e.ItemID]
		if !ok || target != e.OriginalQuantity {
			return false
		}
	}
	return true
}
