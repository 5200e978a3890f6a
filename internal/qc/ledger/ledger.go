// Package ledger keeps the per-line-item counters of a QC session.
//
// Every entry satisfies TotalRequestedQuantity <= OriginalQuantity at all
// times. A mutation that would break this, or that has nothing to act on, is
// rejected: state is left untouched and the reason is returned next to the
// unchanged entry. Rejections are business outcomes, not errors.
package ledger

import (
	"fmt"
	"sync"

	"qcwarehouse/pkg/models"

	"github.com/google/uuid"
)

// RejectionReason explains why a mutation was not applied. The zero value
// means the mutation went through.
type RejectionReason string

const (
	ReasonNone                RejectionReason = ""
	ReasonEntryNotFound       RejectionReason = "entry_not_found"
	ReasonExceedsTarget       RejectionReason = "exceeds_target"
	ReasonNothingToDecrement  RejectionReason = "nothing_to_decrement"
	ReasonNoHeadroom          RejectionReason = "no_headroom"
	ReasonInvalidQuantity     RejectionReason = "invalid_quantity"
	ReasonDuplicateID         RejectionReason = "duplicate_id"
	ReasonReplacementNotFound RejectionReason = "replacement_not_found"
	ReasonDelayedNotFound     RejectionReason = "delayed_not_found"
	ReasonFrozen              RejectionReason = "submission_in_progress"
)

func (r RejectionReason) Applied() bool {
	return r == ReasonNone
}

// Snapshot is a serializable copy of every entry, in line item order.
type Snapshot struct {
	Entries []Entry `json:"entries"`
	Version uint64  `json:"version"`
}

// Entry looks an item up in the copy. It lets a snapshot stand in for the
// live ledger when building a submission.
func (s Snapshot) Entry(itemID int) (Entry, bool) {
	for _, e := range s.Entries {
		if e.ItemID == itemID {
			return e.clone(), true
		}
	}
	return Entry{}, false
}

type Ledger struct {
	mu      sync.RWMutex
	entries map[int]*Entry
	order   []int
	newID   func() string
	// version grows with every committed change.
	version uint64
	frozen  bool
}

func New() *Ledger {
	return &Ledger{
		entries: make(map[int]*Entry),
		newID:   func() string { return uuid.New().String() },
	}
}

// Initialize replaces all entries with one zeroed entry per line item.
func (l *Ledger) Initialize(items []models.LineItem) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[int]*Entry, len(items))
	l.order = make([]int, 0, len(items))
	for _, item := range items {
		if _, exists := l.entries[item.ID]; exists {
			continue
		}
		l.entries[item.ID] = newEntry(item.ID, item.TargetQuantity)
		l.order = append(l.order, item.ID)
	}
	l.version++
}

func (l *Ledger) IncrementRegular(itemID int) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		e.RegularQuantity++
		return ReasonNone
	})
}

func (l *Ledger) DecrementRegular(itemID int) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		if e.RegularQuantity == 0 {
			return ReasonNothingToDecrement
		}
		e.RegularQuantity--
		return ReasonNone
	})
}

// BulkFill sets the regular quantity to whatever the target leaves after
// replacements and delayed units.
func (l *Ledger) BulkFill(itemID int) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		fill := e.OriginalQuantity - e.TotalReplacementQuantity - e.TotalDelayedQuantity
		if fill <= e.RegularQuantity {
			return ReasonNoHeadroom
		}
		e.RegularQuantity = fill
		return ReasonNone
	})
}

// AddReplacement appends r. An empty r.ID gets a generated one.
func (l *Ledger) AddReplacement(itemID int, r Replacement) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		if r.Quantity < 1 {
			return ReasonInvalidQuantity
		}
		if r.ID == "" {
			r.ID = l.newID()
		} else if findReplacement(e.Replacements, r.ID) >= 0 {
			return ReasonDuplicateID
		}
		e.Replacements = append(e.Replacements, r)
		return ReasonNone
	})
}

func (l *Ledger) RemoveReplacement(itemID int, replacementID string) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		idx := findReplacement(e.Replacements, replacementID)
		if idx < 0 {
			return ReasonReplacementNotFound
		}
		e.Replacements = append(e.Replacements[:idx], e.Replacements[idx+1:]...)
		return ReasonNone
	})
}

// AddDelayed appends d. An empty d.ID gets a generated one.
func (l *Ledger) AddDelayed(itemID int, d Delayed) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		if d.Quantity < 1 {
			return ReasonInvalidQuantity
		}
		if d.ID == "" {
			d.ID = l.newID()
		} else if findDelayed(e.Delayed, d.ID) >= 0 {
			return ReasonDuplicateID
		}
		e.Delayed = append(e.Delayed, d)
		return ReasonNone
	})
}

func (l *Ledger) RemoveDelayed(itemID int, delayedID string) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		idx := findDelayed(e.Delayed, delayedID)
		if idx < 0 {
			return ReasonDelayedNotFound
		}
		e.Delayed = append(e.Delayed[:idx], e.Delayed[idx+1:]...)
		return ReasonNone
	})
}

func (l *Ledger) ResetOne(itemID int) (Entry, RejectionReason) {
	return l.mutate(itemID, func(e *Entry) RejectionReason {
		e.reset()
		return ReasonNone
	})
}

func (l *Ledger) ResetAll() RejectionReason {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.frozen {
		return ReasonFrozen
	}
	for _, e := range l.entries {
		e.reset()
	}
	l.version++
	return ReasonNone
}

// Freeze stops all further mutations and returns the state they stop at.
// Mutations rejected while frozen report ReasonFrozen.
func (l *Ledger) Freeze() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.frozen = true
	return l.snapshotLocked()
}

func (l *Ledger) Unfreeze() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frozen = false
}

func (l *Ledger) Frozen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frozen
}

// Clear drops every entry. Used once a QC has been submitted. The ledger
// stays frozen if it was.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make(map[int]*Entry)
	l.order = nil
	l.version++
}

func (l *Ledger) Entry(itemID int) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[itemID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Entries returns copies of all entries in line item order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entriesLocked()
}

func (l *Ledger) entriesLocked() []Entry {
	out := make([]Entry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.entries[id].clone())
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot copies every entry together with the version they were read at.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	return Snapshot{Entries: l.entriesLocked(), Version: l.version}
}

// Restore replaces all entries with the snapshot after checking each entry is
// consistent. On error the ledger is left as it was.
func (l *Ledger) Restore(s Snapshot) error {
	entries := make(map[int]*Entry, len(s.Entries))
	order := make([]int, 0, len(s.Entries))

	for _, snap := range s.Entries {
		if _, exists := entries[snap.ItemID]; exists {
			return fmt.Errorf("duplicate entry for item %d", snap.ItemID)
		}
		e := snap.clone()
		if err := validate(&e); err != nil {
			return fmt.Errorf("invalid entry for item %d: %w", snap.ItemID, err)
		}
		entries[e.ItemID] = &e
		order = append(order, e.ItemID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.order = order
	l.version++

	return nil
}

// mutate applies fn to a copy of the entry and commits it only when fn accepts
// and the recomputed total stays within the target.
func (l *Ledger) mutate(itemID int, fn func(e *Entry) RejectionReason) (Entry, RejectionReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.entries[itemID]
	if !ok {
		return Entry{ItemID: itemID}, ReasonEntryNotFound
	}
	if l.frozen {
		return current.clone(), ReasonFrozen
	}

	candidate := current.clone()
	if reason := fn(&candidate); !reason.Applied() {
		return current.clone(), reason
	}
	candidate.recompute()
	if candidate.TotalRequestedQuantity > candidate.OriginalQuantity {
		return current.clone(), ReasonExceedsTarget
	}

	*current = candidate
	l.version++
	return current.clone(), ReasonNone
}

func validate(e *Entry) error {
	if e.OriginalQuantity < 0 {
		return fmt.Errorf("negative original quantity %d", e.OriginalQuantity)
	}
	if e.RegularQuantity < 0 {
		return fmt.Errorf("negative regular quantity %d", e.RegularQuantity)
	}
	if e.Replacements == nil {
		e.Replacements = []Replacement{}
	}
	if e.Delayed == nil {
		e.Delayed = []Delayed{}
	}
	for _, r := range e.Replacements {
		if r.Quantity < 1 || r.ID == "" {
			return fmt.Errorf("replacement %q has quantity %d", r.ID, r.Quantity)
		}
	}
	for _, d := range e.Delayed {
		if d.Quantity < 1 || d.ID == "" {
			return fmt.Errorf("delayed item %q has quantity %d", d.ID, d.Quantity)
		}
	}
	e.recompute()
	if e.TotalRequestedQuantity > e.OriginalQuantity {
		return fmt.Errorf("counted %d exceeds target %d", e.TotalRequestedQuantity, e.OriginalQuantity)
	}
	return nil
}

func findReplacement(items []Replacement, id string) int {
	for i, r := range items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func findDelayed(items []Delayed, id string) int {
	for i, d := range items {
		if d.ID == id {
			return i
		}
	}
	return -1
}
