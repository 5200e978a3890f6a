package ledger

import (
	"qcwarehouse/pkg/metadata"
)

// Replacement is a substitute part counted against a line item's target.
type Replacement struct {
	ID             string `json:"id"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	ManufacturerID int    `json:"manufacturer_id"`
	BrandID        int    `json:"brand_id"`
}

// Delayed is a quantity deferred to a later fulfillment.
type Delayed struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Entry tracks what has been counted for a single line item. The Total* fields
// and Status are derived and recomputed after every mutation.
type Entry struct {
	ItemID           int           `json:"item_id"`
	RegularQuantity  int           `json:"regular_quantity"`
	OriginalQuantity int           `json:"original_quantity"`
	Replacements     []Replacement `json:"replacement_items"`
	Delayed          []Delayed     `json:"delayed_items"`

	TotalReplacementQuantity int                  `json:"total_replacement_quantity"`
	TotalDelayedQuantity     int                  `json:"total_delayed_quantity"`
	TotalRequestedQuantity   int                  `json:"total_requested_quantity"`
	Status                   metadata.EntryStatus `json:"status"`
}

// Headroom is how many more units can be counted before the target is reached.
func (e Entry) Headroom() int {
	if remaining := e.OriginalQuantity - e.TotalRequestedQuantity; remaining > 0 {
		return remaining
	}
	return 0
}

func newEntry(itemID, target int) *Entry {
	if target < 0 {
		target = 0
	}
	e := &Entry{
		ItemID:           itemID,
		OriginalQuantity: target,
		Replacements:     []Replacement{},
		Delayed:          []Delayed{},
	}
	e.recompute()
	return e
}

func (e *Entry) recompute() {
	e.TotalReplacementQuantity = 0
	for _, r := range e.Replacements {
		e.TotalReplacementQuantity += r.Quantity
	}
	e.TotalDelayedQuantity = 0
	for _, d := range e.Delayed {
		e.TotalDelayedQuantity += d.Quantity
	}
	e.TotalRequestedQuantity = e.RegularQuantity + e.TotalReplacementQuantity + e.TotalDelayedQuantity
	e.Status = metadata.NewEntryStatus(e.TotalRequestedQuantity, e.OriginalQuantity)
}

func (e *Entry) reset() {
	e.RegularQuantity = 0
	e.Replacements = []Replacement{}
	e.Delayed = []Delayed{}
	e.recompute()
}

func (e *Entry) clone() Entry {
	c := *e
	c.Replacements = append([]Replacement{}, e.Replacements...)
	c.Delayed = append([]Delayed{}, e.Delayed...)
	return c
}
