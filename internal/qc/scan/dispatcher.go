// Package scan turns decoded barcode text into ledger increments and operator
// feedback, one physical scan at a time.
package scan

import (
	"errors"
	"sync"
	"time"

	"qcwarehouse/internal/qc/ledger"
	"qcwarehouse/internal/qc/sku"
	"qcwarehouse/pkg/models"
)

type State string

const (
	StateIdle     State = "idle"
	StateMatching State = "matching"
	StateFeedback State = "feedback"
	StateClosed   State = "closed"
)

var (
	// ErrBusy is returned for decodes arriving outside the idle state. The
	// decode is dropped.
	ErrBusy   = errors.New("scanner busy")
	ErrClosed = errors.New("scanner closed")
)

const (
	DefaultSuccessDelay = time.Second
	DefaultRejectDelay  = 2 * time.Second
)

type Options struct {
	SuccessDelay time.Duration
	RejectDelay  time.Duration
	Clock        Clock
}

// Dispatcher is the idle -> matching -> feedback -> idle state machine. It
// holds the session's live ledger and applies accepted scans to it directly.
type Dispatcher struct {
	mu       sync.Mutex
	state    State
	feedback *Feedback
	timer    Timer

	items   []models.LineItem
	ledger  *ledger.Ledger
	scanner Scanner
	audio   Audio
	clock   Clock

	successDelay time.Duration
	rejectDelay  time.Duration
}

func NewDispatcher(items []models.LineItem, l *ledger.Ledger, scanner Scanner, audio Audio, opts Options) *Dispatcher {
	if opts.SuccessDelay <= 0 {
		opts.SuccessDelay = DefaultSuccessDelay
	}
	if opts.RejectDelay <= 0 {
		opts.RejectDelay = DefaultRejectDelay
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}

	return &Dispatcher{
		state:        StateIdle,
		items:        items,
		ledger:       l,
		scanner:      scanner,
		audio:        audio,
		clock:        opts.Clock,
		successDelay: opts.SuccessDelay,
		rejectDelay:  opts.RejectDelay,
	}
}

// HandleDecode processes one decode event. Decodes arriving while a previous
// one is being matched or its feedback is still showing are dropped with
// ErrBusy, so a single physical scan is never counted twice.
func (d *Dispatcher) HandleDecode(text string) (Feedback, error) {
	d.mu.Lock()
	switch d.state {
	case StateClosed:
		d.mu.Unlock()
		return Feedback{}, ErrClosed
	case StateIdle:
		d.state = StateMatching
	default:
		d.mu.Unlock()
		return Feedback{}, ErrBusy
	}
	d.mu.Unlock()

	d.scanner.Pause()
	fb, delay := d.match(text)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Close won while matching; resources are already released.
	if d.state == StateClosed {
		return fb, ErrClosed
	}

	d.state = StateFeedback
	d.feedback = &fb
	d.audio.Play(fb.Tone)
	d.timer = d.clock.AfterFunc(delay, d.returnToIdle)

	return fb, nil
}

func (d *Dispatcher) match(text string) (Feedback, time.Duration) {
	token := sku.Normalize(text)

	item, ok := d.resolve(token)
	if !ok {
		return notFound(token), d.rejectDelay
	}

	entry, ok := d.ledger.Entry(item.ID)
	if !ok {
		return notFound(token), d.rejectDelay
	}
	if entry.Headroom() == 0 {
		return maxReached(token, entry), d.rejectDelay
	}

	entry, reason := d.ledger.IncrementRegular(item.ID)
	switch reason {
	case ledger.ReasonNone:
		return success(token, entry), d.successDelay
	case ledger.ReasonEntryNotFound:
		return notFound(token), d.rejectDelay
	case ledger.ReasonFrozen:
		return locked(token, entry), d.rejectDelay
	default:
		// A manual count filled the entry between the check and the increment.
		return maxReached(token, entry), d.rejectDelay
	}
}

// resolve returns the first line item, in QC order, whose scan token matches.
func (d *Dispatcher) resolve(token string) (models.LineItem, bool) {
	for _, item := range d.items {
		if sku.Equal(token, item.ScanToken) {
			return item, true
		}
	}
	return models.LineItem{}, false
}

func (d *Dispatcher) returnToIdle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateFeedback {
		return
	}
	d.state = StateIdle
	d.feedback = nil
	d.timer = nil
	d.scanner.Resume()
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Feedback returns the feedback currently shown, if any.
func (d *Dispatcher) Feedback() (Feedback, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.feedback == nil {
		return Feedback{}, false
	}
	return *d.feedback, true
}

// Close cancels a pending return to idle and releases the scanner and audio.
// It is safe to call more than once; only the first call releases anything.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return nil
	}
	d.state = StateClosed
	d.feedback = nil
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	return errors.Join(d.scanner.Close(), d.audio.Close())
}
