package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"qcwarehouse/internal/metrics"
	"qcwarehouse/internal/qc/completion"
	"qcwarehouse/internal/qc/ledger"
	"qcwarehouse/internal/qc/publisher"
	"qcwarehouse/internal/qc/scan"
	custom_error "qcwarehouse/pkg/errors"
	"qcwarehouse/pkg/metadata"
	"qcwarehouse/pkg/models"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("qc session not loaded")
	ErrQCNotOpen       = errors.New("qc is already submitted or cancelled")
	// ErrSubmitting is returned for changes to a QC whose submission is
	// being stored. The change is not applied.
	ErrSubmitting = errors.New("qc submission in progress")
)

// Records is the QC data source and the submission sink.
type Records interface {
	GetQC(id int) (*models.QC, error)
	GetLineItems(qcID int) ([]models.LineItem, error)
	UpdateStatus(qcID int, status metadata.Status) error
	PersistSubmission(payload models.SubmissionPayload) (int, error)
}

type Options struct {
	Scan scan.Options
	Now  func() time.Time
}

type Manager struct {
	mu       sync.Mutex
	sessions map[int]*Session

	records   Records
	publisher publisher.Publisher
	snapshots SnapshotStore
	metrics   *metrics.Registry
	logger    *zap.Logger
	scanOpts  scan.Options
	now       func() time.Time
}

func NewManager(
	records Records,
	pub publisher.Publisher,
	snapshots SnapshotStore,
	reg *metrics.Registry,
	logger *zap.Logger,
	opts Options,
) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		sessions:  make(map[int]*Session),
		records:   records,
		publisher: pub,
		snapshots: snapshots,
		metrics:   reg,
		logger:    logger,
		scanOpts:  opts.Scan,
		now:       opts.Now,
	}
}

// Open loads the QC and its line items and initializes a fresh ledger, or
// restores the stored snapshot when it still matches the line items. Opening
// an already loaded QC returns the existing session.
func (m *Manager) Open(ctx context.Context, qcID int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[qcID]; ok {
		return s, nil
	}

	qc, err := m.records.GetQC(qcID)
	if err != nil {
		return nil, err
	}
	status, err := metadata.NewStatus(qc.Status)
	if err != nil {
		return nil, fmt.Errorf("qc %d: %w", qcID, err)
	}
	if status == metadata.StatusSubmitted || status == metadata.StatusCancelled {
		return nil, ErrQCNotOpen
	}

	items, err := m.records.GetLineItems(qcID)
	if err != nil {
		return nil, err
	}

	l := ledger.New()
	l.Initialize(items)
	m.restore(ctx, qcID, l, items)

	if status == metadata.StatusOpen {
		if err := m.records.UpdateStatus(qcID, metadata.StatusInProgress); err != nil {
			m.logger.Warn("Unable to mark qc in progress", zap.Int("qc_id", qcID), zap.Error(err))
		} else {
			qc.Status = metadata.StatusInProgress.String()
		}
	}

	scanner := scan.NewRemoteScanner()
	s := &Session{
		QC:         *qc,
		Items:      items,
		Ledger:     l,
		Dispatcher: scan.NewDispatcher(items, l, scanner, scan.NewLogAudio(m.logger, qcID), m.scanOpts),
		Scanner:    scanner,
		OpenedAt:   m.now(),
	}
	m.sessions[qcID] = s
	m.metrics.OpenSessions.Inc()

	m.logger.Info("QC session opened", zap.Int("qc_id", qcID), zap.Int("line_items", len(items)))
	return s, nil
}

func (m *Manager) restore(ctx context.Context, qcID int, l *ledger.Ledger, items []models.LineItem) {
	snap, found, err := m.snapshots.Load(ctx, qcID)
	if err != nil {
		m.logger.Warn("Unable to load qc snapshot", zap.Int("qc_id", qcID), zap.Error(err))
		return
	}
	if !found {
		return
	}
	if !matchesItems(snap, items) {
		m.logger.Info("Discarding stale qc snapshot", zap.Int("qc_id", qcID))
		return
	}
	if err := l.Restore(snap); err != nil {
		m.logger.Warn("Discarding invalid qc snapshot", zap.Int("qc_id", qcID), zap.Error(err))
		return
	}
	m.logger.Info("QC session restored from snapshot", zap.Int("qc_id", qcID))
}

func (m *Manager) Get(qcID int) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[qcID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close tears the session down. The snapshot is kept so the next Open resumes
// the count.
func (m *Manager) Close(qcID int) error {
	m.mu.Lock()
	s, ok := m.sessions[qcID]
	if ok {
		delete(m.sessions, qcID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.metrics.OpenSessions.Dec()
	return s.Dispatcher.Close()
}

// CloseAll tears down every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("Unable to close qc session", zap.Int("qc_id", id), zap.Error(err))
		}
	}
}

// Mutate applies one manual ledger operation and snapshots the ledger when it
// went through.
func (m *Manager) Mutate(ctx context.Context, qcID int, op func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason)) (MutationResult, error) {
	s, err := m.Get(qcID)
	if err != nil {
		return MutationResult{}, err
	}

	entry, reason := op(s.Ledger)
	if reason == ledger.ReasonFrozen {
		return MutationResult{Applied: false, Reason: reason, Entry: entry}, ErrSubmitting
	}
	if !reason.Applied() {
		m.metrics.LedgerRejections.WithLabelValues(string(reason)).Inc()
		return MutationResult{Applied: false, Reason: reason, Entry: entry}, nil
	}

	m.persist(ctx, s)
	return MutationResult{Applied: true, Entry: entry}, nil
}

func (m *Manager) ResetAll(ctx context.Context, qcID int) ([]ledger.Entry, error) {
	s, err := m.Get(qcID)
	if err != nil {
		return nil, err
	}

	if reason := s.Ledger.ResetAll(); reason == ledger.ReasonFrozen {
		return nil, ErrSubmitting
	}
	m.persist(ctx, s)
	return s.Ledger.Entries(), nil
}

// Scan feeds one decoded string to the session's dispatcher.
func (m *Manager) Scan(ctx context.Context, qcID int, text string) (scan.Feedback, error) {
	s, err := m.Get(qcID)
	if err != nil {
		return scan.Feedback{}, err
	}
	if s.Ledger.Frozen() {
		return scan.Feedback{}, ErrSubmitting
	}

	fb, err := s.Dispatcher.HandleDecode(text)
	if err != nil {
		if errors.Is(err, scan.ErrBusy) {
			m.metrics.DroppedScans.Inc()
		}
		return fb, err
	}

	m.metrics.Scans.WithLabelValues(string(fb.Kind)).Inc()
	if fb.Kind.Accepted() {
		m.persist(ctx, s)
	}
	return fb, nil
}

func (m *Manager) Report(qcID int) (completion.Report, error) {
	s, err := m.Get(qcID)
	if err != nil {
		return completion.Report{}, err
	}
	return completion.BuildCompletionReport(qcID, s.Items, s.Ledger.Snapshot())
}

type SubmitResult struct {
	SubmissionID int                      `json:"submission_id"`
	Payload      models.SubmissionPayload `json:"payload"`
	Report       completion.Report        `json:"report"`
}

// Submit builds the payload, persists it and publishes it. On success the
// ledger is wiped and the session closed. Incomplete QCs are refused unless
// allowPartial is set, in which case the shortfall goes out as market quantity.
func (m *Manager) Submit(ctx context.Context, qcID int, userID *int, allowPartial bool) (SubmitResult, error) {
	start := m.now()
	result, err := m.submit(ctx, qcID, userID, allowPartial)
	if err != nil {
		m.metrics.Submissions.WithLabelValues(submitFailureLabel(err)).Inc()
		return result, err
	}

	m.metrics.Submissions.WithLabelValues("submitted").Inc()
	m.metrics.SubmissionLatency.Observe(m.now().Sub(start).Seconds())
	return result, nil
}

func (m *Manager) submit(ctx context.Context, qcID int, userID *int, allowPartial bool) (SubmitResult, error) {
	s, err := m.Get(qcID)
	if err != nil {
		return SubmitResult{}, err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if s.submitted {
		return SubmitResult{}, ErrSessionNotFound
	}

	// Nothing may change between what is checked, what is stored and what
	// is cleared. The freeze is lifted again if the submission fails.
	snap := s.Ledger.Freeze()
	stored := false
	defer func() {
		if !stored {
			s.Ledger.Unfreeze()
		}
	}()

	report, err := completion.BuildCompletionReport(qcID, s.Items, snap)
	if err != nil {
		m.logger.Error("Ledger out of sync with line items", zap.Int("qc_id", qcID), zap.Error(err))
		return SubmitResult{}, err
	}
	if !report.IsComplete && !allowPartial {
		return SubmitResult{Report: report}, &custom_error.IncompleteQCError{QCID: qcID, Incomplete: len(report.Incomplete)}
	}

	payload, err := completion.BuildSubmission(s.QC, s.Items, snap, m.now())
	if err != nil {
		m.logger.Error("Ledger out of sync with line items", zap.Int("qc_id", qcID), zap.Error(err))
		return SubmitResult{}, err
	}
	payload.SubmittedBy = userID

	submissionID, err := m.records.PersistSubmission(payload)
	if err != nil {
		return SubmitResult{Report: report}, err
	}

	stored = true
	s.submitted = true

	// The submission is stored at this point; publishing is best effort.
	if err := m.publisher.PublishSubmission(ctx, payload); err != nil {
		m.metrics.PublishFailures.Inc()
		m.logger.Error("Unable to publish qc submission", zap.Int("qc_id", qcID), zap.Error(err))
	}

	s.persistMu.Lock()
	s.discarded = true
	s.Ledger.Clear()
	if err := m.snapshots.Delete(ctx, qcID); err != nil {
		m.logger.Warn("Unable to delete qc snapshot", zap.Int("qc_id", qcID), zap.Error(err))
	}
	s.persistMu.Unlock()

	if err := m.Close(qcID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		m.logger.Warn("Unable to release qc session", zap.Int("qc_id", qcID), zap.Error(err))
	}

	m.logger.Info("QC submitted", zap.Int("qc_id", qcID), zap.Int("submission_id", submissionID))
	return SubmitResult{SubmissionID: submissionID, Payload: payload, Report: report}, nil
}

// persist saves the current ledger. Saves of one session run one at a time
// and a snapshot no newer than the last saved one is skipped, so a slow
// save never overwrites a later count.
func (m *Manager) persist(ctx context.Context, s *Session) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.discarded {
		return
	}
	snap := s.Ledger.Snapshot()
	if snap.Version <= s.savedVersion {
		return
	}
	if err := m.snapshots.Save(ctx, s.QC.ID, snap); err != nil {
		m.metrics.SnapshotFailures.Inc()
		m.logger.Warn("Unable to save qc snapshot", zap.Int("qc_id", s.QC.ID), zap.Error(err))
		return
	}
	s.savedVersion = snap.Version
}

func submitFailureLabel(err error) string {
	var incomplete *custom_error.IncompleteQCError
	var duplicate *custom_error.UniqueViolationError
	switch {
	case errors.As(err, &incomplete):
		return "incomplete"
	case errors.As(err, &duplicate):
		return "duplicate"
	case errors.Is(err, ErrSessionNotFound):
		return "not_loaded"
	case errors.Is(err, ErrSubmitting):
		return "in_progress"
	default:
		return "failed"
	}
}
