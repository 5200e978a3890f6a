package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"qcwarehouse/internal/metrics"
	"qcwarehouse/internal/qc/ledger"
	"qcwarehouse/internal/qc/scan"
	custom_error "qcwarehouse/pkg/errors"
	"qcwarehouse/pkg/metadata"
	"qcwarehouse/pkg/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockRecords struct {
	mock.Mock
}

func (m *MockRecords) GetQC(id int) (*models.QC, error) {
	args := m.Called(id)
	if qc := args.Get(0); qc != nil {
		return qc.(*models.QC), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRecords) GetLineItems(qcID int) ([]models.LineItem, error) {
	args := m.Called(qcID)
	return args.Get(0).([]models.LineItem), args.Error(1)
}

func (m *MockRecords) UpdateStatus(qcID int, status metadata.Status) error {
	args := m.Called(qcID, status)
	return args.Error(0)
}

func (m *MockRecords) PersistSubmission(payload models.SubmissionPayload) (int, error) {
	args := m.Called(payload)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishSubmission(ctx context.Context, payload models.SubmissionPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return nil
}

type stoppedTimer struct{}

func (stoppedTimer) Stop() bool { return true }

// heldClock never fires, so feedback stays up until the test is done.
type heldClock struct{}

func (heldClock) AfterFunc(time.Duration, func()) scan.Timer { return stoppedTimer{} }

var (
	fixedNow  = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)
	testQC    = models.QC{ID: 7, Reference: "QC-7", Status: "open"}
	testLines = []models.LineItem{
		{ID: 1, QCID: 7, PartNumber: "AB-1234", ScanToken: "AB1234", TargetQuantity: 2},
		{ID: 2, QCID: 7, PartNumber: "XY-9876", ScanToken: "XY9876", TargetQuantity: 1},
	}
)

type harness struct {
	manager   *Manager
	records   *MockRecords
	publisher *MockPublisher
	snapshots *MemorySnapshotStore
	metrics   *metrics.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		records:   new(MockRecords),
		publisher: new(MockPublisher),
		snapshots: NewMemorySnapshotStore(),
		metrics:   metrics.NewRegistry(),
	}
	h.manager = NewManager(h.records, h.publisher, h.snapshots, h.metrics, zap.NewNop(), Options{
		Scan: scan.Options{Clock: heldClock{}},
		Now:  func() time.Time { return fixedNow },
	})
	return h
}

func (h *harness) expectLoad() {
	qc := testQC
	h.records.On("GetQC", 7).Return(&qc, nil)
	h.records.On("GetLineItems", 7).Return(testLines, nil)
	h.records.On("UpdateStatus", 7, metadata.StatusInProgress).Return(nil)
}

func TestOpen(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()

	s, err := h.manager.Open(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, "in_progress", s.QC.Status)
	assert.Len(t, s.Ledger.Entries(), 2)
	assert.Equal(t, scan.StateIdle, s.Dispatcher.State())
	assert.True(t, s.Scanner.Scanning())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.OpenSessions))

	again, err := h.manager.Open(context.Background(), 7)
	require.NoError(t, err)
	assert.Same(t, s, again)
	h.records.AssertNumberOfCalls(t, "GetQC", 1)
}

func TestOpenRefusesClosedQC(t *testing.T) {
	for _, status := range []string{"submitted", "cancelled"} {
		t.Run(status, func(t *testing.T) {
			h := newHarness(t)
			qc := testQC
			qc.Status = status
			h.records.On("GetQC", 7).Return(&qc, nil)

			_, err := h.manager.Open(context.Background(), 7)

			assert.ErrorIs(t, err, ErrQCNotOpen)
		})
	}
}

func TestOpenUnknownQC(t *testing.T) {
	h := newHarness(t)
	h.records.On("GetQC", 99).Return(nil, &custom_error.NotFoundError{Resource: "qc", ID: 99})

	_, err := h.manager.Open(context.Background(), 99)

	var notFound *custom_error.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestMutatePersistsSnapshot(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	_, err := h.manager.Open(ctx, 7)
	require.NoError(t, err)

	result, err := h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.IncrementRegular(1)
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, 1, result.Entry.RegularQuantity)

	snap, found, err := h.snapshots.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, snap.Entries[0].RegularQuantity)
}

func TestMutateRejectionIsNotAnError(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	_, _ = h.manager.Open(ctx, 7)

	result, err := h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.DecrementRegular(1)
	})

	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, ledger.ReasonNothingToDecrement, result.Reason)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.LedgerRejections.WithLabelValues("nothing_to_decrement")))
	_, found, _ := h.snapshots.Load(ctx, 7)
	assert.False(t, found)
}

func TestMutateWithoutSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.manager.Mutate(context.Background(), 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.IncrementRegular(1)
	})

	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestReopenRestoresSnapshot(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	_, _ = h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.AddDelayed(2, ledger.Delayed{Quantity: 1})
	})
	require.NoError(t, h.manager.Close(7))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.OpenSessions))

	s, err := h.manager.Open(ctx, 7)
	require.NoError(t, err)

	e, ok := s.Ledger.Entry(2)
	require.True(t, ok)
	assert.Equal(t, 1, e.TotalDelayedQuantity)
	assert.Equal(t, metadata.EntryCompleted, e.Status)
}

func TestOpenDiscardsStaleSnapshot(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	require.NoError(t, h.snapshots.Save(ctx, 7, ledger.Snapshot{Entries: []ledger.Entry{
		{ItemID: 1, OriginalQuantity: 10, RegularQuantity: 9},
		{ItemID: 2, OriginalQuantity: 1},
	}}))

	s, err := h.manager.Open(ctx, 7)
	require.NoError(t, err)

	e, _ := s.Ledger.Entry(1)
	assert.Equal(t, 0, e.RegularQuantity)
	assert.Equal(t, 2, e.OriginalQuantity)
}

func TestScan(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	s, _ := h.manager.Open(ctx, 7)

	fb, err := h.manager.Scan(ctx, 7, "ab-1234\n")
	require.NoError(t, err)
	assert.Equal(t, scan.FeedbackSuccess, fb.Kind)
	assert.False(t, s.Scanner.Scanning())

	_, err = h.manager.Scan(ctx, 7, "ab-1234\n")
	assert.ErrorIs(t, err, scan.ErrBusy)

	e, _ := s.Ledger.Entry(1)
	assert.Equal(t, 1, e.RegularQuantity)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Scans.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.DroppedScans))

	view := s.View()
	assert.Equal(t, scan.StateFeedback, view.State)
	require.NotNil(t, view.Feedback)
	assert.Equal(t, scan.FeedbackSuccess, view.Feedback.Kind)
}

func TestSubmitIncompleteIsRefused(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	_, _ = h.manager.Open(ctx, 7)

	result, err := h.manager.Submit(ctx, 7, nil, false)

	var incomplete *custom_error.IncompleteQCError
	require.True(t, errors.As(err, &incomplete))
	assert.Equal(t, 2, incomplete.Incomplete)
	assert.False(t, result.Report.IsComplete)
	h.records.AssertNotCalled(t, "PersistSubmission", mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Submissions.WithLabelValues("incomplete")))

	mutation, err := h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.IncrementRegular(1)
	})
	require.NoError(t, err)
	assert.True(t, mutation.Applied, "a refused submission leaves the ledger editable")
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	s, _ := h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(1) })
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(2) })
	userID := 3

	h.records.On("PersistSubmission", mock.MatchedBy(func(p models.SubmissionPayload) bool {
		return p.QCID == 7 && p.SubmittedBy != nil && *p.SubmittedBy == 3 && len(p.Items) == 2
	})).Return(55, nil).Once()
	h.publisher.On("PublishSubmission", mock.Anything, mock.Anything).Return(nil).Once()

	result, err := h.manager.Submit(ctx, 7, &userID, false)
	require.NoError(t, err)

	assert.Equal(t, 55, result.SubmissionID)
	assert.True(t, result.Report.IsComplete)
	assert.Equal(t, fixedNow, result.Payload.SubmittedAt)
	assert.Equal(t, 0, s.Ledger.Len())
	assert.Equal(t, scan.StateClosed, s.Dispatcher.State())

	_, err = h.manager.Get(7)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, found, _ := h.snapshots.Load(ctx, 7)
	assert.False(t, found)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Submissions.WithLabelValues("submitted")))

	h.records.AssertExpectations(t)
	h.publisher.AssertExpectations(t)
}

func TestSubmitPartialSendsMarketQuantity(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	_, _ = h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.IncrementRegular(1) })

	h.records.On("PersistSubmission", mock.Anything).Return(1, nil)
	h.publisher.On("PublishSubmission", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	result, err := h.manager.Submit(ctx, 7, nil, true)
	require.NoError(t, err)

	require.Len(t, result.Payload.Items, 2)
	assert.Equal(t, 1, result.Payload.Items[0].MarketQuantity)
	assert.Equal(t, 1, result.Payload.Items[1].MarketQuantity)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.PublishFailures))
}

func TestSubmitPersistFailureKeepsSession(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	s, _ := h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(1) })
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(2) })

	h.records.On("PersistSubmission", mock.Anything).
		Return(0, custom_error.WrapDBError("QC already submitted", "23505"))

	_, err := h.manager.Submit(ctx, 7, nil, false)

	var duplicate *custom_error.UniqueViolationError
	require.True(t, errors.As(err, &duplicate))
	assert.Equal(t, 2, s.Ledger.Len())
	_, err = h.manager.Get(7)
	assert.NoError(t, err)
	h.publisher.AssertNotCalled(t, "PublishSubmission", mock.Anything, mock.Anything)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.Submissions.WithLabelValues("duplicate")))

	mutation, err := h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.DecrementRegular(1)
	})
	require.NoError(t, err)
	assert.True(t, mutation.Applied, "a failed submission leaves the ledger editable")
}

type submitOutcome struct {
	result SubmitResult
	err    error
}

func TestSubmitRefusesChangesWhileStoring(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	ctx := context.Background()
	s, _ := h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(1) })
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.BulkFill(2) })

	storing := make(chan struct{})
	release := make(chan struct{})
	h.records.On("PersistSubmission", mock.Anything).
		Run(func(mock.Arguments) {
			close(storing)
			<-release
		}).
		Return(9, nil).Once()
	h.publisher.On("PublishSubmission", mock.Anything, mock.Anything).Return(nil)

	done := make(chan submitOutcome, 1)
	go func() {
		result, err := h.manager.Submit(ctx, 7, nil, false)
		done <- submitOutcome{result: result, err: err}
	}()
	<-storing

	mutation, err := h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) {
		return l.DecrementRegular(1)
	})
	assert.ErrorIs(t, err, ErrSubmitting)
	assert.False(t, mutation.Applied)
	assert.Equal(t, ledger.ReasonFrozen, mutation.Reason)

	_, err = h.manager.Scan(ctx, 7, "AB1234")
	assert.ErrorIs(t, err, ErrSubmitting)
	_, err = h.manager.ResetAll(ctx, 7)
	assert.ErrorIs(t, err, ErrSubmitting)
	assert.Equal(t, scan.StateIdle, s.Dispatcher.State())

	close(release)
	out := <-done
	require.NoError(t, out.err)

	require.Len(t, out.result.Payload.Items, 2)
	assert.Equal(t, 2, out.result.Payload.Items[0].RegularQuantity)
	assert.Equal(t, 0, out.result.Payload.Items[0].MarketQuantity)
	assert.True(t, out.result.Report.IsComplete)
	h.records.AssertExpectations(t)
}

// gatedStore holds the first Save until release is closed.
type gatedStore struct {
	*MemorySnapshotStore

	mu       sync.Mutex
	saves    int
	entered  chan struct{}
	release  chan struct{}
	versions []uint64
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemorySnapshotStore: NewMemorySnapshotStore(),
		entered:             make(chan struct{}),
		release:             make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, qcID int, snap ledger.Snapshot) error {
	g.mu.Lock()
	first := g.saves == 0
	g.saves++
	g.versions = append(g.versions, snap.Version)
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemorySnapshotStore.Save(ctx, qcID, snap)
}

func TestSnapshotsAreSavedInOrder(t *testing.T) {
	h := newHarness(t)
	store := newGatedStore()
	h.manager = NewManager(h.records, h.publisher, store, h.metrics, zap.NewNop(), Options{
		Scan: scan.Options{Clock: heldClock{}},
		Now:  func() time.Time { return fixedNow },
	})
	h.expectLoad()
	ctx := context.Background()
	s, err := h.manager.Open(ctx, 7)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.IncrementRegular(1) })
	}()
	<-store.entered

	go func() {
		defer wg.Done()
		_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.IncrementRegular(2) })
	}()
	require.Eventually(t, func() bool {
		e, _ := s.Ledger.Entry(2)
		return e.RegularQuantity == 1
	}, time.Second, time.Millisecond)

	close(store.release)
	wg.Wait()

	snap, found, err := store.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, snap.Entries[0].RegularQuantity)
	assert.Equal(t, 1, snap.Entries[1].RegularQuantity, "the later count is not overwritten")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.IsIncreasing(t, store.versions)
}

func TestPersistSkipsUnchangedLedger(t *testing.T) {
	h := newHarness(t)
	store := newGatedStore()
	close(store.release)
	h.manager = NewManager(h.records, h.publisher, store, h.metrics, zap.NewNop(), Options{
		Scan: scan.Options{Clock: heldClock{}},
	})
	h.expectLoad()
	ctx := context.Background()
	s, _ := h.manager.Open(ctx, 7)
	_, _ = h.manager.Mutate(ctx, 7, func(l *ledger.Ledger) (ledger.Entry, ledger.RejectionReason) { return l.IncrementRegular(1) })

	h.manager.persist(ctx, s)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.saves)
}

func TestCloseAll(t *testing.T) {
	h := newHarness(t)
	h.expectLoad()
	s, _ := h.manager.Open(context.Background(), 7)

	h.manager.CloseAll()

	assert.Equal(t, scan.StateClosed, s.Dispatcher.State())
	assert.ErrorIs(t, h.manager.Close(7), ErrSessionNotFound)
}
