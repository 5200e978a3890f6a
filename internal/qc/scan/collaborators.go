package scan

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scanner is the decoder feeding HandleDecode. It is paused while a decode is
// being matched and while feedback is shown.
type Scanner interface {
	Pause()
	Resume()
	Close() error
}

// Audio plays operator feedback tones.
type Audio interface {
	Play(tone ToneProfile)
	Close() error
}

type Timer interface {
	Stop() bool
}

type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock schedules callbacks on the runtime timer.
func RealClock() Clock {
	return realClock{}
}

// RemoteScanner tracks whether the remote decoder should be scanning. The
// client polls the session and pauses its camera while Scanning is false.
type RemoteScanner struct {
	mu       sync.Mutex
	scanning bool
	closed   bool
}

func NewRemoteScanner() *RemoteScanner {
	return &RemoteScanner{scanning: true}
}

func (s *RemoteScanner) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanning = false
}

func (s *RemoteScanner) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.scanning = true
	}
}

func (s *RemoteScanner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.scanning = false
	return nil
}

func (s *RemoteScanner) Scanning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanning
}

// LogAudio records requested tones instead of playing them. The client picks
// the tone up from the feedback in the scan response.
type LogAudio struct {
	logger *zap.Logger
	qcID   int
}

func NewLogAudio(logger *zap.Logger, qcID int) *LogAudio {
	return &LogAudio{logger: logger, qcID: qcID}
}

func (a *LogAudio) Play(tone ToneProfile) {
	a.logger.Debug("Feedback tone",
		zap.Int("qc_id", a.qcID),
		zap.String("tone", tone.Name),
		zap.Float64("frequency_hz", tone.FrequencyHz),
		zap.Duration("duration", tone.Duration),
	)
}

func (a *LogAudio) Close() error {
	return nil
}
