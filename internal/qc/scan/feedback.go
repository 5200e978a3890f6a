package scan

import (
	"time"

	"qcwarehouse/internal/qc/ledger"
)

type FeedbackKind string

const (
	FeedbackSuccess    FeedbackKind = "success"
	FeedbackNotFound   FeedbackKind = "not_found"
	FeedbackMaxReached FeedbackKind = "max_reached"
	FeedbackLocked     FeedbackKind = "locked"
)

func (k FeedbackKind) Accepted() bool {
	return k == FeedbackSuccess
}

type Waveform string

const (
	WaveSine   Waveform = "sine"
	WaveSquare Waveform = "square"
)

// ToneProfile describes a feedback beep: oscillator frequency and shape, a
// peak gain and a linear release over Duration.
type ToneProfile struct {
	Name        string        `json:"name"`
	FrequencyHz float64       `json:"frequency_hz"`
	Waveform    Waveform      `json:"waveform"`
	Gain        float64       `json:"gain"`
	Duration    time.Duration `json:"duration"`
}

var (
	SuccessTone = ToneProfile{Name: "success", FrequencyHz: 1200, Waveform: WaveSine, Gain: 0.3, Duration: 150 * time.Millisecond}
	RejectTone  = ToneProfile{Name: "reject", FrequencyHz: 300, Waveform: WaveSquare, Gain: 0.4, Duration: 600 * time.Millisecond}
)

// Feedback is what the operator sees and hears after a decode.
type Feedback struct {
	Kind    FeedbackKind  `json:"kind"`
	Token   string        `json:"token"`
	ItemID  int           `json:"item_id,omitempty"`
	Message string        `json:"message"`
	Tone    ToneProfile   `json:"tone"`
	Entry   *ledger.Entry `json:"entry,omitempty"`
}

func notFound(token string) Feedback {
	return Feedback{
		Kind:    FeedbackNotFound,
		Token:   token,
		Message: "Item " + token + " is not part of this QC",
		Tone:    RejectTone,
	}
}

func maxReached(token string, entry ledger.Entry) Feedback {
	return Feedback{
		Kind:    FeedbackMaxReached,
		Token:   token,
		ItemID:  entry.ItemID,
		Message: "Maximum quantity already reached for " + token,
		Tone:    RejectTone,
		Entry:   &entry,
	}
}

func success(token string, entry ledger.Entry) Feedback {
	return Feedback{
		Kind:    FeedbackSuccess,
		Token:   token,
		ItemID:  entry.ItemID,
		Message: "Counted " + token,
		Tone:    SuccessTone,
		Entry:   &entry,
	}
}

func locked(token string, entry ledger.Entry) Feedback {
	return Feedback{
		Kind:    FeedbackLocked,
		Token:   token,
		ItemID:  entry.ItemID,
		Message: "QC is being submitted, " + token + " was not counted",
		Tone:    RejectTone,
		Entry:   &entry,
	}
}
