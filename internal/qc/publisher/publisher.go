// Package publisher announces persisted QC submissions to downstream systems.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"qcwarehouse/pkg/models"

	"github.com/segmentio/kafka-go"
)

const EventSubmitted = "qc.submitted"

type Event struct {
	Type        string                   `json:"type"`
	SubmittedAt time.Time                `json:"submitted_at"`
	Submission  models.SubmissionPayload `json:"submission"`
}

type Publisher interface {
	PublishSubmission(ctx context.Context, payload models.SubmissionPayload) error
	Close() error
}

// messageWriter abstracts kafka.Writer for tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher takes a comma separated list of host:port brokers.
func NewKafkaPublisher(brokers string, topic string) *KafkaPublisher {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func newKafkaPublisherWith(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// PublishSubmission writes one event keyed by QC id so all events of a QC land
// on the same partition.
func (k *KafkaPublisher) PublishSubmission(ctx context.Context, payload models.SubmissionPayload) error {
	b, err := json.Marshal(Event{
		Type:        EventSubmitted,
		SubmittedAt: payload.SubmittedAt,
		Submission:  payload,
	})
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.Itoa(payload.QCID)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSubmitted)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish submission of qc %d: %w", payload.QCID, err)
	}
	return nil
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSubmission(context.Context, models.SubmissionPayload) error { return nil }
func (NopPublisher) Close() error                                                      { return nil }

// Multi fans a submission out to every publisher. All of them are tried and
// their errors are joined.
type Multi []Publisher

func (m Multi) PublishSubmission(ctx context.Context, payload models.SubmissionPayload) error {
	var errs []error
	for _, s := range m {
		if err := s.PublishSubmission(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
