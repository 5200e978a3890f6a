package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"qcwarehouse/pkg/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_PublishSubmission(t *testing.T) {
	fk := &fakeKafkaWriter{}
	p := newKafkaPublisherWith(fk)
	payload := models.SubmissionPayload{
		QCID:        12,
		Reference:   "QC-12",
		SubmittedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
		Items: []models.SubmissionItem{
			{LineItemID: 1, PartNumber: "AB-1", RegularQuantity: 3, MarketQuantity: 1},
		},
	}

	require.NoError(t, p.PublishSubmission(context.Background(), payload))

	require.Len(t, fk.msgs, 1)
	assert.Equal(t, "12", string(fk.msgs[0].Key))
	assert.Equal(t, "event_type", fk.msgs[0].Headers[0].Key)

	var event Event
	require.NoError(t, json.Unmarshal(fk.msgs[0].Value, &event))
	assert.Equal(t, EventSubmitted, event.Type)
	assert.Equal(t, 12, event.Submission.QCID)
	assert.Equal(t, 1, event.Submission.Items[0].MarketQuantity)
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	p := newKafkaPublisherWith(&fakeKafkaWriter{fail: true})

	err := p.PublishSubmission(context.Background(), models.SubmissionPayload{QCID: 3})

	assert.ErrorContains(t, err, "qc 3")
}

func TestKafkaPublisher_Close(t *testing.T) {
	fk := &fakeKafkaWriter{}

	require.NoError(t, newKafkaPublisherWith(fk).Close())
	assert.True(t, fk.closed)
}

func TestNewKafkaPublisher(t *testing.T) {
	p := NewKafkaPublisher(" localhost:9092, ,kafka:9092 ", "qc.submissions")

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "qc.submissions", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestMultiPublishesToEverySink(t *testing.T) {
	ok := &fakeKafkaWriter{}
	failing := &fakeKafkaWriter{fail: true}
	m := Multi{newKafkaPublisherWith(failing), newKafkaPublisherWith(ok), NopPublisher{}}

	err := m.PublishSubmission(context.Background(), models.SubmissionPayload{QCID: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Len(t, ok.msgs, 1, "a failing sink does not stop the others")

	require.NoError(t, m.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}
