package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, "identity.analytics")

	err := p.Publish(context.Background(), "u-1", map[string]string{"event": "user_signed_up"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u-1", string(w.msgs[0].Key))
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "user_signed_up", decoded["event"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("leader not available")}, "identity.analytics")

	err := p.Publish(context.Background(), "u-1", map[string]string{})
	assert.ErrorContains(t, err, "identity.analytics")
}

func TestNew_NoBrokersIsNoop(t *testing.T) {
	p := New([]string{"", " "}, "identity.analytics")
	_, ok := p.(NoopPublisher)
	assert.True(t, ok)
	assert.NoError(t, p.Publish(context.Background(), "u-1", nil))
}
