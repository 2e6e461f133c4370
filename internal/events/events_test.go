package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder keeps published events in memory.
type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (r *recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func TestFanout(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	f := Fanout{a, b}

	require.NoError(t, f.Publish(t.Context(), New(TypePaymentApproved, "pay-1", nil)))

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)

	require.NoError(t, f.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestFanout_JoinsErrors(t *testing.T) {
	errBroker := errors.New("broker down")
	ok, failing := &recorder{}, &recorder{err: errBroker}

	err := Fanout{failing, ok}.Publish(t.Context(), New(TypeTicketValidated, "t-1", nil))

	assert.ErrorIs(t, err, errBroker)
	assert.Len(t, ok.events, 1, "a failing publisher must not stop the others")
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop().Publish(t.Context(), New(TypeTicketsIssued, "x", nil)))
	assert.NoError(t, Noop().Close())
}

func TestPubNub_Publish(t *testing.T) {
	var gotChannel string
	var gotMsg any
	p := &PubNub{
		channel: "theater-events",
		publish: func(_ context.Context, channel string, msg any) error {
			gotChannel, gotMsg = channel, msg
			return nil
		},
	}

	require.NoError(t, p.Publish(t.Context(), New(TypeTicketValidated, "t-1", map[string]string{"ticketNumber": "HAMLET-1-001"})))

	assert.Equal(t, "theater-events", gotChannel)
	msg, ok := gotMsg.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, TypeTicketValidated, msg["type"])
	assert.Equal(t, "t-1", msg["key"])
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w}

	e := New(TypePaymentApproved, "pay-1", map[string]int{"tickets": 3})
	require.NoError(t, k.Publish(t.Context(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, []byte("pay-1"), msg.Key)
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TypePaymentApproved), msg.Headers[0].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, TypePaymentApproved, decoded["type"])
	assert.Equal(t, float64(3), decoded["data"].(map[string]any)["tickets"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishError(t *testing.T) {
	k := &Kafka{writer: &fakeWriter{err: errors.New("no brokers")}}

	err := k.Publish(t.Context(), New(TypePaymentApproved, "pay-1", nil))
	assert.ErrorContains(t, err, "no brokers")
}
