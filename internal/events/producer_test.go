package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/pharmacy_shop/pkg/logging"
)

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

func TestProducer_PublishEvent(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Producer{writer: w}

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	err := p.PublishEvent(context.Background(), TopicCart, "v1", CartEvent{Type: "item_added", VisitorID: "v1", ItemID: "m1", Quantity: 1, Lines: 1, At: at})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, TopicCart, msg.Topic)
	assert.Equal(t, "v1", string(msg.Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "item_added", got["type"])
	assert.Equal(t, "m1", got["item_id"])

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestProducer_WriteError(t *testing.T) {
	t.Parallel()

	p := &Producer{writer: &fakeWriter{err: errors.New("leader not available")}}
	err := p.PublishEvent(context.Background(), TopicAuth, "k", AuthEvent{Type: "signed_in"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")

	err = p.PublishEvent(context.Background(), TopicAuth, "k", func() {})
	assert.ErrorContains(t, err, "json.Marshal")
}

type failing struct{ Nop }

func (failing) PublishEvent(context.Context, string, string, any) error {
	return errors.New("broker down")
}

func TestEmit_LogsAndSwallows(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "info")

	Emit(context.Background(), failing{}, log, TopicCheckout, "a@x.com", CheckoutEvent{Type: "order_placed"})
	assert.Contains(t, buf.String(), "event_publish_error")
	assert.Contains(t, buf.String(), "broker down")

	rec := &Recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Emit(ctx, rec, log, TopicCart, "v1", CartEvent{Type: "cleared"})
	require.Len(t, rec.Snapshot(), 1)
	assert.Equal(t, TopicCart, rec.Snapshot()[0].Topic)

	Emit(context.Background(), nil, log, TopicCart, "v1", CartEvent{})
	assert.NoError(t, Nop{}.PublishEvent(context.Background(), "t", "k", nil))
}
