package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freshhhy/rfq-engine/pkg/model"
)

// mockJetStream captures published messages.
type mockJetStream struct {
	published []*nats.Msg
	fail      bool
}

func (m *mockJetStream) PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if m.fail {
		return nil, errors.New("mock publish error")
	}
	m.published = append(m.published, msg)
	return &nats.PubAck{Stream: "mock-stream"}, nil
}

func TestPublishEnvelope(t *testing.T) {
	js := &mockJetStream{}
	pub := NewWithJetStream(js, "rfq-engine", zap.NewNop())

	env, err := model.NewEnvelope(model.EventQuoteReceived, model.Buyer("buyer-1"), time.Now(), model.QuoteReceivedPayload{
		QuoteID: "q1",
		RFQID:   "rfq-1",
	})
	require.NoError(t, err)

	require.NoError(t, pub.PublishEnvelope(context.Background(), &env))
	require.Len(t, js.published, 1)

	msg := js.published[0]
	assert.Equal(t, "push.buyer.buyer-1", msg.Subject)
	assert.Equal(t, model.EventQuoteReceived, msg.Header.Get("event_type"))
	assert.Equal(t, "rfq-engine", msg.Header.Get("service"))
	assert.Equal(t, "buyer.buyer-1", msg.Header.Get("recipient"))
	assert.Equal(t, env.CorrelationID.String(), msg.Header.Get("correlation_id"))

	var parsed model.Envelope
	require.NoError(t, json.Unmarshal(msg.Data, &parsed))
	assert.Equal(t, env.ID, parsed.ID)
	assert.Equal(t, model.PartyBuyer, parsed.Recipient.Kind)
}

func TestPublishEnvelopeFailure(t *testing.T) {
	pub := NewWithJetStream(&mockJetStream{fail: true}, "rfq-engine", zap.NewNop())

	env, err := model.NewEnvelope(model.EventStatusChanged, model.Vendor("v1"), time.Now(), model.StatusChangedPayload{
		EntityKind: "quote",
		EntityID:   "q1",
		NewState:   "rejected",
	})
	require.NoError(t, err)

	assert.Error(t, pub.PublishEnvelope(context.Background(), &env))
}

func TestPublishRaw(t *testing.T) {
	js := &mockJetStream{}
	pub := NewWithJetStream(js, "rfq-engine", zap.NewNop())

	data := []byte(`{"event_type":"rfq.created"}`)
	require.NoError(t, pub.PublishRaw(context.Background(), "push.vendor.v1", data))

	require.Len(t, js.published, 1)
	assert.Equal(t, "push.vendor.v1", js.published[0].Subject)
	assert.Equal(t, data, js.published[0].Data)
	assert.Equal(t, "rfq-engine", js.published[0].Header.Get("service"))
}
