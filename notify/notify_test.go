package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/entity"
)

func TestDispatchPublishesToConfiguredExchange(t *testing.T) {
	mockChan := &MockAMQPChannel{}
	mockConn := &MockAMQPConnection{MockChannel: mockChan}
	dialer := &MockAMQPDialer{Connection: mockConn}

	cfg := config.NotificationConfig{AMQPURL: "amqp://test", ExchangeName: "prowhey.notifications", Enabled: true}
	d, err := NewWithDialer(cfg, dialer)
	require.NoError(t, err)

	require.True(t, mockChan.ExchangeDeclareCalled)

	err = d.Dispatch(context.Background(), DeliveryEvent{
		EntityType: entity.TypeNotification,
		EntityID:   "n1",
		Version:    1,
	})
	require.NoError(t, err)

	require.Len(t, mockChan.PublishedMessages, 1)
	assert.Equal(t, "prowhey.notifications", mockChan.LastExchange)

	var got DeliveryEvent
	require.NoError(t, json.Unmarshal(mockChan.PublishedMessages[0].Body, &got))
	assert.Equal(t, "n1", got.EntityID)
}

func TestDispatchDisabledIsNoOp(t *testing.T) {
	d, err := New(config.NotificationConfig{Enabled: false})
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), DeliveryEvent{EntityType: entity.TypeNotification, EntityID: "n1"})
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestShouldDispatchOnlyAudienceEntities(t *testing.T) {
	assert.True(t, ShouldDispatch(entity.TypeNotification))
	assert.True(t, ShouldDispatch(entity.TypeAnnouncement))
	assert.True(t, ShouldDispatch(entity.TypeMessage))
	assert.False(t, ShouldDispatch(entity.TypeProduct))
	assert.False(t, ShouldDispatch(entity.TypeView))
}

func TestDispatchPropagatesPublishError(t *testing.T) {
	mockChan := &MockAMQPChannel{PublishErr: assertError("boom")}
	mockConn := &MockAMQPConnection{MockChannel: mockChan}
	dialer := &MockAMQPDialer{Connection: mockConn}

	cfg := config.NotificationConfig{AMQPURL: "amqp://test", ExchangeName: "x", Enabled: true}
	d, err := NewWithDialer(cfg, dialer)
	require.NoError(t, err)

	err = d.Dispatch(context.Background(), DeliveryEvent{EntityType: entity.TypeMessage, EntityID: "m1"})
	require.Error(t, err)
}

type assertError string

func (e assertError) Error() string { return string(e) }
