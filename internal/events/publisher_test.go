package events_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commercetrack/attribution/internal/events"
	"github.com/commercetrack/attribution/internal/models"
)

func TestNewPublisher_NilClient(t *testing.T) {
	pub := events.NewPublisher(nil, "attribution:session-events", nil)
	assert.Nil(t, pub)
}

func TestPublisher_Publish_NilReceiverIsNoOp(t *testing.T) {
	var pub *events.Publisher

	err := pub.Publish(context.Background(), events.SessionEvent{
		EventType:    events.SessionCreated,
		SessionToken: "tok-abc",
		PageID:       "page-1",
		SourceType:   models.SourceDirect,
	})
	require.NoError(t, err)
}

func TestPublisher_PublishAsync_NilReceiverIsNoOp(t *testing.T) {
	var pub *events.Publisher

	assert.NotPanics(t, func() {
		pub.PublishAsync(events.SessionEvent{
			EventType:    events.CartLinked,
			SessionToken: "tok-abc",
			PageID:       "page-1",
			SourceType:   models.SourceEmail,
		})
	})
}
