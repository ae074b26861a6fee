package outbox

import (
	"errors"
	"testing"
	"time"

	"resume-screener/internal/storage/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPublishResult(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("success marks sent", func(t *testing.T) {
		msg := &models.OutboxMessage{Status: models.OutboxStatusPending, RetryCount: 2, ErrorMessage: "old"}
		applyPublishResult(msg, nil, 5, now)

		assert.Equal(t, models.OutboxStatusSent, msg.Status)
		require.NotNil(t, msg.ProcessedAt)
		assert.Equal(t, now, *msg.ProcessedAt)
		assert.Empty(t, msg.ErrorMessage)
		assert.Equal(t, 2, msg.RetryCount)
	})

	t.Run("failure stays pending below limit", func(t *testing.T) {
		msg := &models.OutboxMessage{Status: models.OutboxStatusPending}
		applyPublishResult(msg, errors.New("channel closed"), 3, now)

		assert.Equal(t, models.OutboxStatusPending, msg.Status)
		assert.Equal(t, 1, msg.RetryCount)
		assert.Equal(t, "channel closed", msg.ErrorMessage)
		assert.Nil(t, msg.ProcessedAt)
	})

	t.Run("failure at limit marks failed", func(t *testing.T) {
		msg := &models.OutboxMessage{Status: models.OutboxStatusPending, RetryCount: 2}
		applyPublishResult(msg, errors.New("nack"), 3, now)

		assert.Equal(t, models.OutboxStatusFailed, msg.Status)
		assert.Equal(t, 3, msg.RetryCount)
	})
}

func TestNewMessageRelayOptions(t *testing.T) {
	r := NewMessageRelay(nil, nil, zerolog.Nop())
	assert.Equal(t, defaultPollingInterval, r.pollingInterval)
	assert.Equal(t, defaultBatchSize, r.batchSize)
	assert.Equal(t, defaultMaxRetryCount, r.maxRetries)

	r = NewMessageRelay(nil, nil, zerolog.Nop(),
		WithPollingInterval(time.Second),
		WithBatchSize(50),
		WithMaxRetries(2),
		WithBatchSize(-1),
	)
	assert.Equal(t, time.Second, r.pollingInterval)
	assert.Equal(t, 50, r.batchSize)
	assert.Equal(t, 2, r.maxRetries)
}
