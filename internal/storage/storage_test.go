package storage

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"resume-screener/internal/config"
	"resume-screener/internal/constants"
	"resume-screener/internal/storage/models"
	"resume-screener/internal/types"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func sampleBatchResult() *types.BatchResult {
	return &types.BatchResult{
		RunID: "3f1c5a2e-0000-4000-8000-000000000001",
		Role:  "backend_engineer",
		Entries: []types.RankedEntry{
			{Rank: 1, FileName: "b.pdf", Score: 0.9, Status: types.ItemSuccess},
			{Rank: 2, FileName: "a.pdf", Score: 0.2, Status: types.ItemSuccess},
		},
		Outcomes: []types.ItemOutcome{
			{FileName: "a.pdf", Status: types.ItemSuccess},
			{FileName: "b.pdf", Status: types.ItemSuccess},
			{FileName: "empty.pdf", Status: types.ItemSkipped, Reason: "no text"},
		},
		CSVPath: "/tmp/out.csv",
	}
}

func TestRankingCompletedMessage(t *testing.T) {
	result := sampleBatchResult()

	msg, err := rankingCompletedMessage(result, EventTarget{Exchange: "ranking.exchange", RoutingKey: "ranking.completed"})
	require.NoError(t, err)

	assert.Equal(t, constants.AggregateTypeRankingRun, msg.AggregateType)
	assert.Equal(t, result.RunID, msg.AggregateID)
	assert.Equal(t, constants.OutboxEventRankingCompleted, msg.EventType)
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	assert.Equal(t, "ranking.exchange", msg.TargetExchange)

	var event RankingCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, 3, event.Total)
	assert.Equal(t, 2, event.Succeeded)
	assert.Equal(t, 1, event.Skipped)
	assert.Equal(t, 0, event.Failed)
	assert.Equal(t, "b.pdf", event.TopFile)
	assert.InDelta(t, 0.9, event.TopScore, 1e-9)
}

func TestRankingEntriesStoreObjectName(t *testing.T) {
	result := sampleBatchResult()
	result.Entries[0].ReportObject = "reports/" + result.RunID + "/b_feedback.pdf"
	result.Entries[0].ReportURL = "https://minio.local/reports/b_feedback.pdf?X-Amz-Expires=3600"
	result.Entries[0].MatchedTerms = []string{"go", "kubernetes"}

	entries, err := rankingEntries(result)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "reports/"+result.RunID+"/b_feedback.pdf", entries[0].ReportObject, "保存对象名而不是会过期的链接")
	assert.Empty(t, entries[0].ReportURL)
	assert.JSONEq(t, `["go","kubernetes"]`, string(entries[0].MatchedTermsJSON))
	assert.Empty(t, entries[1].ReportObject)
	assert.NotEqual(t, entries[0].EntryID, entries[1].EntryID)
}

func TestRankingCompletedMessageNoEntries(t *testing.T) {
	result := &types.BatchResult{RunID: "r1", Role: "qa"}
	msg, err := rankingCompletedMessage(result, EventTarget{Exchange: "x"})
	require.NoError(t, err)

	var event RankingCompletedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Empty(t, event.TopFile)
	assert.Zero(t, event.Total)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "text/plain", getContentType(".txt"))
	assert.Equal(t, "text/csv", getContentType(".csv"))
	assert.Equal(t, "application/octet-stream", getContentType(".bin"))
}

func TestJobLockKey(t *testing.T) {
	assert.Equal(t, "app:ranking:lock:job-1", JobLockKey("job-1"))
}

func TestNewStorageNothingConfigured(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, s.MinIO)
	assert.Nil(t, s.RabbitMQ)
	assert.Nil(t, s.MySQL)
	assert.Nil(t, s.Redis)
	s.Close(zerolog.Nop())
}

// 以下用例需要真实的 Redis，通过 TEST_REDIS_ADDR 启用
func TestRedisIntegration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis integration test")
	}

	r, err := NewRedisAdapter(&config.RedisConfig{Address: addr})
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	md5Hex := "d41d8cd98f00b204e9800998ecf8427e-test"

	_, ok, err := r.GetExtractedText(ctx, md5Hex+"-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetExtractedText(ctx, md5Hex, "Go developer"))
	text, ok, err := r.GetExtractedText(ctx, md5Hex)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Go developer", text)

	job := &types.BatchJob{ID: "it-job-1", Status: types.JobRunning, Role: "qa", Total: 3, Done: 1, CreatedAt: time.Now()}
	require.NoError(t, r.SaveJob(ctx, job))
	got, err := r.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, got.Status)
	assert.Equal(t, 1, got.Done)

	lockKey := JobLockKey(job.ID)
	value, err := r.AcquireLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, value)

	second, err := r.AcquireLock(ctx, lockKey, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	released, err := r.ReleaseLock(ctx, lockKey, value)
	require.NoError(t, err)
	assert.True(t, released)
}

func TestHeaderCarrierRoundTrip(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	prop := propagation.TraceContext{}
	headers := amqp.Table{}
	prop.Inject(parent, headerCarrier(headers))
	assert.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), headerCarrier(headers)))
	assert.Equal(t, traceID, got.TraceID())
	assert.True(t, got.IsRemote())

	assert.Empty(t, headerCarrier(amqp.Table{"n": 1}).Get("n"), "non-string header values are ignored")
}
