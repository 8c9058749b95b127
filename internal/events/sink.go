package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/wallet-ledger/internal/domain"
)

const DefaultStream = "wallet:events"

// RedisStreamSink appends events to a Redis stream, trimmed approximately to
// maxLen entries.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

// Ping reports whether the stream backend is reachable.
func (s *RedisStreamSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStreamSink) Publish(ctx context.Context, e domain.OutboxEvent) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: s.maxLen > 0,
		Values: map[string]any{
			"event_id":       e.ID.String(),
			"event_type":     string(e.EventType),
			"aggregate_id":   e.AggregateID.String(),
			"correlation_id": e.CorrelationID,
			"occurred_at":    e.OccurredAt.UTC().Format(time.RFC3339Nano),
			"payload":        string(e.Payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("RedisStreamSink.Publish: %w", err)
	}
	return nil
}

// LogSink writes events to the structured log. Used when no broker is
// configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, e domain.OutboxEvent) error {
	s.logger.Info("event published",
		"event_id", e.ID,
		"event_type", e.EventType,
		"aggregate_id", e.AggregateID,
		"correlation_id", e.CorrelationID,
		"occurred_at", e.OccurredAt,
		"payload", string(e.Payload),
	)
	return nil
}
