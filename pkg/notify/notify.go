// Package notify publishes transfer lifecycle notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType identifies a notification.
type EventType string

// Notification types.
const (
	FundingConfirmed EventType = "FUNDING_CONFIRMED"
	PayoutCompleted  EventType = "PAYOUT_COMPLETED"
	PayoutFailed     EventType = "PAYOUT_FAILED"
	Expired          EventType = "EXPIRED"
)

// Event is one notification about a transfer.
type Event struct {
	Type       EventType
	TransferID string
	Fields     map[string]string
	OccurredAt time.Time
}

// Dispatcher delivers events.
type Dispatcher interface {
	Notify(ctx context.Context, ev Event) error
}

// RedisStreamDispatcher appends events to a redis stream.
type RedisStreamDispatcher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamDispatcher returns a dispatcher writing to stream, trimmed to roughly maxLen entries.
func NewRedisStreamDispatcher(client redis.UniversalClient, stream string, maxLen int64) *RedisStreamDispatcher {
	return &RedisStreamDispatcher{client: client, stream: stream, maxLen: maxLen}
}

// Notify XADDs ev to the stream.
func (d *RedisStreamDispatcher) Notify(ctx context.Context, ev Event) error {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	values := map[string]any{
		"type":        string(ev.Type),
		"transfer_id": ev.TransferID,
		"occurred_at": occurred.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range ev.Fields {
		if _, reserved := values[k]; !reserved {
			values[k] = v
		}
	}

	args := &redis.XAddArgs{
		Stream: d.stream,
		Values: values,
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}
	if err := d.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", ev.Type, err)
	}
	return nil
}

// LogDispatcher writes events to the logger. It is used when no redis is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher returns a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Notify logs ev.
func (d *LogDispatcher) Notify(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.String("transfer_id", ev.TransferID),
	}
	for k, v := range ev.Fields {
		fields = append(fields, zap.String(k, v))
	}
	d.logger.Info("transfer notification", fields...)
	return nil
}

// New returns a redis stream dispatcher for redisURL, or a LogDispatcher when redisURL is empty.
// The returned close func releases the redis client.
func New(redisURL, stream string, maxLen int64, logger *zap.Logger) (Dispatcher, func() error, error) {
	if redisURL == "" {
		return NewLogDispatcher(logger), func() error { return nil }, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid notify.redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisStreamDispatcher(client, stream, maxLen), client.Close, nil
}

// Send delivers ev and logs a failure instead of returning it.
func Send(ctx context.Context, d Dispatcher, logger *zap.Logger, ev Event) {
	if d == nil {
		return
	}
	if err := d.Notify(ctx, ev); err != nil {
		logger.Warn("notification dispatch failed",
			zap.String("type", string(ev.Type)),
			zap.String("transfer_id", ev.TransferID),
			zap.Error(err))
	}
}
