package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/margrave/gatehouse/internal/approval"
)

const approvalStream = "gatehouse:approvals:events"

// StreamNotifier appends approval events to a Redis stream so external
// consumers (dashboards, pagers) can tail them.
type StreamNotifier struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewStreamNotifier connects to Redis and verifies the connection.
func NewStreamNotifier(redisURL string, logger *zap.Logger) (*StreamNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &StreamNotifier{rdb: rdb, logger: logger}, nil
}

func (n *StreamNotifier) Name() string { return "stream" }

// Notify appends the event to the stream.
func (n *StreamNotifier) Notify(ctx context.Context, ev approval.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: approvalStream,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", approvalStream, err)
	}
	return nil
}

// Tail listens for events on the stream. Returns a channel that emits
// events; cancel the context to stop.
func (n *StreamNotifier) Tail(ctx context.Context) <-chan approval.Event {
	ch := make(chan approval.Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := n.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{approvalStream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if err == context.Canceled || err == context.DeadlineExceeded {
					return
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev approval.Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (n *StreamNotifier) Close() error {
	return n.rdb.Close()
}
