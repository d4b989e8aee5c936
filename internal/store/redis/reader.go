package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"

	"btcpulse/internal/model"
)

// Reader reads cached values and follows the Pub/Sub channels.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Reader over an existing client.
func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// LatestSummary returns the cached summary or model.ErrNoData.
func (r *Reader) LatestSummary(ctx context.Context) (model.Summary, error) {
	var s model.Summary
	err := r.getJSON(ctx, SummaryKey, &s)
	return s, err
}

// LatestBucket returns the cached latest bucket or model.ErrNoData.
func (r *Reader) LatestBucket(ctx context.Context) (model.HourBucket, error) {
	var b model.HourBucket
	err := r.getJSON(ctx, BucketKey, &b)
	return b, err
}

func (r *Reader) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return model.ErrNoData
	}
	if err != nil {
		return fmt.Errorf("redis GET %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("redis decode %s: %w", key, err)
	}
	return nil
}

// RecentSummaries returns up to n summaries from the stream, newest first.
func (r *Reader) RecentSummaries(ctx context.Context, n int64) ([]model.Summary, error) {
	msgs, err := r.client.XRevRangeN(ctx, SummaryStream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", SummaryStream, err)
	}
	out := make([]model.Summary, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var s model.Summary
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			slog.Warn("skipping undecodable summary", "id", m.ID, "error", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Subscribe calls fn with the payload of every message on channels until ctx
// is cancelled. The subscription is confirmed before Subscribe starts
// delivering, and a nil error is returned on cancellation.
func (r *Reader) Subscribe(ctx context.Context, fn func(channel string, payload []byte), channels ...string) error {
	pubsub := r.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe %v: %w", channels, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}
