// Package publisher fans saved dataset records out to Redis streams.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/tipoff/internal/dataset"
)

// StreamPrefix prefixes the per-season record stream.
const StreamPrefix = "tipoff.records."

// RedisStreamPublisher publishes records to Redis streams
type RedisStreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewRedisStreamPublisher creates a new Redis stream publisher from existing client.
// maxLen caps each stream approximately; zero leaves it unbounded.
func NewRedisStreamPublisher(client *redis.Client, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{
		client: client,
		maxLen: maxLen,
	}
}

// StreamName returns the stream a season's records go to.
func StreamName(season string) string {
	return StreamPrefix + season
}

// Message is the payload of one stream entry.
type Message struct {
	Season string            `json:"season"`
	Date   string            `json:"date"`
	GameID string            `json:"game_id"`
	Values map[string]string `json:"values"`
}

// NewMessage flattens a record into a stream payload.
func NewMessage(season string, r dataset.Record) Message {
	values := make(map[string]string, len(r.Columns))
	for i, col := range r.Columns {
		if i < len(r.Values) {
			values[col] = r.Values[i]
		}
	}
	return Message{
		Season: season,
		Date:   r.Date(),
		GameID: r.GameID(),
		Values: values,
	}
}

// PublishRecords appends every record to the season stream in one pipeline.
func (rsp *RedisStreamPublisher) PublishRecords(ctx context.Context, season string, records []dataset.Record) error {
	if len(records) == 0 {
		return nil
	}

	stream := StreamName(season)
	now := time.Now().Unix()

	pipe := rsp.client.Pipeline()
	for _, r := range records {
		data, err := json.Marshal(NewMessage(season, r))
		if err != nil {
			return fmt.Errorf("encode record %s: %w", r.GameID(), err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: rsp.maxLen,
			Approx: rsp.maxLen > 0,
			Values: map[string]interface{}{
				"game_id":   r.GameID(),
				"data":      string(data),
				"timestamp": now,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d records to %s: %w", len(records), stream, err)
	}
	return nil
}
