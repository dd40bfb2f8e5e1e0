package publisher

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/tipoff/internal/dataset"
)

func TestNewMessage(t *testing.T) {
	r := dataset.Record{
		Columns: []string{"DATE", "GAME_ID", "HOME_SCORE", "AWAY_SCORE"},
		Values:  []string{"2024-01-02", "0022300445", "110", "100"},
	}
	msg := NewMessage("2023-24", r)

	assert.Equal(t, "2023-24", msg.Season)
	assert.Equal(t, "0022300445", msg.GameID)
	assert.Equal(t, "2024-01-02", msg.Date)
	assert.Equal(t, "110", msg.Values["HOME_SCORE"])

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"game_id":"0022300445"`)
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "tipoff.records.2023-24", StreamName("2023-24"))
}

func TestPublishRecordsEmptyIsNoop(t *testing.T) {
	p := NewRedisStreamPublisher(nil, 0)
	assert.NoError(t, p.PublishRecords(context.Background(), "2023-24", nil))
}

func TestPublishRecordsToRedis(t *testing.T) {
	url := os.Getenv("TIPOFF_TEST_REDIS_URL")
	if url == "" {
		t.Skip("TIPOFF_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	season := "test-publisher"
	client.Del(ctx, StreamName(season))

	p := NewRedisStreamPublisher(client, 100)
	records := []dataset.Record{
		{Columns: []string{"DATE", "GAME_ID"}, Values: []string{"2024-01-02", "1"}},
		{Columns: []string{"DATE", "GAME_ID"}, Values: []string{"2024-01-02", "2"}},
	}
	require.NoError(t, p.PublishRecords(ctx, season, records))

	n, err := client.XLen(ctx, StreamName(season)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
