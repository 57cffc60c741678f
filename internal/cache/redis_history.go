package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHistory keeps a capped per-user list of recent send attempts.
type RedisHistory struct {
	rdb *redis.Client
	ttl time.Duration
}

const historyMaxEntries = 1000

func NewRedisHistory(rdb *redis.Client, ttl time.Duration) *RedisHistory {
	return &RedisHistory{rdb: rdb, ttl: ttl}
}

type historyValue struct {
	QueueItemID string    `json:"queueItemId"`
	Recipient   string    `json:"recipient"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	TrackingID  string    `json:"trackingId,omitempty"`
	At          time.Time `json:"at"`
}

func (h *RedisHistory) Record(ctx context.Context, userID string, rec SendRecord) error {
	key := fmt.Sprintf("sendhistory:%s", userID)
	val := historyValue{
		QueueItemID: rec.QueueItemID,
		Recipient:   rec.Recipient,
		Success:     rec.Success,
		Error:       rec.Error,
		TrackingID:  rec.TrackingID,
		At:          rec.At.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	pipe := h.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, historyMaxEntries-1)
	pipe.Expire(ctx, key, h.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
