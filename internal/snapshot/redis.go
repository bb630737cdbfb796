package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"scheduler-stats/internal/common/errors"
)

const redisSinkName = "redis"

// RedisSink stores the latest snapshot per key and announces it on a channel.
//
//	SET <prefix><key> <snapshot json> PX <ttl>
//	PUBLISH <prefix>updates <key>
type RedisSink struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, prefix string, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSink) Name() string { return redisSinkName }

// KeyFor returns the Redis key holding the latest snapshot for key.
func (s *RedisSink) KeyFor(key string) string {
	return s.prefix + key
}

// Channel returns the pub/sub channel update notifications are sent on.
func (s *RedisSink) Channel() string {
	return s.prefix + "updates"
}

func (s *RedisSink) Publish(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.NewSnapshotEncodeFailedError(err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.KeyFor(snap.Key()), data, s.ttl)
	pipe.Publish(ctx, s.Channel(), snap.Key())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewSnapshotPublishFailedError(redisSinkName, err)
	}
	return nil
}

// Latest reads back the most recent snapshot stored for key.
func (s *RedisSink) Latest(ctx context.Context, key string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.KeyFor(key)).Bytes()
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
