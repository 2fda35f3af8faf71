package pricing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"rewards-engine/pkg/rediskey"
)

type redisStore struct {
	rdb *redis.Client
	key string
}

// NewRedisStore keeps last good rates in redis so restarted or sibling
// instances can serve them when every source is down.
func NewRedisStore(rdb *redis.Client) LastGoodStore {
	return &redisStore{rdb: rdb, key: rediskey.PriceLastGood}
}

func (s *redisStore) Save(ctx context.Context, r Rates) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, 0).Err()
}

func (s *redisStore) Load(ctx context.Context) (*Rates, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r Rates
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	r.Degraded = false
	return &r, nil
}
