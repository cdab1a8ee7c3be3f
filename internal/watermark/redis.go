package watermark

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to the mailbox login to form the Redis key.
const KeyPrefix = "UID_TIP"

// RedisStore keeps one decimal string per mailbox under KeyPrefix+mailbox.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Load(ctx context.Context, mailbox string) (uint32, bool, error) {
	value, err := s.rdb.Get(ctx, KeyPrefix+mailbox).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "redis get watermark for %q", mailbox)
	}
	uid, err := parseUID(value)
	if err != nil {
		return 0, false, errors.Wrapf(err, "watermark for %q", mailbox)
	}
	return uid, true, nil
}

func (s *RedisStore) Save(ctx context.Context, mailbox string, uid uint32) error {
	err := s.rdb.Set(ctx, KeyPrefix+mailbox, strconv.FormatUint(uint64(uid), 10), 0).Err()
	return errors.Wrapf(err, "redis set watermark for %q", mailbox)
}

func parseUID(value string) (uint32, error) {
	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid stored uid %q", value)
	}
	return uint32(n), nil
}
