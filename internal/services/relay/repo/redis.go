package repo

import (
	"context"
	"errors"

	perr "otprelay/internal/platform/errors"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces ledger lists in a shared redis
const KeyPrefix = "otprelay:ledger:"

// Redis stores each source's ledger as a list, oldest at the head
type Redis struct {
	rdb redis.Cmdable
}

// NewRedis returns a redis ledger store
func NewRedis(rdb redis.Cmdable) *Redis { return &Redis{rdb: rdb} }

// Key is the list key for source
func Key(source string) string { return KeyPrefix + source }

// Load returns the ids for source; a missing key is an empty ledger
func (r *Redis) Load(ctx context.Context, source string) ([]string, error) {
	ids, err := r.rdb.LRange(ctx, Key(source), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeDB, "redis load ledger %q", source)
	}
	return ids, nil
}

// Save replaces the list in one MULTI/EXEC so readers never see a half written ledger
func (r *Redis) Save(ctx context.Context, source string, ids []string) error {
	key := Key(source)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(ids) > 0 {
			vals := make([]any, len(ids))
			for i, id := range ids {
				vals[i] = id
			}
			p.RPush(ctx, key, vals...)
		}
		return nil
	})
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "redis save ledger %q", source)
	}
	return nil
}

// Ping reports whether redis answers
func (r *Redis) Ping(ctx context.Context) error { return r.rdb.Ping(ctx).Err() }
