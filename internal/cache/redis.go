package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements KeyStore on a Redis server. Every key is prefixed with
// Prefix so several stores can share one database.
type Redis struct {
	rdb    *redis.Client
	prefix string
	owned  bool
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

var _ KeyStore = (*Redis)(nil)

// DialRedis connects to a Redis server and pings it. The returned store owns
// the client and closes it on Close.
func DialRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable(err)
	}
	r := NewRedis(rdb, opts.Prefix)
	r.owned = true
	return r, nil
}

// NewRedis wraps an existing client. The caller keeps ownership of rdb.
func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rerr redis.Error
	if errors.As(err, &rerr) {
		if strings.Contains(rerr.Error(), "not an integer") {
			return &DecodeError{Key: key, Kind: "int", Err: err}
		}
		return err
	}
	return unavailable(err)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return nil, r.wrap(key, err)
	}
	return v, nil
}

func (r *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.wrap(key, r.rdb.Set(ctx, r.key(key), value, ttl).Err())
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.wrap(key, r.rdb.Del(ctx, r.key(key)).Err())
}

func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, r.wrap(key, err)
	}
	return n, nil
}

func (r *Redis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return r.wrap(key, r.rdb.Persist(ctx, r.key(key)).Err())
	}
	return r.wrap(key, r.rdb.PExpire(ctx, r.key(key), ttl).Err())
}

func (r *Redis) Append(ctx context.Context, key string, value []byte) error {
	return r.wrap(key, r.rdb.RPush(ctx, r.key(key), value).Err())
}

func (r *Redis) Range(ctx context.Context, key string) ([][]byte, error) {
	vals, err := r.rdb.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, r.wrap(key, err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Clear flushes the database when no prefix is set, otherwise it deletes only
// the prefixed keys.
func (r *Redis) Clear(ctx context.Context) error {
	if r.prefix == "" {
		return r.wrap("", r.rdb.FlushDB(ctx).Err())
	}
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.rdb.Del(ctx, batch...).Err(); err != nil {
				return r.wrap("", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return r.wrap("", err)
	}
	if len(batch) == 0 {
		return nil
	}
	return r.wrap("", r.rdb.Del(ctx, batch...).Err())
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.rdb.Close()
}
