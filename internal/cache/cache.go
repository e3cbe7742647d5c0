package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store provides a persistent KeyStore on top of a Bolt file.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db         *bolt.DB
	values     []byte
	lists      []byte
	defaultTTL time.Duration
	now        func() time.Time
}

type Options struct {
	// Bucket is the name of the Bolt bucket to use.
	Bucket string
	// DefaultTTL is used when Put is called with ttl <= 0.
	DefaultTTL time.Duration
	// Now overrides the wall clock used for expiry checks.
	Now func() time.Time
}

var _ KeyStore = (*Store)(nil)

// Open initializes or opens a Store at the given path.
func Open(path string, opts Options) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, unavailable(err)
	}
	bucket := "cache"
	if opts.Bucket != "" {
		bucket = opts.Bucket
	}
	s := &Store{
		db:         db,
		values:     []byte(bucket),
		lists:      []byte(bucket + ".lists"),
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if err := db.Update(s.createBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) createBuckets(tx *bolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(s.values); err != nil {
		return err
	}
	_, err := tx.CreateBucketIfNotExists(s.lists)
	return err
}

// Layout: 8 bytes big endian expiresAt (unix nanos, 0 = never) || raw value
func encodeValue(expiresAt int64, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt))
	copy(buf[8:], value)
	return buf
}

func decodeValue(v []byte) (int64, []byte) {
	if len(v) < 8 {
		return 0, v
	}
	return int64(binary.BigEndian.Uint64(v[:8])), v[8:]
}

func (s *Store) expired(expiresAt int64) bool {
	return expiresAt > 0 && s.now().UnixNano() >= expiresAt
}

func (s *Store) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixNano()
}

func (s *Store) update(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wrap(s.db.Update(fn))
}

func (s *Store) view(ctx context.Context, fn func(tx *bolt.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.wrap(s.db.View(fn))
}

func (s *Store) wrap(err error) error {
	var de *DecodeError
	if err == nil || errors.As(err, &de) {
		return err
	}
	return unavailable(err)
}

// Put stores value with an absolute expiration computed as now+ttl.
// If ttl <= 0, DefaultTTL is used; if DefaultTTL <= 0, the item never expires.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	buf := encodeValue(s.expiry(ttl), value)
	return s.update(ctx, func(tx *bolt.Tx) error {
		return tx.Bucket(s.values).Put([]byte(key), buf)
	})
}

// Get returns the value if present and not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	var found bool
	if err := s.view(ctx, func(tx *bolt.Tx) error {
		v := tx.Bucket(s.values).Get([]byte(key))
		if v == nil {
			return nil
		}
		expiresAt, payload := decodeValue(v)
		if s.expired(expiresAt) {
			return nil
		}
		found = true
		out = append([]byte{}, payload...)
		return nil
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	return out, nil
}

// Delete removes a key and any list stored under it.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		if err := tx.Bucket(s.values).Delete([]byte(key)); err != nil {
			return err
		}
		lists := tx.Bucket(s.lists)
		if lists.Bucket([]byte(key)) == nil {
			return nil
		}
		return lists.DeleteBucket([]byte(key))
	})
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(s.values)
		var expiresAt int64
		if v := b.Get([]byte(key)); v != nil {
			exp, payload := decodeValue(v)
			if !s.expired(exp) {
				cur, err := DecodeInt(key, payload)
				if err != nil {
					return err
				}
				n, expiresAt = cur, exp
			}
		}
		n++
		return b.Put([]byte(key), encodeValue(expiresAt, []byte(strconv.FormatInt(n, 10))))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(s.values)
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		exp, payload := decodeValue(v)
		if s.expired(exp) {
			return nil
		}
		return b.Put([]byte(key), encodeValue(s.expiry(ttl), payload))
	})
}

// Append stores value under the next sequence number of the list bucket, so
// a cursor walk yields append order.
func (s *Store) Append(ctx context.Context, key string, value []byte) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		l, err := tx.Bucket(s.lists).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return err
		}
		seq, err := l.NextSequence()
		if err != nil {
			return err
		}
		var k [8]byte
		binary.BigEndian.PutUint64(k[:], seq)
		return l.Put(k[:], value)
	})
}

func (s *Store) Range(ctx context.Context, key string) ([][]byte, error) {
	var out [][]byte
	err := s.view(ctx, func(tx *bolt.Tx) error {
		l := tx.Bucket(s.lists).Bucket([]byte(key))
		if l == nil {
			return nil
		}
		return l.ForEach(func(_, v []byte) error {
			out = append(out, append([]byte{}, v...))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, func(tx *bolt.Tx) error {
		for _, name := range [][]byte{s.values, s.lists} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return s.createBuckets(tx)
	})
}

// Sweep deletes expired values and reports how many were removed. Expired
// values already read as absent, so sweeping only bounds file growth.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var removed int
	err := s.update(ctx, func(tx *bolt.Tx) error {
		b := tx.Bucket(s.values)
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			if exp, _ := decodeValue(v); s.expired(exp) {
				stale = append(stale, append([]byte{}, k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}
