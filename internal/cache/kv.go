package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"
)

// KeyStore defines the minimal key-value contract every backend satisfies.
// Single-key operations are atomic from the point of view of one process;
// cross-process atomicity is whatever the backing store guarantees.
// Implementations must be safe for concurrent use by multiple goroutines.
type KeyStore interface {
	// Get returns the value at key, or ErrNotFound if it is absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value at key. A ttl <= 0 falls back to the backend default,
	// which is "never expires" unless configured otherwise.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key, including any list stored under it.
	Delete(ctx context.Context, key string) error
	// Incr increments the integer at key, creating it at 0 first if absent,
	// and returns the new value. An existing expiry is preserved.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire attaches ttl to an existing key. It is a no-op for absent keys.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Append pushes value onto the tail of the list at key.
	Append(ctx context.Context, key string, value []byte) error
	// Range returns the whole list at key in append order. An absent list
	// yields an empty result.
	Range(ctx context.Context, key string) ([][]byte, error)
	// Clear drops every key in the store's namespace.
	Clear(ctx context.Context) error
	io.Closer
}

var (
	ErrNotFound    = errors.New("cache: not found")
	ErrUnavailable = errors.New("cache: store unavailable")
)

// DecodeError reports stored bytes that do not decode to the requested type.
type DecodeError struct {
	Key  string
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache: decode %q as %s: %v", e.Key, e.Kind, e.Err)
	}
	return fmt.Sprintf("cache: decode %q as %s", e.Key, e.Kind)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GetString reads key and decodes it as UTF-8 text.
func GetString(ctx context.Context, kv KeyStore, key string) (string, error) {
	v, err := kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return DecodeString(key, v)
}

// GetInt reads key and decodes it as a base-10 integer literal.
func GetInt(ctx context.Context, kv KeyStore, key string) (int64, error) {
	v, err := kv.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return DecodeInt(key, v)
}

func DecodeString(key string, v []byte) (string, error) {
	if !utf8.Valid(v) {
		return "", &DecodeError{Key: key, Kind: "string", Err: errors.New("invalid utf-8")}
	}
	return string(v), nil
}

func DecodeInt(key string, v []byte) (int64, error) {
	if !utf8.Valid(v) {
		return 0, &DecodeError{Key: key, Kind: "int", Err: errors.New("invalid utf-8")}
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, &DecodeError{Key: key, Kind: "int", Err: err}
	}
	return n, nil
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
