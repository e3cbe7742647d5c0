// Package blobs stores opaque payloads under generated keys. Every Put is
// counted and logged by an instrument.Recorder.
package blobs

import (
	"context"

	"github.com/google/uuid"

	"github.com/leonardcser/webcache-mcp/internal/cache"
	"github.com/leonardcser/webcache-mcp/internal/instrument"
)

// OpPut is the operation name Put is recorded under.
const OpPut = "blobs.Store.Put"

type Store struct {
	kv  cache.KeyStore
	rec *instrument.Recorder
	put func(context.Context, []byte) (string, error)
}

func New(rec *instrument.Recorder) *Store {
	s := &Store{kv: rec.Store(), rec: rec}
	s.put = instrument.Wrap(rec, OpPut, s.store)
	return s
}

func (s *Store) store(ctx context.Context, data []byte) (string, error) {
	key := uuid.NewString()
	if err := s.kv.Put(ctx, key, data, 0); err != nil {
		return "", err
	}
	return key, nil
}

// Put saves data under a fresh random key and returns the key.
func (s *Store) Put(ctx context.Context, data []byte) (string, error) {
	return s.put(ctx, data)
}

// Get returns the raw bytes at key, or cache.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.kv.Get(ctx, key)
}

func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	return cache.GetString(ctx, s.kv, key)
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, error) {
	return cache.GetInt(ctx, s.kv, key)
}

// Puts returns how many Put calls have been entered.
func (s *Store) Puts(ctx context.Context) (int64, error) {
	return s.rec.Count(ctx, OpPut)
}

func (s *Store) Replay(ctx context.Context) (*instrument.Trace, error) {
	return instrument.Replay(ctx, s.kv, OpPut)
}

// Reset forgets the Put history. Stored blobs are kept.
func (s *Store) Reset(ctx context.Context) error {
	return s.rec.Reset(ctx, OpPut)
}
