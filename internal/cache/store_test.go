package cache

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// backend builds a fresh store and a function that moves its clock forward.
type backend func(t *testing.T) (KeyStore, func(time.Duration))

// KeyStoreSuite is the contract every KeyStore backend must satisfy.
type KeyStoreSuite struct {
	suite.Suite
	open    backend
	kv      KeyStore
	advance func(time.Duration)
	ctx     context.Context
}

func (s *KeyStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv, s.advance = s.open(s.T())
}

func (s *KeyStoreSuite) TearDownTest() {
	s.Require().NoError(s.kv.Close())
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &KeyStoreSuite{open: func(t *testing.T) (KeyStore, func(time.Duration)) {
		clk := newFakeClock()
		return NewMemory(clk.Now), clk.Advance
	}})
}

func TestBoltStore(t *testing.T) {
	suite.Run(t, &KeyStoreSuite{open: func(t *testing.T) (KeyStore, func(time.Duration)) {
		clk := newFakeClock()
		s, err := Open(filepath.Join(t.TempDir(), "cache.bbolt"), Options{Bucket: "test", Now: clk.Now})
		require.NoError(t, err)
		return s, clk.Advance
	}})
}

func TestRedisStore(t *testing.T) {
	suite.Run(t, &KeyStoreSuite{open: func(t *testing.T) (KeyStore, func(time.Duration)) {
		mr := miniredis.RunT(t)
		r, err := DialRedis(context.Background(), RedisOptions{Addr: mr.Addr(), Prefix: "test:"})
		require.NoError(t, err)
		return r, mr.FastForward
	}})
}

func TestSocketStore(t *testing.T) {
	suite.Run(t, &KeyStoreSuite{open: func(t *testing.T) (KeyStore, func(time.Duration)) {
		clk := newFakeClock()
		sock := startServer(t, NewMemory(clk.Now))
		return NewClient(sock), clk.Advance
	}})
}

func startServer(t *testing.T, kv KeyStore) string {
	t.Helper()
	sock := filepath.Join(t.TempDir(), "c.sock")
	l, err := net.Listen("unix", sock)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = Serve(ctx, l, kv)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sock
}

func (s *KeyStoreSuite) TestPutGetRoundTrip() {
	value := []byte{0xff, 0x00, 'f', 'o', 'o'}
	s.Require().NoError(s.kv.Put(s.ctx, "k", value, 0))

	got, err := s.kv.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal(value, got)
}

func (s *KeyStoreSuite) TestGetAbsent() {
	_, err := s.kv.Get(s.ctx, "missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *KeyStoreSuite) TestPutTTLExpires() {
	s.Require().NoError(s.kv.Put(s.ctx, "k", []byte("v"), 10*time.Second))

	s.advance(9 * time.Second)
	got, err := s.kv.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("v"), got)

	s.advance(time.Second)
	_, err = s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}

func (s *KeyStoreSuite) TestPutReplacesValueAndExpiry() {
	s.Require().NoError(s.kv.Put(s.ctx, "k", []byte("one"), 5*time.Second))
	s.Require().NoError(s.kv.Put(s.ctx, "k", []byte("two"), 0))

	s.advance(time.Minute)
	got, err := s.kv.Get(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal([]byte("two"), got)
}

func (s *KeyStoreSuite) TestIncrFromAbsent() {
	for want := int64(1); want <= 3; want++ {
		n, err := s.kv.Incr(s.ctx, "counter")
		s.Require().NoError(err)
		s.Equal(want, n)
	}
	n, err := GetInt(s.ctx, s.kv, "counter")
	s.Require().NoError(err)
	s.Equal(int64(3), n)
}

func (s *KeyStoreSuite) TestIncrNonInteger() {
	s.Require().NoError(s.kv.Put(s.ctx, "k", []byte("abc"), 0))

	_, err := s.kv.Incr(s.ctx, "k")
	var de *DecodeError
	s.ErrorAs(err, &de)
}

func (s *KeyStoreSuite) TestIncrKeepsExpiry() {
	s.Require().NoError(s.kv.Put(s.ctx, "k", []byte("5"), 10*time.Second))

	n, err := s.kv.Incr(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal(int64(6), n)

	s.advance(10 * time.Second)
	_, err = s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)
}

func (s *KeyStoreSuite) TestExpire() {
	_, err := s.kv.Incr(s.ctx, "k")
	s.Require().NoError(err)
	s.Require().NoError(s.kv.Expire(s.ctx, "k", 10*time.Second))
	s.Require().NoError(s.kv.Expire(s.ctx, "absent", 10*time.Second))

	s.advance(10 * time.Second)
	_, err = s.kv.Get(s.ctx, "k")
	s.ErrorIs(err, ErrNotFound)

	n, err := s.kv.Incr(s.ctx, "k")
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *KeyStoreSuite) TestAppendRange() {
	for _, v := range []string{"a", "b", "c"} {
		s.Require().NoError(s.kv.Append(s.ctx, "list", []byte(v)))
	}

	got, err := s.kv.Range(s.ctx, "list")
	s.Require().NoError(err)
	s.Equal([][]byte{[]byte("a"), []byte("b"), []byte("c")}, got)

	empty, err := s.kv.Range(s.ctx, "nothing")
	s.Require().NoError(err)
	s.Empty(empty)
}

func (s *KeyStoreSuite) TestDelete() {
	s.Require().NoError(s.kv.Put(s.ctx, "v", []byte("x"), 0))
	s.Require().NoError(s.kv.Append(s.ctx, "l", []byte("x")))

	s.Require().NoError(s.kv.Delete(s.ctx, "v"))
	s.Require().NoError(s.kv.Delete(s.ctx, "l"))
	s.Require().NoError(s.kv.Delete(s.ctx, "v"))

	_, err := s.kv.Get(s.ctx, "v")
	s.ErrorIs(err, ErrNotFound)
	l, err := s.kv.Range(s.ctx, "l")
	s.Require().NoError(err)
	s.Empty(l)
}

func (s *KeyStoreSuite) TestClear() {
	s.Require().NoError(s.kv.Put(s.ctx, "v", []byte("x"), 0))
	_, err := s.kv.Incr(s.ctx, "n")
	s.Require().NoError(err)
	s.Require().NoError(s.kv.Append(s.ctx, "l", []byte("x")))

	s.Require().NoError(s.kv.Clear(s.ctx))

	_, err = s.kv.Get(s.ctx, "v")
	s.ErrorIs(err, ErrNotFound)
	_, err = s.kv.Get(s.ctx, "n")
	s.ErrorIs(err, ErrNotFound)
	l, err := s.kv.Range(s.ctx, "l")
	s.Require().NoError(err)
	s.Empty(l)
}

func (s *KeyStoreSuite) TestTypedAccessors() {
	s.Require().NoError(s.kv.Put(s.ctx, "str", []byte("foo"), 0))
	s.Require().NoError(s.kv.Put(s.ctx, "bad", []byte{0xff, 0xfe}, 0))
	s.Require().NoError(s.kv.Put(s.ctx, "int", []byte("42"), 0))
	s.Require().NoError(s.kv.Put(s.ctx, "notint", []byte("4x"), 0))

	str, err := GetString(s.ctx, s.kv, "str")
	s.Require().NoError(err)
	s.Equal("foo", str)

	n, err := GetInt(s.ctx, s.kv, "int")
	s.Require().NoError(err)
	s.Equal(int64(42), n)

	var de *DecodeError
	_, err = GetString(s.ctx, s.kv, "bad")
	s.ErrorAs(err, &de)
	_, err = GetInt(s.ctx, s.kv, "notint")
	s.ErrorAs(err, &de)
	s.Equal("notint", de.Key)
	s.Equal("int", de.Kind)

	_, err = GetString(s.ctx, s.kv, "absent")
	s.ErrorIs(err, ErrNotFound)
}

func TestDecodeInt(t *testing.T) {
	n, err := DecodeInt("k", []byte("-17"))
	require.NoError(t, err)
	assert.Equal(t, int64(-17), n)

	_, err = DecodeInt("k", []byte(""))
	var de *DecodeError
	assert.ErrorAs(t, err, &de)

	_, err = DecodeInt("k", []byte{0xc3})
	assert.ErrorAs(t, err, &de)
}
