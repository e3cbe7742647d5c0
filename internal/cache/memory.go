package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Memory is an in-process KeyStore. Nothing survives a restart and nothing
// is shared between processes.
type Memory struct {
	mu     sync.Mutex
	values map[string]memItem
	lists  map[string][][]byte
	now    func() time.Time
}

type memItem struct {
	value     []byte
	expiresAt time.Time
}

var _ KeyStore = (*Memory)(nil)

// NewMemory returns an empty Memory store. A nil now uses time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		values: make(map[string]memItem),
		lists:  make(map[string][][]byte),
		now:    now,
	}
}

// live returns the unexpired item at key. Expired items are dropped.
func (m *Memory) live(key string) (memItem, bool) {
	it, ok := m.values[key]
	if !ok {
		return memItem{}, false
	}
	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.values, key)
		return memItem{}, false
	}
	return it, true
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, it.value...), nil
}

func (m *Memory) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = memItem{value: append([]byte{}, value...), expiresAt: m.expiry(ttl)}
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	delete(m.lists, key)
	return nil
}

func (m *Memory) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	var n int64
	if ok {
		cur, err := DecodeInt(key, it.value)
		if err != nil {
			return 0, err
		}
		n = cur
	}
	n++
	m.values[key] = memItem{value: []byte(strconv.FormatInt(n, 10)), expiresAt: it.expiresAt}
	return n, nil
}

func (m *Memory) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.live(key)
	if !ok {
		return nil
	}
	it.expiresAt = m.expiry(ttl)
	m.values[key] = it
	return nil
}

func (m *Memory) Append(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], append([]byte{}, value...))
	return nil
}

func (m *Memory) Range(ctx context.Context, key string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.lists[key]
	out := make([][]byte, len(src))
	for i, v := range src {
		out[i] = append([]byte{}, v...)
	}
	return out, nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]memItem)
	m.lists = make(map[string][][]byte)
	return nil
}

// Sweep drops expired values and reports how many were removed.
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int
	for k := range m.values {
		if _, ok := m.live(k); !ok {
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Close() error { return nil }
