package matches

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type keyStore interface {
	inc(k Key) int64
	get(k Key) int64
	each(fn func(Key, int64))
	len() int
}

type mapStore map[Key]int64

func (m mapStore) inc(k Key) int64 {
	m[k]++
	return m[k]
}

func (m mapStore) get(k Key) int64 { return m[k] }

func (m mapStore) each(fn func(Key, int64)) {
	for k, v := range m {
		fn(k, v)
	}
}

func (m mapStore) len() int { return len(m) }

// lruStore forgets the least recently matched keys beyond its size.
type lruStore struct {
	cache *lru.Cache[Key, int64]
}

func (s lruStore) inc(k Key) int64 {
	n, _ := s.cache.Get(k)
	n++
	s.cache.Add(k, n)
	return n
}

func (s lruStore) get(k Key) int64 {
	n, _ := s.cache.Peek(k)
	return n
}

func (s lruStore) each(fn func(Key, int64)) {
	for _, k := range s.cache.Keys() {
		if v, ok := s.cache.Peek(k); ok {
			fn(k, v)
		}
	}
}

func (s lruStore) len() int { return s.cache.Len() }

// Counter counts the matches of one rule per Key.
type Counter struct {
	mu    sync.Mutex
	store keyStore
}

// NewCounter returns a Counter. With maxKeys > 0 only the maxKeys most
// recently matched keys are remembered.
func NewCounter(maxKeys int) *Counter {
	if maxKeys > 0 {
		cache, err := lru.New[Key, int64](maxKeys)
		if err == nil {
			return &Counter{store: lruStore{cache: cache}}
		}
	}
	return &Counter{store: mapStore{}}
}

// Increment adds one match for k and returns the new count.
func (c *Counter) Increment(k Key) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.inc(k)
}

// incrementAndCheck increments k and reports whether the new count is a
// multiple of limit, under a single lock.
func (c *Counter) incrementAndCheck(k Key, limit int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.store.inc(k)
	return n, limit > 0 && n%limit == 0
}

// Get returns the current count of k.
func (c *Counter) Get(k Key) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.get(k)
}

// Len returns the number of tracked keys.
func (c *Counter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Counts copies the counts.
func (c *Counter) Counts() map[Key]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Key]int64, c.store.len())
	c.store.each(func(k Key, v int64) { out[k] = v })
	return out
}
