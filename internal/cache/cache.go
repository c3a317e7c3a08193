package cache

// LRU maps keys to values and evicts the least recently used entry once it
// holds more than its limit. Every value that leaves the cache, by eviction,
// Delete or Clear, is passed to the release callback exactly once.
type LRU[K comparable, V any] struct {
	limit   int
	entries map[K]*lruNode[K, V]
	order   lruList[K, V]
	release func(K, V)

	evictions uint64
}

// New creates an LRU holding at most limit entries. A limit of 0 or less
// means unlimited. release may be nil.
func New[K comparable, V any](limit int, release func(K, V)) *LRU[K, V] {
	return &LRU[K, V]{
		limit:   limit,
		entries: make(map[K]*lruNode[K, V]),
		release: release,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	node, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.moveToFront(node)
	return node.value, true
}

// Set stores value under key. A previous value for key is released.
func (c *LRU[K, V]) Set(key K, value V) {
	if node, ok := c.entries[key]; ok {
		old := node.value
		node.value = value
		c.order.moveToFront(node)
		c.drop(key, old)
		return
	}
	node := &lruNode[K, V]{key: key, value: value}
	c.entries[key] = node
	c.order.pushFront(node)
	c.trim()
}

// GetOrCreate returns the cached value for key, or calls create and caches
// its result. A create error is returned as is and nothing is cached.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete releases and removes key. It reports whether key was present.
func (c *LRU[K, V]) Delete(key K) bool {
	node, ok := c.entries[key]
	if !ok {
		return false
	}
	c.order.unlink(node)
	delete(c.entries, key)
	c.drop(key, node.value)
	return true
}

// Clear releases every entry, least recently used first.
func (c *LRU[K, V]) Clear() {
	for c.order.tail != nil {
		c.Delete(c.order.tail.key)
	}
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int { return c.order.len }

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	return Stats{Len: c.order.len, Capacity: c.limit, Evictions: c.evictions}
}

func (c *LRU[K, V]) trim() {
	for c.limit > 0 && c.order.len > c.limit {
		oldest := c.order.tail
		c.order.unlink(oldest)
		delete(c.entries, oldest.key)
		c.evictions++
		c.drop(oldest.key, oldest.value)
	}
}

func (c *LRU[K, V]) drop(key K, value V) {
	if c.release != nil {
		c.release(key, value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the entry limit, 0 when unlimited.
	Capacity int
	// Evictions counts entries dropped for exceeding Capacity.
	Evictions uint64
}
