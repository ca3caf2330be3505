package anonymizer

import (
	"hash/fnv"
	"sync"
)

const defaultShardCount = 64

// identityShard is a part of a sharded identity map, containing its own map
// and a mutex.
type identityShard[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// IdentityMap memoizes original → anonymized values for one run. Entries are
// created at most once and never change afterwards, so concurrent workers
// always observe the same replacement for the same original.
type IdentityMap[V any] struct {
	shards     []*identityShard[V]
	shardCount uint32
}

// NewIdentityMap creates a sharded identity map. A non-positive shard count
// selects the default.
func NewIdentityMap[V any](numShards int) *IdentityMap[V] {
	if numShards <= 0 || numShards > 65536 {
		numShards = defaultShardCount
	}
	m := &IdentityMap[V]{
		shards:     make([]*identityShard[V], numShards),
		shardCount: uint32(numShards),
	}
	for i := range m.shards {
		m.shards[i] = &identityShard[V]{entries: make(map[string]V)}
	}
	return m
}

func (m *IdentityMap[V]) getShard(key string) *identityShard[V] {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return m.shards[hasher.Sum32()%m.shardCount]
}

// Get returns the replacement stored for key.
func (m *IdentityMap[V]) Get(key string) (V, bool) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.entries[key]
	return v, ok
}

// GetOrCreate returns the replacement stored for key, deriving and storing it
// first when the key is new. When two callers race on a new key, the first
// one to take the shard lock decides the value.
func (m *IdentityMap[V]) GetOrCreate(key string, derive func() V) V {
	if v, ok := m.Get(key); ok {
		return v
	}

	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if v, ok := shard.entries[key]; ok {
		return v
	}
	v := derive()
	shard.entries[key] = v
	return v
}

// Len returns the number of stored entries.
func (m *IdentityMap[V]) Len() int {
	n := 0
	for _, shard := range m.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}
