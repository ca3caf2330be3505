package classifier

import (
	"cmp"
	"slices"
)

type counterEntry struct {
	count int
	first int
}

// Entry is one key of a Counter with its count.
type Entry[K cmp.Ordered] struct {
	Key   K
	Count int
	// First is the ordinal of the packet that first added the key.
	First int
}

// Counter is a frequency map that remembers when each key was first seen,
// so rankings break ties the same way regardless of how the counts were
// accumulated.
type Counter[K cmp.Ordered] struct {
	entries map[K]*counterEntry
}

// NewCounter creates an empty counter.
func NewCounter[K cmp.Ordered]() *Counter[K] {
	return &Counter[K]{entries: make(map[K]*counterEntry)}
}

// Add counts key once for the packet with the given ordinal.
func (c *Counter[K]) Add(key K, ordinal int) {
	c.AddN(key, 1, ordinal)
}

// AddN counts key n times.
func (c *Counter[K]) AddN(key K, n, ordinal int) {
	if e, ok := c.entries[key]; ok {
		e.count += n
		e.first = min(e.first, ordinal)
		return
	}
	c.entries[key] = &counterEntry{count: n, first: ordinal}
}

// Get returns the count of key.
func (c *Counter[K]) Get(key K) int {
	if e, ok := c.entries[key]; ok {
		return e.count
	}
	return 0
}

// Len returns the number of distinct keys.
func (c *Counter[K]) Len() int {
	return len(c.entries)
}

// Total returns the sum of all counts.
func (c *Counter[K]) Total() int {
	total := 0
	for _, e := range c.entries {
		total += e.count
	}
	return total
}

// Merge adds every count of other to c, keeping the earliest first-seen
// ordinal of each key.
func (c *Counter[K]) Merge(other *Counter[K]) {
	for k, e := range other.entries {
		c.AddN(k, e.count, e.first)
	}
}

// MostCommon returns the n most frequent keys, all of them when n <= 0.
// Ties are broken by first-seen ordinal, then by key.
func (c *Counter[K]) MostCommon(n int) []Entry[K] {
	out := make([]Entry[K], 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, Entry[K]{Key: k, Count: e.count, First: e.first})
	}
	slices.SortFunc(out, func(a, b Entry[K]) int {
		if a.Count != b.Count {
			return cmp.Compare(b.Count, a.Count)
		}
		if a.First != b.First {
			return cmp.Compare(a.First, b.First)
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
