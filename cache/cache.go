// Package cache implements a bloom-filtered negative cache: a
// probabilistic, memory-cheap "probably absent" check that lets a Table
// skip a storage.Engine.Get for keys it has already observed never to
// exist, grounded on the read_cache/modified_map promotion path of
// table.Table (§4.C) which this package supplements rather than replaces.
package cache

import (
	"sync"

	"github.com/AndreasBriese/bbloom"
)

// NegativeCache remembers keys that were looked up and found absent. The
// bloom filter holds the absent keys, so MightExist returning true means the
// key was never marked absent (a storage lookup is still required), and
// false means it was marked absent or collides with a marked key; a false
// answer is therefore not proof of absence. It must be invalidated (Reset)
// whenever a key that was previously absent gets written, since a bloom
// filter cannot un-set a bit.
type NegativeCache struct {
	mu      sync.Mutex
	filter  bbloom.Bloom
	entries float64
}

// New constructs a NegativeCache sized for approximately entries keys at the
// given false-positive probability.
func New(entries int, falsePositiveRate float64) *NegativeCache {
	return &NegativeCache{
		filter:  bbloom.New(float64(entries), falsePositiveRate),
		entries: float64(entries),
	}
}

// MarkAbsent records that key was looked up and found absent in storage.
func (c *NegativeCache) MarkAbsent(key []byte) {
	c.mu.Lock()
	c.filter.Add(key)
	c.mu.Unlock()
}

// MightExist reports false when key was marked absent (or is a bloom-filter
// false positive) since the last Reset, and true otherwise.
func (c *NegativeCache) MightExist(key []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.filter.Has(key)
}

// Reset drops all accumulated negative entries, used after a bulk load or
// checkpoint restore where stale absence bits could otherwise mask new keys.
func (c *NegativeCache) Reset() {
	c.mu.Lock()
	c.filter = bbloom.New(c.entries, 0.01)
	c.mu.Unlock()
}
