// CoverLink - Cover Conversion Cache
// Copyright (c) 2025 - Open Source Project

package coverlink

import (
	"crypto/sha256"
	"sync"
	"time"
)

// CoverCache remembers recently converted covers so a cover resent on
// resume or session restart is not decoded and dithered again.
type CoverCache struct {
	entries    map[[sha256.Size]byte]*cachedCover
	mutex      sync.Mutex
	window     time.Duration
	maxEntries int
	now        func() time.Time

	hits   uint64
	misses uint64
}

type cachedCover struct {
	packed   []byte
	lastSeen time.Time
}

// NewCoverCache keeps conversions for window after their last use, at most
// maxEntries of them.
func NewCoverCache(window time.Duration, maxEntries int) *CoverCache {
	return &CoverCache{
		entries:    make(map[[sha256.Size]byte]*cachedCover),
		window:     window,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the packed bitmap for payload at size, if cached.
func (cc *CoverCache) Get(payload []byte, size int) ([]byte, bool) {
	key := coverKey(payload, size)

	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	now := cc.now()
	if entry, ok := cc.entries[key]; ok && now.Sub(entry.lastSeen) < cc.window {
		entry.lastSeen = now
		cc.hits++
		return entry.packed, true
	}
	cc.misses++
	return nil, false
}

// Put stores a conversion result.
func (cc *CoverCache) Put(payload []byte, size int, packed []byte) {
	if cc.maxEntries <= 0 {
		return
	}
	key := coverKey(payload, size)

	cc.mutex.Lock()
	defer cc.mutex.Unlock()

	cc.entries[key] = &cachedCover{packed: packed, lastSeen: cc.now()}
	if len(cc.entries) > cc.maxEntries {
		cc.cleanup()
	}
}

// Stats returns hit and miss counts.
func (cc *CoverCache) Stats() (hits, misses uint64) {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()
	return cc.hits, cc.misses
}

// Len returns the number of cached covers.
func (cc *CoverCache) Len() int {
	cc.mutex.Lock()
	defer cc.mutex.Unlock()
	return len(cc.entries)
}

// cleanup drops expired entries, then the least recently used ones until
// the cache fits. Caller holds the lock.
func (cc *CoverCache) cleanup() {
	cutoff := cc.now().Add(-cc.window)
	for key, entry := range cc.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(cc.entries, key)
		}
	}

	for len(cc.entries) > cc.maxEntries {
		var oldestKey [sha256.Size]byte
		var oldest time.Time
		first := true
		for key, entry := range cc.entries {
			if first || entry.lastSeen.Before(oldest) {
				oldestKey, oldest, first = key, entry.lastSeen, false
			}
		}
		delete(cc.entries, oldestKey)
	}
}

func coverKey(payload []byte, size int) [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte{byte(size >> 8), byte(size)})
	h.Write(payload)
	var key [sha256.Size]byte
	copy(key[:], h.Sum(nil))
	return key
}
