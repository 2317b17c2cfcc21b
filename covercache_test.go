package coverlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoverCache_HitAndMiss(t *testing.T) {
	cc := NewCoverCache(time.Hour, 4)

	_, ok := cc.Get([]byte("jpeg"), 48)
	assert.False(t, ok)

	cc.Put([]byte("jpeg"), 48, []byte{1, 2, 3})
	packed, ok := cc.Get([]byte("jpeg"), 48)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, packed)

	_, ok = cc.Get([]byte("jpeg"), 32)
	assert.False(t, ok, "size is part of the key")

	hits, misses := cc.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
}

func TestCoverCache_Expires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cc := NewCoverCache(time.Minute, 4)
	cc.now = clock.Now
	cc.Put([]byte("a"), 48, []byte{1})

	clock.Advance(30 * time.Second)
	_, ok := cc.Get([]byte("a"), 48)
	assert.True(t, ok)

	clock.Advance(61 * time.Second)
	_, ok = cc.Get([]byte("a"), 48)
	assert.False(t, ok, "window counts from the last use")
}

func TestCoverCache_EvictsLeastRecentlyUsed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cc := NewCoverCache(time.Hour, 2)
	cc.now = clock.Now

	cc.Put([]byte("a"), 48, []byte{1})
	clock.Advance(time.Second)
	cc.Put([]byte("b"), 48, []byte{2})
	clock.Advance(time.Second)
	cc.Get([]byte("a"), 48)
	clock.Advance(time.Second)
	cc.Put([]byte("c"), 48, []byte{3})

	assert.Equal(t, 2, cc.Len())
	_, ok := cc.Get([]byte("b"), 48)
	assert.False(t, ok)
	_, ok = cc.Get([]byte("a"), 48)
	assert.True(t, ok)
}

func TestCoverCache_Disabled(t *testing.T) {
	cc := NewCoverCache(time.Hour, 0)

	cc.Put([]byte("a"), 48, []byte{1})

	assert.Zero(t, cc.Len())
}
