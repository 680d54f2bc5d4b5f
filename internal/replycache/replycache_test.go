package replycache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megapearl/etherdfs/internal/replycache"
)

var mac1 = [6]byte{1, 2, 3, 4, 5, 6}
var mac2 = [6]byte{6, 5, 4, 3, 2, 1}

func TestLookupMissOnEmptyCache(t *testing.T) {
	c := replycache.New()
	_, ok := c.Lookup(mac1, 1)
	assert.False(t, ok)
}

func TestStoreThenLookupHitOnRetransmit(t *testing.T) {
	c := replycache.New()
	frame := []byte{0xAA, 0xBB, 0xCC}
	c.Store(mac1, 5, frame)

	got, ok := c.Lookup(mac1, 5)
	require.True(t, ok)
	assert.Equal(t, frame, got)
}

func TestLookupMissesOnDifferentSeq(t *testing.T) {
	c := replycache.New()
	c.Store(mac1, 5, []byte{1})
	_, ok := c.Lookup(mac1, 6)
	assert.False(t, ok)
}

func TestPoisonedSlotIsNotARetransmitHit(t *testing.T) {
	c := replycache.New()
	c.Poison(mac1, 9)
	_, ok := c.Lookup(mac1, 9)
	assert.False(t, ok)
}

func TestCacheIsPerClientMAC(t *testing.T) {
	c := replycache.New()
	c.Store(mac1, 1, []byte{0x11})
	_, ok := c.Lookup(mac2, 1)
	assert.False(t, ok)
}

func TestCapacityEvictsLeastRecentlyUsed(t *testing.T) {
	c := replycache.New()
	for i := 0; i < replycache.Capacity+1; i++ {
		var mac [6]byte
		mac[0] = byte(i)
		c.Store(mac, 1, []byte{byte(i)})
	}
	// the very first client inserted should have been evicted to make
	// room for the (Capacity+1)th
	var firstMAC [6]byte
	_, ok := c.Lookup(firstMAC, 1)
	assert.False(t, ok)
}
