// Package replycache implements the per-client reply de-dup cache from
// spec.md §4.2: a fixed-capacity, client-MAC-keyed memoization of the
// last reply sent, so a client retransmit (same seq byte) gets the
// exact same bytes back without re-entering the dispatcher.
package replycache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Capacity is the fixed number of reply-cache entries (spec.md §3).
const Capacity = 16

// Entry is one cached reply.
type Entry struct {
	Frame     []byte
	Seq       byte
	Timestamp time.Time
}

// Cache is the reply cache. Its eviction policy — on a miss for a new
// client, overwrite the entry whose timestamp is oldest — is exactly
// what hashicorp/golang-lru's fixed-capacity Cache gives for free via
// its own least-recently-used eviction on Add, so this package is a
// thin, typed wrapper rather than a hand-rolled ring buffer.
type Cache struct {
	lru *lru.Cache[[6]byte, Entry]
}

// New constructs a reply cache with the fixed 16-entry capacity.
func New() *Cache {
	c, err := lru.New[[6]byte, Entry](Capacity)
	if err != nil {
		// Capacity is a positive compile-time constant; New only
		// errors for size <= 0.
		panic(err)
	}
	return &Cache{lru: c}
}

// Lookup returns the cached reply for mac if it is a retransmit of seq
// (spec.md §4.2: stored seq matches and stored length > 0).
func (c *Cache) Lookup(mac [6]byte, seq byte) ([]byte, bool) {
	e, ok := c.lru.Peek(mac)
	if !ok || e.Seq != seq || len(e.Frame) == 0 {
		return nil, false
	}
	return e.Frame, true
}

// Store records frame as mac's most recent reply for seq.
func (c *Cache) Store(mac [6]byte, seq byte, frame []byte) {
	c.lru.Add(mac, Entry{Frame: frame, Seq: seq, Timestamp: time.Now()})
}

// Poison marks mac's slot as not a valid retransmit source (dispatch
// returned "ignore"): spec.md §4.2 "set stored length to 0".
func (c *Cache) Poison(mac [6]byte, seq byte) {
	c.lru.Add(mac, Entry{Seq: seq, Timestamp: time.Now()})
}
