// Package handledb implements the HandleDB described in spec.md §3/§4.3:
// a fixed-capacity table interning host-side paths behind stable 16-bit
// "short sector" ids, with idle-timeout and LRU-by-capacity eviction.
package handledb

import (
	"sync"
	"time"

	"github.com/megapearl/etherdfs/internal/protocol"
)

// Capacity is the number of usable slots (0xFFFF is reserved as the
// "invalid handle" id, per spec.md §3).
const Capacity = 0xFFFF

// IdleTimeout is the duration after which an unreferenced slot is
// cleared in place on the next intern() sweep (spec.md §4.3).
const IdleTimeout = 3600 * time.Second

// Entry is one occupied slot: an interned path plus, if the slot denotes
// a directory a FindFirst has populated, its cached listing.
type Entry struct {
	Name     string
	LastUsed time.Time
	DirList  []protocol.FileProps
	HasDir   bool
}

// DB is the handle table. Zero value is not usable; use New.
type DB struct {
	mu      sync.Mutex
	slots   []Entry
	byName  map[string]uint16
	clock   func() time.Time
}

// New constructs an empty handle table.
func New() *DB {
	return &DB{
		slots:  make([]Entry, Capacity),
		byName: make(map[string]uint16, 1024),
		clock:  time.Now,
	}
}

// Intern returns the existing id for path if present; otherwise it
// allocates a free or LRU-evicted slot, stores path, stamps now, and
// returns the new id. Returns protocol.InvalidHandle only if the table
// cannot allocate (never happens with the fixed 65535-slot table, but
// the path exists for parity with the original's out-of-memory case).
func (d *DB) Intern(path string) uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()

	if id, ok := d.byName[path]; ok {
		d.slots[id].LastUsed = now
		return id
	}

	// opportunistic sweep: clear any slot idle > IdleTimeout (spec.md §4.3).
	var freeSlot = -1
	oldest := -1
	for i := range d.slots {
		e := &d.slots[i]
		if e.Name == "" {
			if freeSlot < 0 {
				freeSlot = i
			}
			continue
		}
		if now.Sub(e.LastUsed) > IdleTimeout {
			d.clear(uint16(i))
			if freeSlot < 0 {
				freeSlot = i
			}
			continue
		}
		if oldest < 0 || d.slots[oldest].LastUsed.After(e.LastUsed) {
			oldest = i
		}
	}

	var slot int
	if freeSlot >= 0 {
		slot = freeSlot
	} else if oldest >= 0 {
		d.clear(uint16(oldest))
		slot = oldest
	} else {
		return protocol.InvalidHandle
	}

	d.slots[slot] = Entry{Name: path, LastUsed: now}
	d.byName[path] = uint16(slot)
	return uint16(slot)
}

// Lookup returns the path stored at id, or "" if id is stale/unused.
func (d *DB) Lookup(id uint16) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == protocol.InvalidHandle || int(id) >= len(d.slots) {
		return "", false
	}
	e := &d.slots[id]
	if e.Name == "" {
		return "", false
	}
	e.LastUsed = d.clock()
	return e.Name, true
}

// SetDirListing stores the cached enumeration for a directory handle.
func (d *DB) SetDirListing(id uint16, list []protocol.FileProps) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.slots) || d.slots[id].Name == "" {
		return
	}
	d.slots[id].DirList = list
	d.slots[id].HasDir = true
}

// DirListing returns the cached listing for id, if any.
func (d *DB) DirListing(id uint16) ([]protocol.FileProps, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.slots) || !d.slots[id].HasDir {
		return nil, false
	}
	return d.slots[id].DirList, true
}

// clear releases slot i; caller must hold d.mu.
func (d *DB) clear(i uint16) {
	if d.slots[i].Name != "" {
		delete(d.byName, d.slots[i].Name)
	}
	d.slots[i] = Entry{}
}
