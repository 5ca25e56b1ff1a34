package terminal

import (
	"github.com/iudanet/gophstorage/internal/models"
	"github.com/iudanet/gophstorage/internal/server/storage"
)

// terminalState is the authoritative state of one terminal.
// Guarded by Service.mu.
type terminalState struct {
	subscribers  map[string]struct{}
	peerPlayers  map[string]string
	reservations map[string]*models.ReservationRecord
	processed    *opCache
	terminalID   string
	sessionID    string
	chests       []storage.Source
	anchor       models.Vec3
	radius       float64
	revision     int64
}

func newTerminalState(terminalID, sessionID string, cacheSize int) *terminalState {
	return &terminalState{
		terminalID:   terminalID,
		sessionID:    sessionID,
		revision:     1,
		subscribers:  make(map[string]struct{}),
		peerPlayers:  make(map[string]string),
		reservations: make(map[string]*models.ReservationRecord),
		processed:    newOpCache(cacheSize),
	}
}

// empty reports whether the state can be garbage-collected
func (st *terminalState) empty() bool {
	return len(st.subscribers) == 0 && len(st.reservations) == 0
}

func (st *terminalState) bump() int64 {
	st.revision++
	return st.revision
}

// opCache is a fixed-capacity FIFO of processed operation ids with O(1)
// membership. The oldest id is evicted first; an evicted id is forgotten and
// a retransmit carrying it is processed again.
type opCache struct {
	results map[string]Result
	ring    []string
	next    int
	full    bool
}

func newOpCache(capacity int) *opCache {
	if capacity <= 0 {
		capacity = DefaultOperationCacheSize
	}
	return &opCache{
		results: make(map[string]Result, capacity),
		ring:    make([]string, capacity),
	}
}

// Get returns the remembered result of a processed operation
func (c *opCache) Get(opID string) (Result, bool) {
	if opID == "" {
		return Result{}, false
	}
	r, ok := c.results[opID]
	return r, ok
}

// Put remembers the result; the snapshot is not kept
func (c *opCache) Put(opID string, r Result) {
	if opID == "" {
		return
	}
	r.Snapshot = nil
	if _, ok := c.results[opID]; ok {
		c.results[opID] = r
		return
	}

	if c.full {
		delete(c.results, c.ring[c.next])
	}
	c.ring[c.next] = opID
	c.results[opID] = r
	c.next++
	if c.next == len(c.ring) {
		c.next = 0
		c.full = true
	}
}

// Len returns the number of remembered operations
func (c *opCache) Len() int {
	return len(c.results)
}
