package carrier

import (
	"runtime"
	"sync"
)

// CarrierRegistry resolves "the current carrier" for whichever goroutine
// calls CurrentCarrier. A carrier's affinity is the goroutine running its
// scheduler loop, not a thread-local: after a successful steal, the
// stolen Task keeps its own goroutine, but its registry entry is rebound
// to the new owning Carrier rather than the goroutine's identity changing,
// so lookups must always go through this registry rather than any cached
// value (see doc.go, "Concurrency model").
type CarrierRegistry struct {
	mu   sync.RWMutex
	byID map[uint64]*Carrier
}

// NewCarrierRegistry returns an empty registry.
func NewCarrierRegistry() *CarrierRegistry {
	return &CarrierRegistry{
		byID: make(map[uint64]*Carrier),
	}
}

// Bind associates the calling goroutine with c. Called once by a Carrier's
// run loop on entry, and by a Task's dedicated goroutine each time it
// starts or resumes, so that after a steal it is bound to the new owner
// (§4.1.9, "steal neutrality").
func (r *CarrierRegistry) Bind(c *Carrier) {
	id := getGoroutineID()
	r.mu.Lock()
	r.byID[id] = c
	r.mu.Unlock()
}

// Unbind removes the calling goroutine's association, if any. Called when
// a run loop exits; a Task's goroutine does not unbind itself.
func (r *CarrierRegistry) Unbind() {
	id := getGoroutineID()
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Lookup returns the Carrier bound to the calling goroutine, or nil if
// none is bound, e.g. a foreign goroutine that never entered via a
// Carrier's run loop or a stolen Task's wrapper.
func (r *CarrierRegistry) Lookup() *Carrier {
	id := getGoroutineID()
	r.mu.RLock()
	c := r.byID[id]
	r.mu.RUnlock()
	return c
}

// getGoroutineID returns the current goroutine's ID by parsing the header
// line of runtime.Stack's output. There is no supported public API for
// this; it's a well-known trick that avoids a per-goroutine atomic
// counter and the bookkeeping needed to keep it in sync with goroutine
// exit.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
