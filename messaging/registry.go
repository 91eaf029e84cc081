package messaging

import (
	"slices"
	"sync"

	"github.com/pubflow/pubflow-go/contracts"
)

// pendingConfirm is one registry entry resolved by a confirmation.
type pendingConfirm struct {
	tag     uint64
	message contracts.OutboundMessage
}

// unconfirmedRegistry is the ordered mapping from publish sequence number to
// the message published under it. A tag is present iff it has been published
// and not yet confirmed. Insertion happens only on the producer goroutine, in
// ascending tag order; removal races with the confirmation pump and is
// idempotent.
type unconfirmedRegistry struct {
	mu      sync.Mutex
	tags    []uint64 // ascending
	entries map[uint64]contracts.OutboundMessage
}

func newUnconfirmedRegistry() *unconfirmedRegistry {
	return &unconfirmedRegistry{
		entries: make(map[uint64]contracts.OutboundMessage),
	}
}

// Add registers a message under its sequence number. Re-adding an existing
// tag is a no-op.
func (r *unconfirmedRegistry) Add(tag uint64, msg contracts.OutboundMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[tag]; exists {
		return
	}
	r.entries[tag] = msg
	// Tags are handed out in publish order, so appending keeps the slice
	// sorted.
	r.tags = append(r.tags, tag)
}

// Remove resolves a single tag. Returns false if the tag is unknown (already
// resolved or never registered); double removal is a no-op.
func (r *unconfirmedRegistry) Remove(tag uint64) (contracts.OutboundMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.entries[tag]
	if !ok {
		return contracts.OutboundMessage{}, false
	}
	delete(r.entries, tag)
	if i, found := slices.BinarySearch(r.tags, tag); found {
		r.tags = slices.Delete(r.tags, i, i+1)
	}
	return msg, true
}

// RemoveUpTo resolves every tag less than or equal to the given one and
// returns the removed entries in ascending tag order.
func (r *unconfirmedRegistry) RemoveUpTo(tag uint64) []pendingConfirm {
	r.mu.Lock()
	defer r.mu.Unlock()

	end, found := slices.BinarySearch(r.tags, tag)
	if found {
		end++
	}
	if end == 0 {
		return nil
	}

	removed := make([]pendingConfirm, 0, end)
	for _, t := range r.tags[:end] {
		removed = append(removed, pendingConfirm{tag: t, message: r.entries[t]})
		delete(r.entries, t)
	}
	r.tags = slices.Delete(r.tags, 0, end)
	return removed
}

// Len returns the number of unconfirmed entries.
func (r *unconfirmedRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
