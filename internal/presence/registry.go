// Package presence tracks which identities hold a live channel in this
// process.
//
// The Registry is authoritative only for the process that owns it: entries
// are created on connect, removed on disconnect and lost on restart. A
// deployment running several API processes needs a Registry backed by a
// shared store (for example a Redis hash of identity to node and channel id)
// so that one process can route to a channel held by another. That
// implementation is not provided; the Dispatcher only depends on the
// interface, so it can be swapped in without touching delivery code.
package presence

import (
	"sort"
	"sync"
	"time"
)

// Channel is a live delivery handle. It may be closed at any time.
type Channel interface {
	ID() string
	Send([]byte) error
	Close()
}

// Entry is a snapshot of one registered identity.
type Entry struct {
	UserID      string    `json:"userId"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Registry maps identities to their most recent channel.
type Registry interface {
	// Register installs ch for userID, replacing any previous entry.
	Register(userID string, ch Channel)
	// Unregister removes userID. Absent identities are ignored.
	Unregister(userID string)
	// UnregisterChannel removes userID only while ch is still its entry.
	UnregisterChannel(userID string, ch Channel) bool
	// Resolve returns the current channel for userID.
	Resolve(userID string) (Channel, bool)
	// Entries returns the registered identities, most recent first.
	Entries() []Entry
	// Len returns the number of registered identities.
	Len() int
}

type entry struct {
	ch          Channel
	connectedAt time.Time
}

// MemoryRegistry is the single-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Register installs or overwrites the entry for userID. Last connection wins.
func (r *MemoryRegistry) Register(userID string, ch Channel) {
	if userID == "" || ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = entry{ch: ch, connectedAt: r.now().UTC()}
}

// Unregister removes the entry for userID; a no-op when absent.
func (r *MemoryRegistry) Unregister(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// UnregisterChannel removes the entry only if ch is the registered channel,
// so a late disconnect from a replaced connection leaves the newer one alone.
func (r *MemoryRegistry) UnregisterChannel(userID string, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.entries[userID]
	if !ok || current.ch != ch {
		return false
	}
	delete(r.entries, userID)
	return true
}

// Resolve looks up the channel for userID.
func (r *MemoryRegistry) Resolve(userID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// Entries returns a snapshot sorted by connection time, newest first.
func (r *MemoryRegistry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Entry{UserID: id, ConnectedAt: e.connectedAt})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ConnectedAt.After(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of registered identities.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
