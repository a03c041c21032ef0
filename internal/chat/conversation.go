// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dwelly Contributors

package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dwelly-dev/dwelly/internal/provider"
)

// Turn is one recorded message in a conversation log.
type Turn struct {
	Role    provider.MessageRole `json:"role"`
	Content string               `json:"content"`
	At      time.Time            `json:"at"`
}

// Conversation holds the ordered turn log for one conversation id.
// The turn log is guarded by mu; HandleMessage holds the lock for the
// full turn so concurrent calls on one id are serialized, never
// interleaved. lastActive is updated on lookup, before the turn lock
// is taken, so it is atomic rather than guarded by mu.
type Conversation struct {
	ID string

	lastActive atomic.Int64 // unix nanoseconds

	mu    sync.Mutex
	turns []Turn
}

func (c *Conversation) touch(now time.Time) {
	c.lastActive.Store(now.UnixNano())
}

// snapshot returns a copy of the turn log. Caller must hold mu.
func (c *Conversation) snapshot() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// tail returns at most n most recent turns. Caller must hold mu.
func (c *Conversation) tail(n int) []Turn {
	if n <= 0 || len(c.turns) <= n {
		return c.turns
	}
	return c.turns[len(c.turns)-n:]
}

// registry is the in-memory conversation table. It only guards the
// map; per-conversation state is guarded by each Conversation's own
// mutex.
type registry struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
	clock func() time.Time
}

func newRegistry(clock func() time.Time) *registry {
	if clock == nil {
		clock = time.Now
	}
	return &registry{convs: make(map[string]*Conversation), clock: clock}
}

// getOrCreate returns the conversation for id, creating it when absent.
// An empty id allocates a fresh conversation with a generated id. The
// lookup itself counts as activity: refreshing lastActive under the
// registry lock means the sweeper cannot evict a conversation between
// this call returning and the caller taking the turn lock.
func (r *registry) getOrCreate(id string) *Conversation {
	if id == "" {
		id = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[id]
	if !ok {
		conv = &Conversation{ID: id}
		r.convs[id] = conv
	}
	conv.touch(r.clock())
	return conv
}

func (r *registry) get(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[id]
	return conv, ok
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.convs, id)
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.convs)
}

// sweep evicts conversations idle longer than ttl. TryLock skips any
// conversation mid-turn, and getOrCreate refreshes lastActive on
// lookup, so a conversation with an in-flight call is never evicted.
// Returns the number of evicted conversations.
func (r *registry) sweep(ttl time.Duration) int {
	cutoff := r.clock().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, conv := range r.convs {
		if !conv.mu.TryLock() {
			continue
		}
		conv.mu.Unlock()

		if time.Unix(0, conv.lastActive.Load()).Before(cutoff) {
			delete(r.convs, id)
			evicted++
		}
	}
	return evicted
}
