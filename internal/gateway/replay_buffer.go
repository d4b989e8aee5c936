package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte // envelope JSON
}

// ReplayBuffer is a fixed-size ring of recent envelopes for one channel.
// Clients that reconnect with a known seq are backfilled from it.
// Safe for concurrent use.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int
	size    int
}

// NewReplayBuffer creates a replay buffer holding up to capacity entries.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push records an envelope, evicting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.entries[rb.next] = replayEntry{Seq: seq, Data: cp}
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.size < len(rb.entries) {
		rb.size++
	}
	rb.mu.Unlock()
}

// Since returns the envelopes with seq > after, oldest first.
func (rb *ReplayBuffer) Since(after int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	start := (rb.next - rb.size + len(rb.entries)) % len(rb.entries)
	for i := 0; i < rb.size; i++ {
		e := rb.entries[(start+i)%len(rb.entries)]
		if e.Seq > after {
			out = append(out, e.Data)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
