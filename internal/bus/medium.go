package bus

import "time"

// sendTimeout bounds how long a sender waits for a slow recipient's inbox
// before giving up on that one delivery (spec.md §4.1 back-pressure rule).
const sendTimeout = 2 * time.Millisecond

// inboxCapacity bounds each recipient's channel so a stuck reader can't grow
// memory without bound; it also gives the sender something finite to back
// off against.
const inboxCapacity = 256

// received is one word as observed by a single recipient, timestamped at
// arrival for collision-window detection (spec.md §4.2 step 4).
type received struct {
	at   time.Time
	word Word
}

// Medium is the shared half-duplex broadcast channel. Every terminal may
// enqueue a Word; every *other* terminal receives a copy on its own inbox.
// Ordering is preserved per-sender but not guaranteed across senders beyond
// the timestamp/collision rules in spec.md §4.2 and §5.
type Medium struct {
	inboxes map[uint8]chan received
}

// NewMedium allocates one inbox per participant address.
func NewMedium(addresses []uint8) *Medium {
	m := &Medium{inboxes: make(map[uint8]chan received, len(addresses))}
	for _, a := range addresses {
		m.inboxes[a] = make(chan received, inboxCapacity)
	}
	return m
}

// Inbox returns the channel a terminal should read incoming words from.
func (m *Medium) Inbox(addr uint8) <-chan received {
	return m.inboxes[addr]
}

// Broadcast attempts to deliver w to every address other than from. A
// recipient whose inbox is full within sendTimeout does not receive this
// word; the broadcast is still considered "attempted" for collision
// purposes (spec.md §4.1), so the caller does not retry.
func (m *Medium) Broadcast(from uint8, w Word) {
	now := time.Now()
	for addr, ch := range m.inboxes {
		if addr == from {
			continue
		}
		select {
		case ch <- received{at: now, word: w}:
		case <-time.After(sendTimeout):
		}
	}
}
