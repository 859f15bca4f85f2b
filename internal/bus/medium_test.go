package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediumBroadcastSkipsSender(t *testing.T) {
	m := NewMedium([]uint8{1, 2, 3})
	m.Broadcast(1, NewDataWord(42))

	select {
	case r := <-m.Inbox(1):
		t.Fatalf("sender received its own word: %v", r.word)
	default:
	}

	r2 := <-m.Inbox(2)
	assert.Equal(t, uint16(42), r2.word.Data())
	r3 := <-m.Inbox(3)
	assert.Equal(t, uint16(42), r3.word.Data())
}

func TestMediumBroadcastDropsOnFullInbox(t *testing.T) {
	m := NewMedium([]uint8{1, 2})
	for i := 0; i < inboxCapacity; i++ {
		m.Broadcast(1, NewDataWord(uint16(i)))
	}

	start := time.Now()
	m.Broadcast(1, NewDataWord(9999))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, sendTimeout)
	assert.Len(t, m.inboxes[2], inboxCapacity)
}
