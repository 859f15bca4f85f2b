package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// odd-parity computed independently of Word.CalculateParityBit, for the
// round-trip property in spec.md §8.
func externalOddParity(w Word) uint8 {
	const mask = uint32(1)<<parityBit - 1
	ones := 0
	for v := uint32(w) & mask; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return 1
	}
	return 0
}

func TestParityRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.Uint32Range(0, 1<<25-1).Draw(rt, "raw")
		w := Word(raw).CalculateParityBit()
		assert.Equal(t, externalOddParity(w), w.ParityBit())

		// Idempotent: recomputing does not change the bit.
		w2 := w.CalculateParityBit()
		assert.Equal(t, w, w2)
	})
}

func TestWordKindDisjointness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.Uint32Range(0, 1<<25-1).Draw(rt, "raw")
		// Only sync patterns 0 (data) and 1 (command/status) name a word kind.
		sync := rapid.SampledFrom([]uint8{0, 1}).Draw(rt, "sync")
		w := Word(raw).SetSync(sync)
		count := 0
		if w.IsData() {
			count++
		}
		if w.IsCommand() {
			count++
		}
		if w.IsStatus() {
			count++
		}
		assert.Equal(t, 1, count, "exactly one word kind must hold for %v", w)
	})
}

func TestNewCommandWord(t *testing.T) {
	w := NewCommandWord(5, 8, Transmit)
	assert.True(t, w.IsCommand())
	assert.Equal(t, uint8(5), w.Address())
	assert.Equal(t, uint8(8), w.DwordCount())
	assert.Equal(t, Transmit, w.TR())
	assert.Equal(t, externalOddParity(w), w.ParityBit())
}

func TestNewStatusWord(t *testing.T) {
	w := NewStatusWord(12, true, false)
	assert.True(t, w.IsStatus())
	assert.Equal(t, uint8(12), w.Address())
	assert.True(t, w.ServiceRequestBit())
	assert.False(t, w.MessageErrorBit())
}

func TestNewDataWord(t *testing.T) {
	w := NewDataWord(0xBEEF & 0xFFFF)
	assert.True(t, w.IsData())
	assert.Equal(t, uint16(0xBEEF&0xFFFF), w.Data())
}

func TestModeCommandWord(t *testing.T) {
	w := NewModeCommandWord(BroadcastAddress, 4)
	assert.True(t, w.IsCommand())
	assert.Equal(t, uint8(0), w.Mode())
	assert.Equal(t, uint8(4), w.ModeCode())
	assert.Equal(t, BroadcastAddress, w.Address())
}

func TestAttkTagRoundTrip(t *testing.T) {
	w := NewDataWord(1).SetAttk(9)
	assert.Equal(t, uint8(9), w.Attk())
	// Setting the attack tag does not perturb the payload bits.
	assert.Equal(t, uint16(1), w.Data())
}
