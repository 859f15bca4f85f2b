package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainQueue(d *Device) []Word {
	var out []Word
	for {
		w, ok := d.PopReady(time.Now().Add(time.Hour))
		if !ok {
			break
		}
		out = append(out, w)
	}
	return out
}

func TestAttackerCollisionVsBusInjectsOnAnyCommand(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackCollisionVsBus, N: 3}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())
	d.Fake = true

	a.OnCmd(d, NewCommandWord(5, 2, Receive))

	words := drainQueue(d)
	require.Len(t, words, 3)
	for _, w := range words {
		assert.Equal(t, uint8(AttackCollisionVsBus), w.Attk())
	}
}

func TestAttackerCollisionVsRTOnlyTargetsAddress(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackCollisionVsRT, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(6, 4, Receive))
	assert.Empty(t, drainQueue(d))

	a.OnCmd(d, NewCommandWord(5, 4, Receive))
	assert.Len(t, drainQueue(d), 4)
}

func TestAttackerShutdownSingleShotUnlessRapidFire(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackShutdown, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 1, Receive))
	words := drainQueue(d)
	require.Len(t, words, 1)
	assert.Equal(t, uint8(4), words[0].ModeCode())
	assert.Equal(t, BroadcastAddress, words[0].Address())

	a.OnCmd(d, NewCommandWord(5, 1, Receive))
	assert.Empty(t, drainQueue(d))
}

func TestAttackerDataThrashingFiresAfterPayload(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackDataThrashing, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 2, Receive))
	assert.Empty(t, drainQueue(d))

	a.OnDat(d, NewDataWord(1))
	assert.Empty(t, drainQueue(d))

	a.OnDat(d, NewDataWord(2))
	words := drainQueue(d)
	require.Len(t, words, 1)
	assert.Equal(t, uint8(30), words[0].ModeCode())
}

func TestAttackerFakeStatusTrxImmediate(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackFakeStatusTrx, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 2, Transmit))
	words := drainQueue(d)
	require.Len(t, words, 1)
	assert.True(t, words[0].IsStatus())
	assert.Equal(t, uint8(5), words[0].Address())
}

func TestAttackerCorruptionInjectsTaggedData(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackCorruption, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 3, Transmit))
	words := drainQueue(d)
	require.Len(t, words, 4) // 1 status + 3 data
	assert.True(t, words[0].IsStatus())
	for _, w := range words[1:] {
		assert.Equal(t, corruptionTag, w.Data())
	}
}

func TestAttackerCorruptionSingleShotUnlessRapidFire(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackCorruption, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 3, Transmit))
	require.Len(t, drainQueue(d), 4)

	a.OnCmd(d, NewCommandWord(5, 3, Transmit))
	assert.Empty(t, drainQueue(d))
}

func TestAttackerCorruptionRepeatsWithRapidFire(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackCorruption, Target: 5}, true, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 3, Transmit))
	require.Len(t, drainQueue(d), 4)

	a.OnCmd(d, NewCommandWord(5, 3, Transmit))
	assert.Len(t, drainQueue(d), 4)
}

func TestAttackerInvalidationInjectsReceiveCount31(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackInvalidation, Target: 5}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(5, 2, Transmit))
	words := drainQueue(d)
	require.Len(t, words, 1)
	assert.Equal(t, uint8(31), words[0].DwordCount())
}

func TestAttackerMITMForgesThreeWords(t *testing.T) {
	a := NewAttacker(AttackSelection{Kind: AttackMITM}, false, 0)
	d := NewDevice(9, ModeRT, 0, NewLog())

	a.OnCmd(d, NewCommandWord(3, 1, Receive))
	a.OnCmd(d, NewCommandWord(7, 1, Transmit))
	a.OnSts(d, NewStatusWord(7, false, false))

	words := drainQueue(d)
	require.Len(t, words, 3)
	assert.Equal(t, uint8(7), words[0].Address())
	assert.True(t, words[2].IsCommand())
	assert.Equal(t, uint8(3), words[2].Address())
}
