package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyCollisionSucceedsOnParityErrorInWindow(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "collision-vs-bus"},
		{Time: now.Add(time.Microsecond), Kind: EventParityError},
	}
	r := Verify(AttackSelection{Kind: AttackCollisionVsBus}, log)
	assert.True(t, r.Succeeded)
}

func TestVerifyCollisionFailsWithoutParityError(t *testing.T) {
	now := time.Now()
	log := []LogEntry{{Time: now, Kind: EventAttack, Attack: "collision-vs-bus"}}
	r := Verify(AttackSelection{Kind: AttackCollisionVsBus}, log)
	assert.False(t, r.Succeeded)
}

func TestVerifyShutdownRequiresOffState(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "shutdown"},
		{Time: now.Add(time.Microsecond), Kind: EventStateChanged, State: StateOff},
	}
	r := Verify(AttackSelection{Kind: AttackShutdown}, log)
	assert.True(t, r.Succeeded)
}

func TestVerifyFakeStatusNotDroppedFailsOnDrop(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "fake-status-trx"},
		{Time: now.Add(time.Microsecond), Kind: EventStatusDropped},
	}
	r := Verify(AttackSelection{Kind: AttackFakeStatusTrx}, log)
	assert.False(t, r.Succeeded)
}

func TestVerifyCorruptionCountsTaggedWords(t *testing.T) {
	now := time.Now()
	tagged := NewDataWord(corruptionTag).SetAttk(uint8(AttackCorruption))
	trx := NewCommandWord(5, 1, Transmit)
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "data-corruption"},
		{Time: now.Add(time.Microsecond), Kind: EventCommandTransmit, Address: 5, Word: trx},
		{Time: now.Add(2 * time.Microsecond), Kind: EventData, Word: tagged},
		{Time: now.Add(3 * time.Microsecond), Kind: EventBCReady},
	}
	r := Verify(AttackSelection{Kind: AttackCorruption, Target: 5}, log)
	assert.True(t, r.Succeeded)
}

func TestVerifyCorruptionFailsWhenCountMismatchesDwordCount(t *testing.T) {
	now := time.Now()
	tagged := NewDataWord(corruptionTag).SetAttk(uint8(AttackCorruption))
	trx := NewCommandWord(5, 2, Transmit)
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "data-corruption"},
		{Time: now.Add(time.Microsecond), Kind: EventCommandTransmit, Address: 5, Word: trx},
		{Time: now.Add(2 * time.Microsecond), Kind: EventData, Word: tagged},
		{Time: now.Add(3 * time.Microsecond), Kind: EventBCReady},
	}
	r := Verify(AttackSelection{Kind: AttackCorruption, Target: 5}, log)
	assert.False(t, r.Succeeded)
}

func TestWindowsForClosesOnBCReadyNotNextAttack(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "a"},
		{Time: now.Add(time.Microsecond), Kind: EventData},
		{Time: now.Add(2 * time.Microsecond), Kind: EventBCReady},
		{Time: now.Add(3 * time.Microsecond), Kind: EventData},
	}
	windows := windowsFor(log)
	assert.Len(t, windows, 1)
	assert.Len(t, windows[0].entries, 3)
}

func TestVerifyInvalidationScansWholeLogNotJustWindow(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventBCTimeout},
		{Time: now.Add(time.Millisecond), Kind: EventAttack, Attack: "command-invalidation"},
	}
	r := Verify(AttackSelection{Kind: AttackInvalidation}, log)
	assert.True(t, r.Succeeded)
}

func TestWindowsForSplitsOnAttackBoundaries(t *testing.T) {
	now := time.Now()
	log := []LogEntry{
		{Time: now, Kind: EventAttack, Attack: "a"},
		{Time: now.Add(time.Microsecond), Kind: EventData},
		{Time: now.Add(2 * time.Microsecond), Kind: EventAttack, Attack: "b"},
		{Time: now.Add(3 * time.Microsecond), Kind: EventData},
	}
	windows := windowsFor(log)
	assert.Len(t, windows, 2)
	assert.Len(t, windows[0].entries, 2)
	assert.Len(t, windows[1].entries, 2)
}
