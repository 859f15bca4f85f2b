package bus

import (
	"sync"
	"time"
)

// Mode is the role a Device plays on the bus.
type Mode int

const (
	ModeRT Mode = iota
	ModeBC
	ModeBM
)

func (m Mode) String() string {
	switch m {
	case ModeRT:
		return "RT"
	case ModeBC:
		return "BC"
	case ModeBM:
		return "BM"
	default:
		return "?"
	}
}

// State is the 1553 RT protocol state machine's current state. The
// parameterised Awt* states record whose status word the BC is waiting for,
// so a foreign status word is dropped rather than mistaken for the awaited one.
type State int

const (
	StateIdle State = iota
	StateOff
	StatePause
	StateAwtData
	StateBusyTrx
	StateAwtStsRcvB2R
	StateAwtStsTrxR2B
	StateAwtStsRcvR2R
	StateAwtStsTrxR2R
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateOff:
		return "Off"
	case StatePause:
		return "Pause"
	case StateAwtData:
		return "AwtData"
	case StateBusyTrx:
		return "BusyTrx"
	case StateAwtStsRcvB2R:
		return "AwtStsRcvB2R"
	case StateAwtStsTrxR2B:
		return "AwtStsTrxR2B"
	case StateAwtStsRcvR2R:
		return "AwtStsRcvR2R"
	case StateAwtStsTrxR2R:
		return "AwtStsTrxR2R"
	default:
		return "?"
	}
}

// AttackType identifies which attack family a fake terminal is running, for
// log attribution. Benign terminals carry AttackNone.
type AttackType int

const (
	AttackNone AttackType = iota
	AttackCollisionVsBus
	AttackCollisionVsRT
	AttackDataThrashing
	AttackMITM
	AttackShutdown
	AttackFakeStatusRecv
	AttackFakeStatusTrx
	AttackDesync
	AttackCorruption
	AttackInvalidation
)

// pendingWrite is one entry in a Device's send queue.
type pendingWrite struct {
	word Word
}

// Device is one terminal's mutable state. It is owned exclusively by the
// goroutine running its terminal loop between Start and join; the System
// only touches it after the owning goroutine has exited.
type Device struct {
	mu sync.Mutex

	Address uint8
	Mode    Mode
	Fake    bool
	AtkType AttackType

	state State

	// Memory holds received data words, in order, up to DwordCountExpected.
	Memory []Word

	DwordCount         uint8
	DwordCountExpected uint8
	NumberOfCurrentCmd int
	CCMD               bool // one-shot: next data word is a clock sample
	InBrdcst           bool

	ServiceRequest bool
	ErrorBit       bool

	WriteDelay time.Duration

	writeQueue   []pendingWrite
	lastEmission time.Time

	// AwaitSource/AwaitDest record whose status the BC awaits in the
	// parameterised Awt* states.
	AwaitSource uint8
	AwaitDest   uint8

	// Timeout is a future timestamp; BC-only. Zero means "no pending timeout".
	Timeout time.Time

	// TimeoutCount is incremented every time on_bc_timeout fires. The
	// command-invalidation verifier reads the matching EventBCTimeout log
	// entries rather than this field.
	TimeoutCount int

	// DeltaTCount / DeltaTTotal accumulate the average inter-word delta-t
	// used by BC-side scheduler bookkeeping (spec.md §8 scenario 1).
	DeltaTCount int
	DeltaTTotal time.Duration
	cmdEmitTime time.Time

	Log *Log
}

// NewDevice constructs a Device in its initial Idle state.
func NewDevice(address uint8, mode Mode, writeDelay time.Duration, log *Log) *Device {
	return &Device{
		Address:    address,
		Mode:       mode,
		WriteDelay: writeDelay,
		Log:        log,
	}
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetState transitions the device's protocol state and logs a state-change
// marker, matching the original source's State-Changed log entry.
func (d *Device) SetState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.Log.Append(LogEntry{
		Time:    time.Now(),
		Mode:    d.Mode,
		Address: d.Address,
		State:   s,
		Kind:    EventStateChanged,
		Detail:  len(d.writeQueue),
	})
}

// SetAwait transitions into one of the parameterised Awt* states, recording
// whose status word the BC awaits.
func (d *Device) SetAwait(s State, source, dest uint8) {
	d.mu.Lock()
	d.state = s
	d.AwaitSource = source
	d.AwaitDest = dest
	d.mu.Unlock()
	d.Log.Append(LogEntry{
		Time:    time.Now(),
		Mode:    d.Mode,
		Address: d.Address,
		State:   s,
		Kind:    EventStateChanged,
	})
}

// ResetAllStateful clears the per-transaction fields and returns the
// just-cleared command counter; OnCmdTrx uses it to restore the counter
// after its own reset.
func (d *Device) ResetAllStateful() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.NumberOfCurrentCmd
	d.NumberOfCurrentCmd = 0
	d.DwordCount = 0
	d.DwordCountExpected = 0
	d.CCMD = false
	d.InBrdcst = false
	d.ErrorBit = false
	return prev
}

// Enqueue appends a word to the FIFO send queue.
func (d *Device) Enqueue(w Word) {
	d.mu.Lock()
	d.writeQueue = append(d.writeQueue, pendingWrite{word: w})
	d.mu.Unlock()
}

// ClearWriteQueue discards all pending writes (used by mode-code 30/abort paths).
func (d *Device) ClearWriteQueue() {
	d.mu.Lock()
	d.writeQueue = nil
	d.mu.Unlock()
}

// PopReady returns the next queued word if WriteDelay has elapsed since the
// last emission, and records the new emission time. FIFO order is
// preserved: words always leave in enqueue order.
func (d *Device) PopReady(now time.Time) (Word, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.writeQueue) == 0 {
		return 0, false
	}
	if !d.lastEmission.IsZero() && now.Sub(d.lastEmission) < d.WriteDelay {
		return 0, false
	}
	w := d.writeQueue[0].word
	d.writeQueue = d.writeQueue[1:]
	d.lastEmission = now
	return w, true
}

// AppendMemory appends a received data word and reports whether the
// expected count has now been reached.
func (d *Device) AppendMemory(w Word) (complete bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Memory = append(d.Memory, w)
	d.DwordCount++
	return d.DwordCount >= d.DwordCountExpected
}

// ClearMemory empties the receive buffer, returning its prior length for
// logging (MsgMCXClr's word-count argument).
func (d *Device) ClearMemory() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.Memory)
	d.Memory = nil
	return n
}

// MarkCommandEmitted records the time a BC command word was queued, for
// average delta-t bookkeeping once the matching status arrives.
func (d *Device) MarkCommandEmitted(t time.Time) {
	d.mu.Lock()
	d.cmdEmitTime = t
	d.mu.Unlock()
}

// RecordStatusMatch accumulates delta-t between a command emission and its
// matching status word, returning the running average in nanoseconds.
func (d *Device) RecordStatusMatch(t time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmdEmitTime.IsZero() {
		return 0
	}
	delta := t.Sub(d.cmdEmitTime)
	d.DeltaTCount++
	d.DeltaTTotal += delta
	d.cmdEmitTime = time.Time{}
	return d.DeltaTTotal / time.Duration(d.DeltaTCount)
}

func (d *Device) AverageDeltaT() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.DeltaTCount == 0 {
		return 0
	}
	return d.DeltaTTotal / time.Duration(d.DeltaTCount)
}
