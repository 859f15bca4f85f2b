package bus

import "time"

// WordLoadTime is the minimum simulated interval to transmit one word on
// the medium; two words landing within this window of each other at a
// receiver collide (spec.md §3, §4.2).
const WordLoadTime = 20 * time.Microsecond

// CollisionTime is WordLoadTime under another name, kept distinct per
// spec.md §3 in case the two constants ever diverge.
const CollisionTime = WordLoadTime

// BCWarmupSteps is the small leading prefix of BC transactions during which
// timeouts are relaxed (spec.md §3).
const BCWarmupSteps = 5

// Handler is the per-terminal behaviour capability set (spec.md §9). The
// default implementation below is the 1553 RT state machine; BC and
// attacker handlers embed DefaultHandler and override selected hooks.
type Handler interface {
	OnWordReceived(d *Device, w Word)
	OnErrParity(d *Device, w Word)
	OnCmd(d *Device, w Word)
	OnCmdRcv(d *Device, w Word)
	OnCmdTrx(d *Device, w Word)
	OnCmdMcx(d *Device, w Word)
	OnDat(d *Device, w Word)
	OnSts(d *Device, w Word)
	OnBCReady(d *Device)
	OnBCTimeout(d *Device)
	OnMemoryReady(d *Device)
	OnDataWrite(d *Device, index uint8) Word
	Verify(log []LogEntry) (bool, string)
	GetAttkType() AttackType
}

// DefaultHandler is the default 1553 RT protocol state machine described in
// spec.md §4.3. BC, BM, and attacker handlers embed it and override only
// the hooks that change.
type DefaultHandler struct{}

func (DefaultHandler) OnWordReceived(d *Device, w Word) {
	// Only the BM variant logs every loaded word (see BMHandler); the
	// default RT handler dispatches instead, so this is a no-op hook.
}

func (DefaultHandler) OnErrParity(d *Device, w Word) {
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventParityError})
	if d.State() == StateAwtData {
		d.mu.Lock()
		d.ErrorBit = true
		d.mu.Unlock()
	}
}

func (DefaultHandler) OnCmd(d *Device, w Word) {
	self := DefaultHandler{}
	if d.Mode != ModeRT {
		return
	}
	destination := w.Address()
	if destination == d.Address || destination == BroadcastAddress {
		d.mu.Lock()
		d.NumberOfCurrentCmd++
		n := d.NumberOfCurrentCmd
		d.mu.Unlock()
		if n >= 2 {
			d.ClearWriteQueue()
			d.ResetAllStateful()
		}
		d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventCommand})
		if w.TR() == Receive && (w.Mode() == 1 || w.Mode() == 0) {
			self.OnCmdMcx(d, w)
		} else if w.TR() == Receive {
			self.OnCmdRcv(d, w)
		} else {
			self.OnCmdTrx(d, w)
		}
	}
	// RT-to-RT: the addressed transmitter's sub-address names the receiver.
	if w.TR() == Transmit && w.SubAddress() == d.Address {
		self.OnCmdRcv(d, w)
	}
}

func (DefaultHandler) OnCmdRcv(d *Device, w Word) {
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventCommandReceive})
	d.SetState(StateAwtData)
	d.mu.Lock()
	d.DwordCount = 0
	d.DwordCountExpected = w.DwordCount()
	if w.Address() == BroadcastAddress {
		d.InBrdcst = true
	}
	d.mu.Unlock()
}

func (h DefaultHandler) OnCmdTrx(d *Device, w Word) {
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventCommandTransmit})
	if !d.Fake {
		d.SetState(StateBusyTrx)
		d.mu.Lock()
		sr, eb := d.ServiceRequest, d.ErrorBit
		d.mu.Unlock()
		d.Enqueue(NewStatusWord(d.Address, sr, eb))
		for i := uint8(0); i < w.DwordCount(); i++ {
			d.Enqueue(h.OnDataWrite(d, i))
		}
	}
	prev := d.ResetAllStateful()
	d.mu.Lock()
	d.NumberOfCurrentCmd = prev
	d.mu.Unlock()
}

func (h DefaultHandler) OnCmdMcx(d *Device, w Word) {
	if d.Address != w.Address() && w.Address() != BroadcastAddress {
		return
	}
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventCommandModeCode})
	if d.Fake {
		return
	}
	switch w.ModeCode() {
	case 4:
		d.ResetAllStateful()
		d.SetState(StateOff)
	case 17:
		d.mu.Lock()
		d.CCMD = true
		d.mu.Unlock()
		d.SetState(StateAwtData)
	case 30:
		n := d.ClearMemory()
		d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Kind: EventModeCodeClear, Detail: n})
		d.ResetAllStateful()
		d.SetState(StateIdle)
		d.ClearWriteQueue()
	case 31:
		d.SetState(StateIdle)
	}
}

func (h DefaultHandler) OnDat(d *Device, w Word) {
	if d.State() != StateAwtData {
		return
	}
	d.mu.Lock()
	ccmd := d.CCMD
	d.mu.Unlock()
	if ccmd {
		d.mu.Lock()
		d.CCMD = false
		d.mu.Unlock()
		d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventData})
		d.ResetAllStateful()
		d.SetState(StateIdle)
		return
	}
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventData})
	complete := d.AppendMemory(w)
	if complete {
		if d.Mode != ModeBC && !d.Fake {
			d.mu.Lock()
			sr, eb := d.ServiceRequest, d.ErrorBit
			d.mu.Unlock()
			d.Enqueue(NewStatusWord(d.Address, sr, eb))
		}
		h.OnMemoryReady(d)
		d.ResetAllStateful()
		d.SetState(StateIdle)
	}
}

// OnSts is only meaningful for the BC; a plain RT never awaits status, so
// the default drops it silently. BC handlers override this hook.
func (DefaultHandler) OnSts(d *Device, w Word) {}

func (DefaultHandler) OnBCReady(d *Device)   {}
func (DefaultHandler) OnBCTimeout(d *Device) {}
func (DefaultHandler) OnMemoryReady(d *Device) {}

// OnDataWrite supplies the payload for the i-th data word of a transmit
// response; the default handler sends a deterministic counting pattern the
// way the original source's placeholder sensor values do (i+1).
func (DefaultHandler) OnDataWrite(d *Device, index uint8) Word {
	return NewDataWord(uint16(index) + 1)
}

func (DefaultHandler) Verify(log []LogEntry) (bool, string) { return false, "no attack" }
func (DefaultHandler) GetAttkType() AttackType              { return AttackNone }

// BMHandler is the passive Bus Monitor: it logs every loaded word instead
// of dispatching it (spec.md §4.2 step 4).
type BMHandler struct{ DefaultHandler }

func (BMHandler) OnWordReceived(d *Device, w Word) {
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventWordReceived, Parity: w.ParityBit()})
}
