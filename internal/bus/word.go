package bus

import "fmt"

// Word is the 25-bit framed quantum of bus traffic: 20 significant wire
// bits plus 4 bits of out-of-band attack provenance and a computed parity
// bit, packed into a uint32 the way the original packed-bitfield source
// does it. Bit layout (LSB-first):
//
//	0-2   sync
//	3-7   address
//	8     message-error (status) / TR (command)
//	9     instrumentation bit
//	10    service-request (status) / --
//	10-13 sub-address (command); its upper bits 11-13 are the mode field
//	11-13 reserved (status)
//	14    broadcast-received (status)
//	14-18 dword-count / mode-code (command)
//	15    busy (status)
//	16    subsystem-flag (status)
//	17    dynamic-bus-control-accept (status)
//	18    terminal-flag (status)
//	19    parity
//	3-18  16-bit data payload (sync=0)
//	21-24 attack tag
type Word uint32

const (
	BroadcastAddress uint8 = 31

	parityBit = 19
)

// TR is the transmit/receive direction bit on a command word.
type TR uint8

const (
	Receive TR = 0
	Transmit TR = 1
)

func (tr TR) String() string {
	if tr == Transmit {
		return "Transmit"
	}
	return "Receive"
}

func bits(w Word, hi, lo uint) uint32 {
	mask := uint32(1)<<(hi-lo+1) - 1
	return (uint32(w) >> lo) & mask
}

func setBits(w Word, hi, lo uint, v uint32) Word {
	mask := uint32(1)<<(hi-lo+1) - 1
	cleared := uint32(w) &^ (mask << lo)
	return Word(cleared | (v&mask)<<lo)
}

func (w Word) Sync() uint8              { return uint8(bits(w, 2, 0)) }
func (w Word) Address() uint8           { return uint8(bits(w, 7, 3)) }
func (w Word) MessageErrorBit() bool    { return bits(w, 8, 8) != 0 }
func (w Word) InstrumentationBit() bool { return bits(w, 9, 9) != 0 }
func (w Word) ServiceRequestBit() bool  { return bits(w, 10, 10) != 0 }
func (w Word) BroadcastReceivedBit() bool { return bits(w, 14, 14) != 0 }
func (w Word) BusyBit() bool            { return bits(w, 15, 15) != 0 }
func (w Word) SubsystemFlagBit() bool   { return bits(w, 16, 16) != 0 }
func (w Word) DynamicBusControlAcceptBit() bool { return bits(w, 17, 17) != 0 }
func (w Word) TerminalFlagBit() bool    { return bits(w, 18, 18) != 0 }
func (w Word) ParityBit() uint8         { return uint8(bits(w, parityBit, parityBit)) }

// TR returns the command word's transmit/receive direction bit.
func (w Word) TR() TR { return TR(bits(w, 8, 8)) }

// SubAddress is the command word's sub-address / RT-to-RT counter-party field.
func (w Word) SubAddress() uint8 { return uint8(bits(w, 13, 10)) }

// Mode is the command word's overloaded mode field (bits 13-11).
func (w Word) Mode() uint8 { return uint8(bits(w, 13, 11)) }

// DwordCount is the command word's data-word-count field.
func (w Word) DwordCount() uint8 { return uint8(bits(w, 18, 14)) }

// ModeCode is the command word's mode-code field (same bits as DwordCount,
// meaningful only when Mode() is 0 or 1).
func (w Word) ModeCode() uint8 { return uint8(bits(w, 18, 14)) }

// Data is the 16-bit payload of a data word (sync=0).
func (w Word) Data() uint16 { return uint16(bits(w, 18, 3)) }

// Attk is the out-of-band attack provenance tag. Legitimate receivers never
// branch on it; only Verifier code reads it.
func (w Word) Attk() uint8 { return uint8(bits(w, 24, 21)) }

func (w Word) SetSync(v uint8) Word              { return setBits(w, 2, 0, uint32(v)) }
func (w Word) SetAddress(v uint8) Word           { return setBits(w, 7, 3, uint32(v)) }
func (w Word) SetMessageErrorBit(v bool) Word    { return setBits(w, 8, 8, b2i(v)) }
func (w Word) SetInstrumentationBit(v bool) Word { return setBits(w, 9, 9, b2i(v)) }
func (w Word) SetServiceRequestBit(v bool) Word  { return setBits(w, 10, 10, b2i(v)) }
func (w Word) SetBroadcastReceivedBit(v bool) Word { return setBits(w, 14, 14, b2i(v)) }
func (w Word) SetBusyBit(v bool) Word            { return setBits(w, 15, 15, b2i(v)) }
func (w Word) SetSubsystemFlagBit(v bool) Word   { return setBits(w, 16, 16, b2i(v)) }
func (w Word) SetDynamicBusControlAcceptBit(v bool) Word { return setBits(w, 17, 17, b2i(v)) }
func (w Word) SetTerminalFlagBit(v bool) Word    { return setBits(w, 18, 18, b2i(v)) }
func (w Word) SetParityBit(v uint8) Word         { return setBits(w, parityBit, parityBit, uint32(v)) }
func (w Word) SetTR(v TR) Word                   { return setBits(w, 8, 8, uint32(v)) }
func (w Word) SetSubAddress(v uint8) Word        { return setBits(w, 13, 10, uint32(v)) }
func (w Word) SetMode(v uint8) Word              { return setBits(w, 13, 11, uint32(v)) }
func (w Word) SetDwordCount(v uint8) Word        { return setBits(w, 18, 14, uint32(v)) }
func (w Word) SetModeCode(v uint8) Word          { return setBits(w, 18, 14, uint32(v)) }
func (w Word) SetData(v uint16) Word             { return setBits(w, 18, 3, uint32(v)) }
func (w Word) SetAttk(v uint8) Word              { return setBits(w, 24, 21, uint32(v)) }

func b2i(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// CalculateParityBit returns w with the parity bit set so that bits 0..18
// (every field except the parity slot itself) together with the parity bit
// have an odd number of 1-bits.
func (w Word) CalculateParityBit() Word {
	const mask = uint32(1)<<parityBit - 1 // bits 0..18, excluding the parity slot itself
	ones := popcount(uint32(w) & mask)
	if ones%2 == 0 {
		return w.SetParityBit(1)
	}
	return w.SetParityBit(0)
}

func popcount(v uint32) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}

// IsCommand reports whether w is a command word (sync=1, instrumentation=1).
func (w Word) IsCommand() bool { return w.Sync() == 1 && w.InstrumentationBit() }

// IsStatus reports whether w is a status word (sync=1, instrumentation=0).
func (w Word) IsStatus() bool { return w.Sync() == 1 && !w.InstrumentationBit() }

// IsData reports whether w is a data word (sync=0).
func (w Word) IsData() bool { return w.Sync() == 0 }

// NewStatusWord builds a legitimate status word from an RT.
func NewStatusWord(addr uint8, serviceRequest, errorBit bool) Word {
	var w Word
	w = w.SetSync(1)
	w = w.SetAddress(addr)
	w = w.SetServiceRequestBit(serviceRequest)
	w = w.SetMessageErrorBit(errorBit)
	return w.CalculateParityBit()
}

// NewMaliciousStatusWord builds a forged status word carrying no
// legitimate flags, used by attacker handlers to impersonate addr.
func NewMaliciousStatusWord(addr uint8) Word {
	var w Word
	w = w.SetSync(1)
	w = w.SetAddress(addr)
	return w.CalculateParityBit()
}

// NewDataWord builds a data word carrying the low 16 bits of val.
func NewDataWord(val uint16) Word {
	var w Word
	w = w.SetData(val)
	return w.CalculateParityBit()
}

// NewCommandWord builds a command word addressing addr, transferring
// dwordCount words in direction tr.
func NewCommandWord(addr uint8, dwordCount uint8, tr TR) Word {
	var w Word
	w = w.SetSync(1)
	w = w.SetTR(tr)
	w = w.SetAddress(addr)
	w = w.SetDwordCount(dwordCount)
	w = w.SetMode(2)
	w = w.SetInstrumentationBit(true)
	return w.CalculateParityBit()
}

// NewModeCommandWord builds a mode-code command word (mode 0) addressing
// addr with the given mode code (4, 17, 30, or 31 are recognised).
func NewModeCommandWord(addr uint8, modeCode uint8) Word {
	var w Word
	w = w.SetSync(1)
	w = w.SetTR(Receive)
	w = w.SetAddress(addr)
	w = w.SetMode(0)
	w = w.SetModeCode(modeCode)
	w = w.SetInstrumentationBit(true)
	return w.CalculateParityBit()
}

func (w Word) String() string {
	return fmt.Sprintf("w:%#027b[%02d]", uint32(w), w.Attk())
}
