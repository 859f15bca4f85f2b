package bus

import (
	"time"

	"github.com/doismellburning/samoyed1553/internal/trace"
)

// SensorHandler is a device-specific OnDataWrite adapter: instead of the
// default counting pattern, a transmitting RT sources its payload from a
// sensor trace, splitting each named column's float32 reading into the
// low/high uint16 halves that fill successive data words (spec.md §6's
// trace-store collaborator; compare
// original_source/flight_data_recorder/src/main.rs). Columns advance one
// trace record per transmit, not per data word: index 0 pulls the next
// record, and the remaining indices in the same transmit read from it.
type SensorHandler struct {
	DefaultHandler

	Source  *trace.Source
	Columns []string

	cur trace.Record
}

// NewSensorHandler builds a SensorHandler projecting columns out of src.
func NewSensorHandler(src *trace.Source, columns []string) *SensorHandler {
	return &SensorHandler{Source: src, Columns: columns}
}

// OnCmd and OnCmdTrx are overridden (not just OnDataWrite): DefaultHandler's
// own OnCmd dispatches to a fresh DefaultHandler{} internally rather than
// back through the Handler interface, so embedding alone would never route
// a transmit command to this type's OnDataWrite. Attacker's OnCmd override
// follows the same shape for the same reason.
func (h *SensorHandler) OnCmd(d *Device, w Word) {
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
		switch {
		case w.TR() == Receive && (w.Mode() == 1 || w.Mode() == 0):
			h.OnCmdMcx(d, w)
		case w.TR() == Receive:
			h.OnCmdRcv(d, w)
		default:
			h.OnCmdTrx(d, w)
		}
	}
	if w.TR() == Transmit && w.SubAddress() == d.Address {
		h.OnCmdRcv(d, w)
	}
}

func (h *SensorHandler) OnCmdTrx(d *Device, w Word) {
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

func (h *SensorHandler) OnDataWrite(d *Device, index uint8) Word {
	if h.Source == nil || len(h.Columns) == 0 {
		return h.DefaultHandler.OnDataWrite(d, index)
	}
	if index == 0 {
		rec, ok := h.Source.Next()
		if !ok {
			h.Source.Reset()
			rec, ok = h.Source.Next()
			if !ok {
				return h.DefaultHandler.OnDataWrite(d, index)
			}
		}
		h.cur = rec
	}

	col := int(index) / 2
	if col >= len(h.Columns) {
		return h.DefaultHandler.OnDataWrite(d, index)
	}
	ci := h.Source.ColumnIndex(h.Columns[col])
	if ci < 0 || ci >= len(h.cur.Values) {
		return h.DefaultHandler.OnDataWrite(d, index)
	}

	low, high := trace.SplitFloat32(float32(h.cur.Values[ci]))
	if index%2 == 0 {
		return NewDataWord(low)
	}
	return NewDataWord(high)
}
