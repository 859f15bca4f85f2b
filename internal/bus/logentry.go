package bus

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// EventKind classifies a LogEntry, mirroring the original source's ErrMsg
// family (MsgBCReady, MsgEntCmd, MsgEntSteDrop, ...).
type EventKind int

const (
	EventEmpty EventKind = iota
	EventWriteQueued
	EventBCReady
	EventStateChanged
	EventWordReceived
	EventParityError
	EventCommand
	EventCommandReceive
	EventCommandTransmit
	EventCommandModeCode
	EventData
	EventStatus
	EventStatusDropped
	EventAttack
	EventModeCodeClear
	EventBCTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventEmpty:
		return ""
	case EventWriteQueued:
		return "Wrt"
	case EventBCReady:
		return "BC is ready"
	case EventStateChanged:
		return "Status Changed"
	case EventWordReceived:
		return "Word Received"
	case EventParityError:
		return "Parity Error"
	case EventCommand:
		return "CMD Received"
	case EventCommandReceive:
		return "CMD RCV Received"
	case EventCommandTransmit:
		return "CMD TRX Received"
	case EventCommandModeCode:
		return "CMD MCX Received"
	case EventData:
		return "Data Received"
	case EventStatus:
		return "Status Received"
	case EventStatusDropped:
		return "Status Dropped"
	case EventAttack:
		return "Attack"
	case EventModeCodeClear:
		return "MCX Clr"
	case EventBCTimeout:
		return "BC Timeout"
	default:
		return "?"
	}
}

// LogEntry is one tuple in a terminal's log: (timestamp, mode, address,
// state, word, event kind, average inter-word delta).
type LogEntry struct {
	Time       time.Time
	Mode       Mode
	Address    uint8
	State      State
	Word       Word
	Kind       EventKind
	Detail     int           // event-specific integer payload (write-queue length, memory length, ...)
	Attack     string        // free-form attack label, set by MsgAttk-equivalent entries
	AvgDeltaT  time.Duration
	Parity     uint8 // only meaningful for EventWordReceived entries from a BM
}

// Log is one terminal's append-only log, safe for concurrent append by its
// owning goroutine and read by the System after join.
type Log struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewLog() *Log { return &Log{} }

func (l *Log) Append(e LogEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Entries returns a copy of the accumulated entries. Safe to call only
// after the owning terminal goroutine has exited.
func (l *Log) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// MergeLogs concatenates and stable-sorts by timestamp, producing the
// System's merged log (spec.md §3's "Log entry" / §5 ordering guarantee).
func MergeLogs(logs ...*Log) []LogEntry {
	var all []LogEntry
	for _, l := range logs {
		all = append(all, l.Entries()...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all
}

// WriteSystemCSV writes the merged log in the column order spec.md §6
// describes: timestamp-ns, mode+id+address, state, word-bits, event kind,
// average delta-t.
func WriteSystemCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"timestamp_ns", "mode_address", "state", "word", "event", "avg_delta_t_ns"}); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{
			fmt.Sprintf("%d", e.Time.UnixNano()),
			fmt.Sprintf("%s%d", e.Mode, e.Address),
			e.State.String(),
			e.Word.String(),
			e.Kind.String(),
			fmt.Sprintf("%d", e.AvgDeltaT.Nanoseconds()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBusMonitorCSV writes the BM variant: one line per observed word with
// parity and attack tag appended, per spec.md §6.
func WriteBusMonitorCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"timestamp_ns", "address", "word", "parity", "attack_tag"}); err != nil {
		return err
	}
	for _, e := range entries {
		if e.Kind != EventWordReceived {
			continue
		}
		row := []string{
			fmt.Sprintf("%d", e.Time.UnixNano()),
			fmt.Sprintf("%d", e.Word.Address()),
			e.Word.String(),
			fmt.Sprintf("%d", e.Parity),
			fmt.Sprintf("%d", e.Word.Attk()),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
