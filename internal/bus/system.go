package bus

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// terminal bundles a Device with the Handler driving it and the inbox it
// reads from; it is the unit the System spawns one goroutine per.
type terminal struct {
	device  *Device
	handler Handler
	inbox   <-chan received
}

// System owns every terminal, the shared Medium, the atomic start/stop
// signals, and the post-join merged log (spec.md §3, §5).
type System struct {
	logger *log.Logger

	medium *Medium

	terminals []*terminal

	running atomic.Bool
	exit    atomic.Bool
	wg      sync.WaitGroup

	SessionDir string
}

// NewSystem constructs a System whose Medium spans the given addresses.
// logger may be nil, in which case a discarding logger is used.
func NewSystem(addresses []uint8, logger *log.Logger, sessionDir string) *System {
	if logger == nil {
		logger = log.New(nil)
		logger.SetLevel(log.FatalLevel + 1)
	}
	return &System{
		logger:     logger,
		medium:     NewMedium(addresses),
		SessionDir: sessionDir,
	}
}

// AddTerminal registers a Device/Handler pair. Must be called before Start.
func (s *System) AddTerminal(d *Device, h Handler) {
	s.terminals = append(s.terminals, &terminal{
		device:  d,
		handler: h,
		inbox:   s.medium.Inbox(d.Address),
	})
}

// Start spawns one goroutine per registered terminal.
func (s *System) Start() {
	s.running.Store(true)
	for _, t := range s.terminals {
		s.wg.Add(1)
		go s.runTerminal(t)
	}
	s.logger.Info("system started", "terminals", len(s.terminals))
}

// Stop flips the exit flag and blocks until every terminal goroutine has
// drained its log and returned.
func (s *System) Stop() {
	s.exit.Store(true)
	s.wg.Wait()
	s.logger.Info("system stopped")
}

// MergedLog returns the sorted union of every terminal's log, safe to call
// only after Stop has returned.
func (s *System) MergedLog() []LogEntry {
	logs := make([]*Log, 0, len(s.terminals))
	for _, t := range s.terminals {
		logs = append(logs, t.device.Log)
	}
	return MergeLogs(logs...)
}

// Devices exposes the registered devices for scenario wiring/inspection
// after Stop.
func (s *System) Devices() []*Device {
	out := make([]*Device, 0, len(s.terminals))
	for _, t := range s.terminals {
		out = append(out, t.device)
	}
	return out
}

const (
	shortRecvWait = 2 * time.Millisecond
	bcIdlePoll    = 1 * time.Millisecond
)

// stage is the single-slot collision-detection register described in
// spec.md §4.2 step 4: a terminal holds at most one "loading" word at a
// time, timestamped at arrival.
type stage struct {
	at    time.Time
	word  Word
	valid bool
}

// runTerminal is the per-terminal cycle of spec.md §4.2, run on its own
// goroutine with exclusive ownership of t.device until exit.
func (s *System) runTerminal(t *terminal) {
	defer s.wg.Done()
	d := t.device
	h := t.handler

	var st stage

	for !s.exit.Load() {
		now := time.Now()

		if d.Mode == ModeBC {
			if d.State() == StateIdle {
				h.OnBCReady(d)
			}
			if !d.Timeout.IsZero() && now.After(d.Timeout) {
				h.OnBCTimeout(d)
			}
		}

		if d.State() != StateOff {
			if w, ok := d.PopReady(now); ok {
				s.medium.Broadcast(d.Address, w)
				d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Word: w, Kind: EventWriteQueued})
			}
		}

		// Age out a staged word that nothing new has collided with.
		if st.valid && time.Since(st.at) >= WordLoadTime {
			s.dispatch(t, st.word)
			st.valid = false
		}

		if d.State() == StateOff {
			// Off terminals ignore the medium entirely (spec.md §3 invariant).
			time.Sleep(bcIdlePoll)
			continue
		}

		select {
		case r, ok := <-t.inbox:
			if !ok {
				continue
			}
			if st.valid && r.at.Sub(st.at) < WordLoadTime {
				h.OnErrParity(d, st.word)
				h.OnErrParity(d, r.word)
				st.valid = false
			} else {
				if st.valid {
					s.dispatch(t, st.word)
				}
				st = stage{at: r.at, word: r.word, valid: true}
			}
		case <-time.After(shortRecvWait):
		}
	}

	// Flush on shutdown: nothing left to append, but make sure any staged
	// word still gets attributed before this goroutine's log is merged.
	if st.valid {
		s.dispatch(t, st.word)
	}
}

// dispatch delivers a "loaded" word (aged past WordLoadTime without
// colliding) to the appropriate handler hook.
func (s *System) dispatch(t *terminal, w Word) {
	d := t.device
	h := t.handler
	if d.Mode == ModeBM {
		h.OnWordReceived(d, w)
		return
	}
	switch {
	case w.IsCommand():
		h.OnCmd(d, w)
	case w.IsStatus():
		h.OnSts(d, w)
	default:
		h.OnDat(d, w)
	}
}

// SortEntries stable-sorts in place by timestamp; exposed for callers that
// build a []LogEntry outside of MergeLogs.
func SortEntries(entries []LogEntry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Time.Before(entries[j].Time) })
}
