package bus

import "time"

// AttackSelection picks which attack family an Attacker runs and carries
// its target parameters, collapsing the source corpus's near-duplicate
// per-attack modules into one tagged enum plus shared helpers (spec.md §9).
type AttackSelection struct {
	Kind AttackType

	// N is the fake-data-word count for AttackCollisionVsBus.
	N int
	// Target is the addressed RT for every attack except MITM and
	// CollisionVsBus.
	Target uint8
	// Src/Dst are the real endpoints for AttackMITM.
	Src, Dst uint8
}

// corruptionTag is the fixed payload the data-corruption attack injects
// (spec.md §4.5).
const corruptionTag uint16 = 0x7171

// desyncDataWord is the single data word the desynchronisation attack
// injects alongside its forged Receive command.
const desyncDataWord uint16 = 0x000F

// Attacker is a single parameterised fake RT whose handler injects traffic
// according to Selection, replacing the source corpus's ten near-duplicate
// attack modules (spec.md §9's "Duplication across attack modules" note).
type Attacker struct {
	DefaultHandler

	Selection AttackSelection
	RapidFire bool
	WarmUp    time.Duration

	start time.Time

	fired       bool
	expectWords uint8
	wordsSeen   uint8
	waiting     bool
	trackingTR  TR

	mitmSrcSeen bool
	mitmDstSeen bool
	mitmSrc     uint8
	mitmDst     uint8
}

func NewAttacker(sel AttackSelection, rapidFire bool, warmUp time.Duration) *Attacker {
	return &Attacker{Selection: sel, RapidFire: rapidFire, WarmUp: warmUp}
}

func (a *Attacker) GetAttkType() AttackType { return a.Selection.Kind }

// Verify implements Handler by delegating to the attack-family-specific
// predicate in verifier.go.
func (a *Attacker) Verify(log []LogEntry) (bool, string) {
	r := Verify(a.Selection, log)
	return r.Succeeded, r.Detail
}

func (a *Attacker) armed(now time.Time) bool {
	if a.start.IsZero() {
		a.start = now
	}
	return now.Sub(a.start) >= a.WarmUp
}

func (a *Attacker) tag(w Word) Word { return w.SetAttk(uint8(a.Selection.Kind)) }

func (a *Attacker) logAttack(d *Device, label string) {
	d.Log.Append(LogEntry{Time: time.Now(), Mode: d.Mode, Address: d.Address, State: d.State(), Kind: EventAttack, Attack: label})
}

// injectCollision enqueues n forged data words, jamming the current
// medium slot the way a real collision would (spec.md §4.5 "Collision").
func (a *Attacker) injectCollision(d *Device, n int, label string) {
	for i := 0; i < n; i++ {
		d.Enqueue(a.tag(NewDataWord(0)))
	}
	a.logAttack(d, label)
}

func (a *Attacker) OnCmd(d *Device, w Word) {
	now := time.Now()
	armed := a.armed(now)

	switch a.Selection.Kind {
	case AttackCollisionVsBus:
		if a.RapidFire || !a.fired {
			a.injectCollision(d, a.Selection.N, "collision-vs-bus")
			a.fired = true
		}

	case AttackCollisionVsRT:
		if (a.RapidFire || !a.fired) && w.IsCommand() && w.Address() == a.Selection.Target {
			a.injectCollision(d, int(w.DwordCount()), "collision-vs-rt")
			a.fired = true
		}

	case AttackDataThrashing:
		if w.IsCommand() && w.TR() == Receive && w.Address() == a.Selection.Target {
			a.expectWords, a.wordsSeen, a.waiting = w.DwordCount(), 0, true
		}

	case AttackShutdown:
		if (a.RapidFire || !a.fired) && (w.Address() == a.Selection.Target) {
			// Broadcast address so the forged shutdown affects every RT,
			// not just the observed target (spec.md §4.5's "broadcast-mode
			// bit set").
			d.Enqueue(a.tag(NewModeCommandWord(BroadcastAddress, 4)))
			a.logAttack(d, "shutdown")
			a.fired = true
		}

	case AttackFakeStatusRecv:
		if armed && w.IsCommand() && w.TR() == Receive && w.Address() == a.Selection.Target {
			a.expectWords, a.wordsSeen, a.waiting = w.DwordCount(), 0, true
		}

	case AttackFakeStatusTrx:
		if (a.RapidFire || !a.fired) && w.IsCommand() && w.TR() == Transmit && w.Address() == a.Selection.Target {
			d.Enqueue(a.tag(NewMaliciousStatusWord(a.Selection.Target)))
			a.logAttack(d, "fake-status-trx")
			a.fired = true
		}

	case AttackDesync:
		if w.IsCommand() && w.Address() == a.Selection.Target {
			a.trackingTR, a.expectWords, a.wordsSeen, a.waiting = w.TR(), w.DwordCount(), 0, true
		}

	case AttackCorruption:
		if (a.RapidFire || !a.fired) && w.IsCommand() && w.TR() == Transmit && w.Address() == a.Selection.Target {
			d.Enqueue(a.tag(NewMaliciousStatusWord(a.Selection.Target)))
			for i := uint8(0); i < w.DwordCount(); i++ {
				d.Enqueue(a.tag(NewDataWord(corruptionTag)))
			}
			a.logAttack(d, "data-corruption")
			a.fired = true
		}

	case AttackInvalidation:
		if (a.RapidFire || !a.fired) && w.IsCommand() && w.TR() == Transmit && w.Address() == a.Selection.Target {
			d.Enqueue(a.tag(NewCommandWord(a.Selection.Target, 31, Receive)))
			a.logAttack(d, "command-invalidation")
			a.fired = true
		}

	case AttackMITM:
		if w.IsCommand() && w.TR() == Receive && !a.mitmDstSeen {
			a.mitmDst, a.mitmDstSeen = w.Address(), true
		}
		if w.IsCommand() && w.TR() == Transmit && !a.mitmSrcSeen {
			a.mitmSrc, a.mitmSrcSeen = w.Address(), true
		}
	}
}

func (a *Attacker) OnDat(d *Device, w Word) {
	if !a.waiting {
		return
	}
	a.wordsSeen++
	if a.wordsSeen < a.expectWords {
		return
	}
	switch a.Selection.Kind {
	case AttackDataThrashing:
		d.Enqueue(a.tag(NewModeCommandWord(a.Selection.Target, 30)))
		a.logAttack(d, "data-thrashing")
	case AttackFakeStatusRecv:
		d.Enqueue(a.tag(NewMaliciousStatusWord(a.Selection.Target)))
		a.logAttack(d, "fake-status-recv")
	case AttackDesync:
		forged := NewCommandWord(a.Selection.Target, 17, Receive)
		d.Enqueue(a.tag(forged))
		d.Enqueue(a.tag(NewDataWord(desyncDataWord)))
		a.logAttack(d, "desync")
	}
	a.waiting = false
	if a.RapidFire {
		a.wordsSeen = 0
	}
}

func (a *Attacker) OnSts(d *Device, w Word) {
	if a.Selection.Kind != AttackMITM {
		return
	}
	if !a.mitmSrcSeen || w.Address() != a.mitmSrc {
		return
	}
	// Sender's status observed: impersonate the BC towards the real
	// source with forged payload, then impersonate the sender towards
	// the real destination (spec.md §4.5 "MITM between RTs").
	d.Enqueue(a.tag(NewCommandWord(a.mitmSrc, 1, Receive)))
	d.Enqueue(a.tag(NewDataWord(0xffff)))
	d.Enqueue(a.tag(NewCommandWord(a.mitmDst, 1, Transmit)))
	a.logAttack(d, "mitm")
	if !a.RapidFire {
		a.mitmSrcSeen, a.mitmDstSeen = false, false
	}
}
