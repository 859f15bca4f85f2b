package bus

// VerifyResult is the outcome of running a Verifier over a merged log.
type VerifyResult struct {
	Succeeded bool
	Detail    string
}

// attackWindow is one [start, end] slice of the merged log bounded by a
// MsgAttk-equivalent entry and the following MsgBCReady-equivalent entry,
// both included, per spec.md §4.6.
type attackWindow struct {
	entries []LogEntry
}

// windowsFor scans the merged log in timestamp order and returns every
// attack window: it opens on each EventAttack entry and closes on the next
// EventBCReady entry, matching spec.md §4.6's definition exactly (the BC
// logs EventBCReady every time it becomes ready, scheduler.go:OnBCReady). A
// window still closes early if a second EventAttack arrives before the next
// EventBCReady (so a run of back-to-back attacks doesn't merge into one
// window), and an unclosed trailing window is flushed at the end of the log.
func windowsFor(log []LogEntry) []attackWindow {
	var windows []attackWindow
	var cur *attackWindow
	for _, e := range log {
		if e.Kind == EventAttack {
			if cur != nil {
				windows = append(windows, *cur)
			}
			cur = &attackWindow{}
		}
		if cur != nil {
			cur.entries = append(cur.entries, e)
		}
		if e.Kind == EventBCReady && cur != nil {
			windows = append(windows, *cur)
			cur = nil
		}
	}
	if cur != nil {
		windows = append(windows, *cur)
	}
	return windows
}

// Verify dispatches to the attack-family-specific predicate for sel.Kind,
// scanning the merged system log (spec.md §4.6; Open Question iii standardises
// on logs rather than device fields).
func Verify(sel AttackSelection, log []LogEntry) VerifyResult {
	switch sel.Kind {
	case AttackCollisionVsBus, AttackCollisionVsRT:
		return verifyCollision(log)
	case AttackDataThrashing:
		return verifyModeCodeClear(log, sel.Target)
	case AttackMITM:
		return verifyMITM(log, sel.Dst)
	case AttackShutdown:
		return verifyShutdown(log)
	case AttackFakeStatusRecv:
		return verifyFakeStatusAccepted(log)
	case AttackFakeStatusTrx:
		return verifyFakeStatusNotDropped(log)
	case AttackDesync:
		return verifyDesync(log, sel.Target)
	case AttackCorruption:
		return verifyCorruption(log, sel.Target)
	case AttackInvalidation:
		return verifyInvalidation(log)
	default:
		return VerifyResult{Succeeded: false, Detail: "no attack selected"}
	}
}

func verifyCollision(log []LogEntry) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventParityError {
				return VerifyResult{true, "parity error observed inside attack window"}
			}
		}
	}
	return VerifyResult{false, "no parity error observed"}
}

func verifyModeCodeClear(log []LogEntry, target uint8) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventModeCodeClear && e.Address == target {
				return VerifyResult{true, "target cleared its cache"}
			}
		}
	}
	return VerifyResult{false, "target never cleared its cache"}
}

func verifyMITM(log []LogEntry, realDst uint8) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventStatus && e.Address == realDst {
				return VerifyResult{true, "destination's status observed after injection"}
			}
		}
	}
	return VerifyResult{false, "destination never produced a status word"}
}

func verifyShutdown(log []LogEntry) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventStateChanged && e.State == StateOff {
				return VerifyResult{true, "a terminal reached Off"}
			}
		}
	}
	return VerifyResult{false, "no terminal reached Off"}
}

func verifyFakeStatusAccepted(log []LogEntry) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventStatus {
				return VerifyResult{true, "forged status accepted by the BC"}
			}
		}
	}
	return VerifyResult{false, "forged status never accepted"}
}

func verifyFakeStatusNotDropped(log []LogEntry) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventStatusDropped {
				return VerifyResult{false, "status dropped inside attack window"}
			}
		}
	}
	return VerifyResult{true, "no status dropped in attack window"}
}

func verifyDesync(log []LogEntry, target uint8) VerifyResult {
	for _, w := range windowsFor(log) {
		for _, e := range w.entries {
			if e.Kind == EventCommandReceive && e.Address == target && e.Word.DwordCount() == 17 {
				return VerifyResult{true, "target accepted desynchronising receive command"}
			}
		}
	}
	return VerifyResult{false, "target never accepted the desync command"}
}

// verifyCorruption requires a BCReady-bounded window containing exactly the
// attacked transmit command's dword_count corruption-tagged data words
// (spec.md §8 scenario 5), not merely "at least one".
func verifyCorruption(log []LogEntry, target uint8) VerifyResult {
	for _, w := range windowsFor(log) {
		var expected uint8
		haveExpected := false
		count := 0
		for _, e := range w.entries {
			if e.Kind == EventCommandTransmit && e.Address == target {
				expected = e.Word.DwordCount()
				haveExpected = true
			}
			if e.Kind == EventData && e.Word.Attk() == uint8(AttackCorruption) && e.Word.Data() == corruptionTag {
				count++
			}
		}
		if haveExpected && count == int(expected) && count > 0 {
			return VerifyResult{true, "window contained exactly dword_count corrupted words"}
		}
	}
	return VerifyResult{false, "no window contained exactly dword_count corrupted words"}
}

func verifyInvalidation(log []LogEntry) VerifyResult {
	for _, e := range log {
		if e.Kind == EventBCTimeout {
			return VerifyResult{true, "BC timeout counter advanced"}
		}
	}
	return VerifyResult{false, "BC timeout counter never advanced"}
}
