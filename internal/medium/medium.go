package medium

// Listener receives the three-phase lifecycle of every message broadcast on
// a Medium, per spec §4.C: preamble detected, full payload available,
// reception complete, and reception aborted (collision/corruption/cancel).
// MsgPreamble's t is the tick the listener should treat as "now" for that
// preamble: m.Xbeg for a live broadcast, or the listener's own
// subscription tick when AddListener replays an already-in-flight message
// to a late joiner, per spec §4.C's add_listener(l, t) and §4.E's
// msg_preamble(msg, t).
type Listener interface {
	MsgPreamble(m *LoraMsg, t Tick)
	MsgPayload(m *LoraMsg)
	MsgComplete(m *LoraMsg)
	MsgAbort(m *LoraMsg)
}

// Medium is the shared broadcast bus: every Transmitter posts phase
// transitions here, and every Receiver (registered as a Listener) observes
// all of them regardless of frequency or rps — channel/parameter matching
// is each Receiver's own responsibility, not the Medium's.
//
// A Listener that joins mid-transmission is replayed the preamble event for
// every message currently in flight, so it can decide whether to lock onto
// an already-started frame exactly as if it had been listening from the
// start.
type Medium struct {
	listeners map[Listener]struct{}
	inflight  map[*LoraMsg]struct{} // pmsg: messages whose preamble fired but not yet complete/aborted
}

// New returns an empty Medium.
func New() *Medium {
	return &Medium{
		listeners: make(map[Listener]struct{}),
		inflight:  make(map[*LoraMsg]struct{}),
	}
}

// AddListener registers l and immediately replays MsgPreamble, at tick t,
// for every message currently in flight. t is normally the caller's
// current tick: a message that began before l subscribed is replayed as
// observed "now", not at its original Xbeg.
func (med *Medium) AddListener(l Listener, t Tick) {
	med.listeners[l] = struct{}{}
	for m := range med.inflight {
		l.MsgPreamble(m, t)
	}
}

// RemoveListener deregisters l. A no-op if l was never registered.
func (med *Medium) RemoveListener(l Listener) {
	delete(med.listeners, l)
}

// Preamble announces the start of m's preamble phase to every listener and
// marks m in flight for replay to late joiners.
func (med *Medium) Preamble(m *LoraMsg) {
	med.inflight[m] = struct{}{}
	for l := range med.listeners {
		l.MsgPreamble(m, m.Xbeg)
	}
}

// Payload announces that m's full payload is now available (end of
// preamble phase).
func (med *Medium) Payload(m *LoraMsg) {
	for l := range med.listeners {
		l.MsgPayload(m)
	}
}

// Complete announces that m finished transmitting successfully and removes
// it from the in-flight set.
func (med *Medium) Complete(m *LoraMsg) {
	delete(med.inflight, m)
	for l := range med.listeners {
		l.MsgComplete(m)
	}
}

// Abort announces that m's transmission was aborted and removes it from the
// in-flight set.
func (med *Medium) Abort(m *LoraMsg) {
	delete(med.inflight, m)
	for l := range med.listeners {
		l.MsgAbort(m)
	}
}
