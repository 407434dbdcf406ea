// Package gateway implements the Universal Gateway of spec §4.I: a Medium
// listener that decodes uplinks against a set of registered regions,
// queues them FIFO for a consumer, and schedules downlinks back through a
// Transmitter.
package gateway

import (
	"context"
	"errors"
	"log"

	"github.com/agsys/lorasim/internal/inspect"
	"github.com/agsys/lorasim/internal/medium"
	"github.com/agsys/lorasim/internal/region"
	"github.com/agsys/lorasim/internal/scheduler"
)

// ErrChannelNotDefined reports an uplink whose freq/rps matches no
// registered region's upchannel table. It is logged and published to Hub,
// never returned or panicked (an unmatched uplink is a normal occurrence in
// a multi-region test fixture, not a fault).
var ErrChannelNotDefined = errors.New("gateway: channel not defined in any registered region")

// LoraWanMsg is a decoded uplink queued for a consumer, per spec §3: the
// raw on-air message plus the (region, channel, data-rate) triple the
// Gateway resolved it against. Decoded is a slot a consumer may fill with
// an LNS-level result (such as a *lorawancodec.JoinRequest or
// *lorawancodec.Dataframe); nothing in this module sets it, and the Gateway
// itself never looks inside the PDU.
type LoraWanMsg struct {
	Msg     *medium.LoraMsg
	Region  *region.Region
	Ch      int
	DR      int
	Decoded any
}

// Gateway is a medium.Listener that buffers uplinks and schedules
// downlinks. It is its own medium.Listener so it can recognize (and
// ignore) downlinks it scheduled itself via Src.
type Gateway struct {
	regions []*region.Region
	tx      *medium.Transmitter

	// Hub, if set, is published to with EventChannelNotDefined whenever an
	// uplink's freq/rps matches no registered region, per spec §4.I/§7 —
	// a Gateway has no consumer-facing channel of its own to return the
	// error on, since MsgComplete is a Medium callback, not a call a
	// caller can observe the result of.
	Hub *inspect.Hub

	up chan *LoraWanMsg
}

// New returns a Gateway listening on med across the given regions, with
// its own Transmitter for downlinks. Queue depth bounds how many
// un-consumed uplinks may buffer; once it is full, MsgComplete drops
// further uplinks instead of blocking. 256 matches
// the PDU-size-adjacent buffers used elsewhere in this module.
func New(sched *scheduler.Scheduler, med *medium.Medium, clk medium.ReceiverClock, regions ...*region.Region) *Gateway {
	g := &Gateway{
		regions: regions,
		tx:      medium.NewTransmitter(sched, med),
		up:      make(chan *LoraWanMsg, 256),
	}
	med.AddListener(g, clk.Ticks())
	return g
}

// MsgPreamble implements medium.Listener; the Gateway only acts once a
// frame is complete.
func (g *Gateway) MsgPreamble(m *medium.LoraMsg, t medium.Tick) {}

// MsgPayload implements medium.Listener.
func (g *Gateway) MsgPayload(m *medium.LoraMsg) {}

// MsgAbort implements medium.Listener; an aborted transmission never
// becomes an uplink.
func (g *Gateway) MsgAbort(m *medium.LoraMsg) {}

// MsgComplete implements medium.Listener: per spec §4.I, an uplink is a
// completed frame whose rps is not IQ-inverted and whose src is not this
// Gateway (its own scheduled downlinks loop back through the same Medium).
func (g *Gateway) MsgComplete(m *medium.LoraMsg) {
	if m.Src == g || m.Rps.IQInv() {
		return
	}

	reg, ch, dr, ok := g.match(m)
	if !ok {
		log.Printf("gateway: %v: freq=%d sf=%d bw=%d", ErrChannelNotDefined, m.Freq, m.Rps.Sf(), m.Rps.Bw())
		if g.Hub != nil {
			g.Hub.Publish(inspect.EventChannelNotDefined, map[string]any{
				"error": ErrChannelNotDefined.Error(),
				"freq":  m.Freq,
				"sf":    m.Rps.Sf(),
				"bw":    m.Rps.Bw(),
			})
		}
		return
	}

	if m.Rssi == 0 {
		m.Rssi = m.Xpow - 50
	}
	if m.Snr == 0 {
		m.Snr = 10
	}

	select {
	case g.up <- &LoraWanMsg{Msg: m, Region: reg, Ch: ch, DR: dr}:
	default:
		// Queue full: the consumer has fallen far behind. Dropping here
		// (rather than blocking the Medium's listener fanout, which would
		// stall every other device sharing it) matches the Transmitter's
		// own "best effort, no backpressure into the physical layer" model.
	}
}

func (g *Gateway) match(m *medium.LoraMsg) (*region.Region, int, int, bool) {
	for _, reg := range g.regions {
		if ch, dr, ok := reg.MatchUpChannel(m.Freq, m.Rps.Sf(), m.Rps.Bw()); ok {
			return reg, ch, dr, true
		}
	}
	return nil, 0, 0, false
}

// NextUp returns the next queued uplink in FIFO order, blocking until one
// arrives or ctx is cancelled.
func (g *Gateway) NextUp(ctx context.Context) (*LoraWanMsg, error) {
	select {
	case m := <-g.up:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SchedDn implements `sched_dn`: tags msg as originating from this Gateway
// (so its own MsgComplete ignores it) and hands it to the Transmitter.
func (g *Gateway) SchedDn(msg *medium.LoraMsg) error {
	msg.Src = g
	return g.tx.Transmit(msg)
}
