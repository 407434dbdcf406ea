package lns

import (
	"errors"

	"github.com/agsys/lorasim/internal/lorawancodec"
	"github.com/agsys/lorasim/internal/region"
)

// ErrUnprovisionedDevice is returned by Join when no NwkKey has been
// provisioned for the Join-Request's DevEUI.
var ErrUnprovisionedDevice = errors.New("lns: no nwkkey provisioned for devEUI")

// Standard LoRaWAN Join-Accept delays: RX1 opens JaccRxDelay1 seconds after
// the Join-Request's xend, RX2 one second later.
const (
	JaccRxDelay1 = 5.0
	JaccRxDelay2 = 6.0
)

// LNS is the LoRaWAN Network Server of spec §4.J: join handling atop a
// SessionManager, keyed by a provisioned DevEUI->NwkKey table (a real LNS
// learns this from a join-server backend; here it's populated directly by
// the test harness or config before any device joins).
type LNS struct {
	sm       *SessionManager
	nwkKeys  map[[8]byte]lorawancodec.Key
	netID    [3]byte
	nextAddr uint32
	nonceCtr uint32
}

// New returns an LNS with an empty SessionManager, under the given 3-byte
// NetID (used verbatim in every Join-Accept it builds).
func New(netID [3]byte) *LNS {
	return &LNS{
		sm:      NewSessionManager(),
		nwkKeys: make(map[[8]byte]lorawancodec.Key),
		netID:   netID,
	}
}

// Sessions returns the LNS's SessionManager, for callers that need to
// inspect or tear down sessions directly.
func (l *LNS) Sessions() *SessionManager { return l.sm }

// Provision registers deveui's root key, making it eligible to join.
func (l *LNS) Provision(deveui [8]byte, nwkkey lorawancodec.Key) {
	l.nwkKeys[deveui] = nwkkey
}

// JoinResult is the outcome of a successful Join.
type JoinResult struct {
	PDU     []byte
	Session *Session
}

// Join implements spec §4.J's Join steps 1-4: verify the Join-Request's
// MIC, enforce DevNonce monotonicity, derive session keys, allocate a
// DevAddr, build the Join-Accept PDU, and register the new session
// (replacing any prior session for the same DevEUI). Step 5 — scheduling
// the downlink at the right RX1/RX2 time — is the caller's job; see
// JoinAcceptDnParams.
func (l *LNS) Join(pdu []byte, reg *region.Region, rxdelay byte, rx1droff int, rx2dr int, rx2freq uint32) (*JoinResult, error) {
	if len(pdu) < 17 {
		return nil, lorawancodec.ErrFrameTooShort
	}
	var deveui [8]byte
	copy(deveui[:], pdu[9:17])

	nwkkey, ok := l.nwkKeys[deveui]
	if !ok {
		return nil, ErrUnprovisionedDevice
	}

	jr, err := lorawancodec.VerifyJreq(pdu, nwkkey)
	if err != nil {
		return nil, err
	}

	if prev, ok := l.sm.PreviousDevNonce(jr.DevEUI); ok && jr.DevNonce <= prev {
		return nil, ErrDevNonceNotIncreasing
	}

	var appnonce [3]byte
	l.nonceCtr++
	appnonce[0] = byte(l.nonceCtr)
	appnonce[1] = byte(l.nonceCtr >> 8)
	appnonce[2] = byte(l.nonceCtr >> 16)

	nwkskey := lorawancodec.DeriveKey(nwkkey, jr.DevNonce, appnonce, l.netID, lorawancodec.KindNwkSKey)
	appskey := lorawancodec.DeriveKey(nwkkey, jr.DevNonce, appnonce, l.netID, lorawancodec.KindAppSKey)

	l.nextAddr++
	devaddr := l.nextAddr

	dlset := lorawancodec.DLSettings{RX1DROffset: rx1droff, RX2DataRate: rx2dr}
	cflist := reg.GetCFList()
	out := lorawancodec.PackJacc(nwkkey, appnonce, l.netID, devaddr, dlset, rxdelay, cflist)

	rx1delay := rxdelay
	if rx1delay < 1 {
		rx1delay = 1
	}

	sess := &Session{
		DevEUI:   jr.DevEUI,
		DevAddr:  devaddr,
		NwkKey:   nwkkey,
		NwkSKey:  nwkskey,
		AppSKey:  appskey,
		RX1Delay: rx1delay,
		RX1DROff: rx1droff,
		RX2DR:    rx2dr,
		RX2Freq:  rx2freq,
		DevNonce: jr.DevNonce,
		Region:   reg,
	}
	l.sm.Add(sess)

	return &JoinResult{PDU: out, Session: sess}, nil
}

// JoinAcceptDnParams computes the RX1/RX2 frequency and data rate for a
// Join-Accept downlink using the region's defaults (RX1DROffset=0), per
// spec §4.I's "during Join-Accept... by the region's defaults" rule.
func JoinAcceptDnParams(reg *region.Region, ch int, updr int, useRX2 bool) (freq uint32, dr int) {
	if useRX2 {
		return reg.RX2Freq, reg.RX2DR
	}
	return reg.GetDnFreq(ch), reg.GetDnDR(updr, 0)
}
