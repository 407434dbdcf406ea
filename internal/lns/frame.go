package lns

import "github.com/agsys/lorasim/internal/lorawancodec"

// TryUnpack implements spec §4.J's uplink verify: tries each session
// registered under devaddr and returns the first whose MIC verifies,
// updating that session's FCntUp to the frame's FCnt. Returns
// ErrNoSession if devaddr has no sessions at all, or ErrMICMismatch if
// every candidate's MIC check failed.
func (l *LNS) TryUnpack(pdu []byte, devaddr uint32) (*Session, *lorawancodec.Dataframe, error) {
	candidates := l.sm.ByAddr(devaddr)
	if len(candidates) == 0 {
		return nil, nil, ErrNoSession
	}
	for _, s := range candidates {
		df, err := lorawancodec.UnpackDataframe(pdu, s.NwkSKey, s.AppSKey)
		if err != nil {
			continue
		}
		s.FCntUp = df.FCnt
		return s, df, nil
	}
	return nil, nil, ErrMICMismatch
}

// BuildDownlink implements spec §4.J's `dl`: packs a data frame with s's
// (devaddr, fcntdn+adj, nwkskey, appskey), and — if adj >= 0 — advances
// fcntdn by 1+adj. adj < 0 builds a frame without moving fcntdn forward
// (used by tests that need to construct an out-of-sequence or replayed
// frame deliberately).
func (l *LNS) BuildDownlink(s *Session, fport int, payload []byte, confirmed bool, ack bool, adj int, invalidmic bool) []byte {
	fcnt := uint16(int(s.FCntDn) + adj)
	pdu := lorawancodec.PackDataframe(true, s.DevAddr, fcnt, s.NwkSKey, s.AppSKey, fport, payload, confirmed, ack, invalidmic)
	if adj >= 0 {
		s.FCntDn += uint16(1 + adj)
	}
	return pdu
}
