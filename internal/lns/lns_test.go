package lns

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agsys/lorasim/internal/lorawancodec"
	"github.com/agsys/lorasim/internal/region"
)

func testKey(b byte) lorawancodec.Key {
	var k lorawancodec.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func buildJreq(t *testing.T, nwkkey lorawancodec.Key, joineui, deveui [8]byte, devnonce uint16) []byte {
	t.Helper()
	body := make([]byte, 0, 19)
	body = append(body, 0x00) // MHDR join-request
	body = append(body, joineui[:]...)
	body = append(body, deveui[:]...)
	body = append(body, byte(devnonce), byte(devnonce>>8))
	mic := lorawancodec.CMAC4(nwkkey, body)
	return append(body, mic[:]...)
}

func TestJoinAcceptsFirstJoinAndRejectsNonIncreasingNonce(t *testing.T) {
	l := New([3]byte{1, 2, 3})
	nwkkey := testKey(0xAA)
	var joineui, deveui [8]byte
	deveui[0] = 0x42

	l.Provision(deveui, nwkkey)
	reg := region.NewEU868()

	pdu := buildJreq(t, nwkkey, joineui, deveui, 5)
	res, err := l.Join(pdu, reg, 1, 0, 0, reg.RX2Freq)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	require.Equal(t, deveui, res.Session.DevEUI)

	pdu2 := buildJreq(t, nwkkey, joineui, deveui, 5)
	_, err = l.Join(pdu2, reg, 1, 0, 0, reg.RX2Freq)
	require.ErrorIs(t, err, ErrDevNonceNotIncreasing)

	pdu3 := buildJreq(t, nwkkey, joineui, deveui, 6)
	res3, err := l.Join(pdu3, reg, 1, 0, 0, reg.RX2Freq)
	require.NoError(t, err)
	require.NotEqual(t, res.Session.DevAddr, res3.Session.DevAddr)
}

func TestJoinRejectsUnprovisionedDevice(t *testing.T) {
	l := New([3]byte{1, 2, 3})
	reg := region.NewEU868()
	var joineui, deveui [8]byte
	pdu := buildJreq(t, testKey(0x11), joineui, deveui, 1)

	_, err := l.Join(pdu, reg, 1, 0, 0, reg.RX2Freq)
	require.ErrorIs(t, err, ErrUnprovisionedDevice)
}

func TestJoinRejectsBadMIC(t *testing.T) {
	l := New([3]byte{1, 2, 3})
	nwkkey := testKey(0xAA)
	var joineui, deveui [8]byte
	l.Provision(deveui, nwkkey)
	reg := region.NewEU868()

	pdu := buildJreq(t, testKey(0xBB), joineui, deveui, 1)
	_, err := l.Join(pdu, reg, 1, 0, 0, reg.RX2Freq)
	require.ErrorIs(t, err, lorawancodec.ErrJoinMICMismatch)
}

func joinedSession(t *testing.T) (*LNS, *Session) {
	t.Helper()
	l := New([3]byte{1, 2, 3})
	nwkkey := testKey(0xAA)
	var joineui, deveui [8]byte
	deveui[0] = 7
	l.Provision(deveui, nwkkey)
	reg := region.NewEU868()
	pdu := buildJreq(t, nwkkey, joineui, deveui, 1)
	res, err := l.Join(pdu, reg, 1, 0, 0, reg.RX2Freq)
	require.NoError(t, err)
	return l, res.Session
}

func TestTryUnpackVerifiesAndAdvancesFCntUp(t *testing.T) {
	l, sess := joinedSession(t)
	pdu := lorawancodec.PackDataframe(false, sess.DevAddr, 3, sess.NwkSKey, sess.AppSKey, 1, []byte("hi"), false, false, false)

	got, df, err := l.TryUnpack(pdu, sess.DevAddr)
	require.NoError(t, err)
	require.Same(t, sess, got)
	require.EqualValues(t, 3, df.FCnt)
	require.EqualValues(t, 3, sess.FCntUp)
}

func TestTryUnpackRejectsUnknownDevAddr(t *testing.T) {
	l, _ := joinedSession(t)
	_, _, err := l.TryUnpack([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, 0xDEADBEEF)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestTryUnpackRejectsBadMIC(t *testing.T) {
	l, sess := joinedSession(t)
	pdu := lorawancodec.PackDataframe(false, sess.DevAddr, 1, sess.NwkSKey, sess.AppSKey, 1, []byte("hi"), false, false, true)

	_, _, err := l.TryUnpack(pdu, sess.DevAddr)
	require.ErrorIs(t, err, ErrMICMismatch)
}

func TestBuildDownlinkAdvancesFCntDn(t *testing.T) {
	l, sess := joinedSession(t)
	pdu := l.BuildDownlink(sess, 1, []byte("dl"), false, true, 0, false)
	require.EqualValues(t, 1, sess.FCntDn)

	df, err := lorawancodec.UnpackDataframe(pdu, sess.NwkSKey, sess.AppSKey)
	require.NoError(t, err)
	require.True(t, df.Ack)
	require.Equal(t, []byte("dl"), df.FRMPayload)
}

func TestReJoinReplacesSession(t *testing.T) {
	l, sess := joinedSession(t)
	oldAddr := sess.DevAddr

	var joineui [8]byte
	pdu := buildJreq(t, sess.NwkKey, joineui, sess.DevEUI, sess.DevNonce+1)
	res, err := l.Join(pdu, sess.Region, 1, 0, 0, sess.Region.RX2Freq)
	require.NoError(t, err)

	require.Empty(t, l.Sessions().ByAddr(oldAddr))
	require.Len(t, l.Sessions().ByAddr(res.Session.DevAddr), 1)
}
