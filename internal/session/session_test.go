package session

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/fixengine/internal/codec"
	"github.com/Aidin1998/fixengine/internal/dict"
)

var t0 = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

// peer builds frames as the counterparty would send them.
type peer struct {
	t  *testing.T
	dc *dict.Dictionary
}

func newPeer(t *testing.T, v dict.Version) *peer {
	return &peer{t: t, dc: dict.Session(v)}
}

func (p *peer) frame(msgType string, seq uint64, fill func(m *codec.Message)) []byte {
	p.t.Helper()
	m, err := codec.New(p.dc, msgType)
	require.NoError(p.t, err)
	require.NoError(p.t, m.SetString(dict.TagSenderCompID, "ACCEPT"))
	require.NoError(p.t, m.SetString(dict.TagTargetCompID, "INIT"))
	require.NoError(p.t, m.SetSeqNum(dict.TagMsgSeqNum, seq))
	require.NoError(p.t, m.SetTime(dict.TagSendingTime, t0))
	if fill != nil {
		fill(m)
	}
	out, err := codec.Encode(nil, m)
	require.NoError(p.t, err)
	return out
}

func (p *peer) order(seq uint64, clOrdID string) []byte {
	return p.frame(dict.MsgTypeNewOrderSingle, seq, func(m *codec.Message) {
		require.NoError(p.t, m.SetString(11, clOrdID))
		require.NoError(p.t, m.SetString(55, "EUR/USD"))
		require.NoError(p.t, m.SetChar(54, '1'))
		require.NoError(p.t, m.SetTime(60, t0))
		require.NoError(p.t, m.SetFloat(38, decimal.NewFromInt(100)))
		require.NoError(p.t, m.SetChar(40, '1'))
	})
}

// rawFrame assembles a wire image around body, computing BodyLength and
// CheckSum, with '|' standing in for SOH.
func rawFrame(beginString, body string) []byte {
	b := strings.ReplaceAll(body, "|", "\x01")
	if !strings.HasSuffix(b, "\x01") {
		b += "\x01"
	}
	full := fmt.Sprintf("8=%s\x019=%d\x01%s", beginString, len(b), b)
	var sum byte
	for i := 0; i < len(full); i++ {
		sum += full[i]
	}
	return []byte(fmt.Sprintf("%s10=%03d\x01", full, sum))
}

func newTestSession(t *testing.T, v dict.Version, store SeqNumStore) *Session {
	t.Helper()
	s, err := New(Config{
		Version:      v,
		SenderCompID: "INIT",
		TargetCompID: "ACCEPT",
		HeartBtInt:   30 * time.Second,
	}, zaptest.NewLogger(t), store)
	require.NoError(t, err)
	return s
}

// decodeFrames parses this side's outbound frames back into messages.
func decodeFrames(t *testing.T, v dict.Version, frames [][]byte) []*codec.Message {
	t.Helper()
	dec := codec.NewDecoder(v)
	var msgs []*codec.Message
	for _, f := range frames {
		m, n, err := dec.Decode(f)
		require.NoError(t, err)
		require.Equal(t, len(f), n)
		msgs = append(msgs, m)
	}
	return msgs
}

// establish runs the logon handshake and drains the startup traffic.
func establish(t *testing.T, s *Session, p *peer) {
	t.Helper()
	require.NoError(t, s.Connect(t0))
	require.Equal(t, StateLogonSent, s.State())
	s.Receive(t0, p.frame(dict.MsgTypeLogon, 1, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
	}))
	require.Equal(t, StateActive, s.State())
	s.Outbound()
	s.Events()
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestLogonHandshake(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	outBefore := s.NextOutboundSeqNum()

	require.NoError(t, s.Connect(t0))
	frames := s.Outbound()
	require.Len(t, frames, 1)
	assert.Contains(t, string(frames[0]), "8=FIX.4.2\x01")

	logon := decodeFrames(t, dict.FIX42, frames)[0]
	assert.Equal(t, dict.MsgTypeLogon, logon.MsgType())
	hb, _ := logon.Int(dict.TagHeartBtInt)
	assert.Equal(t, int64(30), hb)
	seq, _ := logon.SeqNum(dict.TagMsgSeqNum)
	assert.Equal(t, outBefore, seq)
	assert.Equal(t, StateLogonSent, s.State())

	s.Receive(t0, p.frame(dict.MsgTypeLogon, 1, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
	}))
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, []EventKind{EventActive}, kinds(s.Events()))
	assert.Equal(t, outBefore+1, s.NextOutboundSeqNum())
	assert.Equal(t, uint64(2), s.NextInboundSeqNum())
}

func TestLogonOverFIXTCarriesDefaultApplVerID(t *testing.T) {
	s := newTestSession(t, dict.FIX50SP2, nil)
	require.NoError(t, s.Connect(t0))
	frames := s.Outbound()
	require.Len(t, frames, 1)
	assert.Contains(t, string(frames[0]), "8=FIXT.1.1\x01")
	logon := decodeFrames(t, dict.FIX50SP2, frames)[0]
	dav, ok := logon.String(dict.TagDefaultApplVerID)
	require.True(t, ok)
	assert.Equal(t, "9", dav)
}

func TestLogonTimeout(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	require.NoError(t, s.Connect(t0))
	assert.Equal(t, t0.Add(10*time.Second), s.NextDeadline())
	s.Tick(t0.Add(9 * time.Second))
	assert.Equal(t, StateLogonSent, s.State())
	s.Tick(t0.Add(10 * time.Second))
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, []EventKind{EventFailed}, kinds(s.Events()))
}

func TestGapTriggersSingleBoundedResendRequest(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p) // consumes inbound seq 1

	s.Receive(t0, p.order(2, "A"))
	assert.Equal(t, []EventKind{EventMessage}, kinds(s.Events()))
	assert.Equal(t, uint64(3), s.NextInboundSeqNum())

	// Seq 4 arrives while 3 is expected: exactly one ResendRequest for [3,3].
	s.Receive(t0, p.order(4, "C"))
	assert.Equal(t, StateResendPending, s.State())
	assert.Empty(t, s.Events(), "message 4 must be buffered, not delivered")
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	rr := frames[0]
	assert.Equal(t, dict.MsgTypeResendRequest, rr.MsgType())
	from, _ := rr.SeqNum(dict.TagBeginSeqNo)
	to, _ := rr.SeqNum(dict.TagEndSeqNo)
	assert.Equal(t, uint64(3), from)
	assert.Equal(t, uint64(3), to)

	// The missing original arrives: 3 and then the buffered 4 are delivered
	// in order and the counter lands on 5.
	s.Receive(t0, p.order(3, "B"))
	events := s.Events()
	require.Equal(t, []EventKind{EventMessage, EventMessage}, kinds(events))
	id0, _ := events[0].Msg.String(11)
	id1, _ := events[1].Msg.String(11)
	assert.Equal(t, "B", id0)
	assert.Equal(t, "C", id1)
	assert.Equal(t, uint64(5), s.NextInboundSeqNum())
	assert.Equal(t, StateActive, s.State())
	assert.Empty(t, s.Outbound(), "no further ResendRequests")
}

func TestResendLoopBound(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// Each message opens a wider gap than the last. After exhausting the
	// attempt budget the session fails instead of looping forever.
	rrCount := 0
	for i := 0; i < 6; i++ {
		s.Receive(t0, p.order(uint64(4+2*i), fmt.Sprintf("G%d", i)))
		for _, m := range decodeFrames(t, dict.FIX42, s.Outbound()) {
			if m.MsgType() == dict.MsgTypeResendRequest {
				rrCount++
			}
		}
		if s.State() == StateFailed {
			break
		}
	}
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, 5, rrCount)
	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
	assert.Contains(t, events[len(events)-1].Reason, "unrecoverable")
}

func TestGapFillResolvesResend(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.order(5, "E"))
	assert.Equal(t, StateResendPending, s.State())
	s.Outbound()

	// The peer declines to resend 2-4 and gap-fills to 5.
	s.Receive(t0, p.frame(dict.MsgTypeSequenceReset, 2, func(m *codec.Message) {
		require.NoError(t, m.SetBool(dict.TagGapFillFlag, true))
		require.NoError(t, m.SetSeqNum(dict.TagNewSeqNo, 5))
	}))
	events := s.Events()
	require.Equal(t, []EventKind{EventMessage}, kinds(events))
	id, _ := events[0].Msg.String(11)
	assert.Equal(t, "E", id)
	assert.Equal(t, uint64(6), s.NextInboundSeqNum())
	assert.Equal(t, StateActive, s.State())
}

func TestHardSequenceResetIgnoresOwnSeqNum(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// MsgSeqNum 999 would normally be a gap; a reset without GapFill is
	// honored anyway.
	s.Receive(t0, p.frame(dict.MsgTypeSequenceReset, 999, func(m *codec.Message) {
		require.NoError(t, m.SetSeqNum(dict.TagNewSeqNo, 50))
	}))
	assert.Equal(t, uint64(50), s.NextInboundSeqNum())
	assert.Equal(t, StateActive, s.State())
	assert.Empty(t, s.Outbound())
}

func TestSequenceResetLoweringIsRejected(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeSequenceReset, 2, func(m *codec.Message) {
		require.NoError(t, m.SetSeqNum(dict.TagNewSeqNo, 1))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeReject, frames[0].MsgType())
	text, _ := frames[0].String(dict.TagText)
	assert.Contains(t, text, "lower sequence number")
	assert.Equal(t, uint64(2), s.NextInboundSeqNum())
}

func TestPossDupReplayIsInformational(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)
	s.Receive(t0, p.order(2, "A"))
	s.Events()
	inBefore, outBefore := s.NextInboundSeqNum(), s.NextOutboundSeqNum()

	s.Receive(t0, p.frame(dict.MsgTypeNewOrderSingle, 2, func(m *codec.Message) {
		require.NoError(t, m.SetString(11, "A"))
		require.NoError(t, m.SetString(55, "EUR/USD"))
		require.NoError(t, m.SetChar(54, '1'))
		require.NoError(t, m.SetTime(60, t0))
		require.NoError(t, m.SetFloat(38, decimal.NewFromInt(100)))
		require.NoError(t, m.SetChar(40, '1'))
		require.NoError(t, m.SetBool(dict.TagPossDupFlag, true))
		require.NoError(t, m.SetTime(dict.TagOrigSendingTime, t0.Add(-time.Minute)))
	}))
	events := s.Events()
	require.Equal(t, []EventKind{EventDuplicate}, kinds(events))
	assert.Equal(t, inBefore, s.NextInboundSeqNum(), "duplicates do not advance the counter")
	assert.Equal(t, outBefore, s.NextOutboundSeqNum())
	assert.Equal(t, StateActive, s.State())
}

func TestSeqNumBackwardWithoutPossDupIsFatal(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)
	s.Receive(t0, p.order(2, "A"))
	s.Events()

	s.Receive(t0, p.order(2, "A"))
	assert.Equal(t, StateFailed, s.State())
	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventFailed, events[len(events)-1].Kind)
}

func TestPossDupSendingTimeAccuracy(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// OrigSendingTime after SendingTime on a PossDup replay draws a Reject.
	s.Receive(t0, p.frame(dict.MsgTypeHeartbeat, 2, func(m *codec.Message) {
		require.NoError(t, m.SetBool(dict.TagPossDupFlag, true))
		require.NoError(t, m.SetTime(dict.TagOrigSendingTime, t0.Add(time.Hour)))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeReject, frames[0].MsgType())
	reason, _ := frames[0].Int(dict.TagSessionRejectReason)
	assert.Equal(t, int64(codec.RejectSendingTimeAccuracy), reason)
	assert.Equal(t, uint64(3), s.NextInboundSeqNum())
}

func TestTestRequestDrawsHeartbeatEcho(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeTestRequest, 2, func(m *codec.Message) {
		require.NoError(t, m.SetString(dict.TagTestReqID, "ping-1"))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeHeartbeat, frames[0].MsgType())
	id, _ := frames[0].String(dict.TagTestReqID)
	assert.Equal(t, "ping-1", id)
}

func TestHeartbeatLiveness(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// Outbound idle: a Heartbeat goes out at the interval.
	s.Tick(t0.Add(30 * time.Second))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeHeartbeat, frames[0].MsgType())

	// Inbound silence past the interval: exactly one TestRequest.
	s.Tick(t0.Add(31 * time.Second))
	s.Tick(t0.Add(32 * time.Second))
	var testReqs []*codec.Message
	for _, m := range decodeFrames(t, dict.FIX42, s.Outbound()) {
		if m.MsgType() == dict.MsgTypeTestRequest {
			testReqs = append(testReqs, m)
		}
	}
	require.Len(t, testReqs, 1)
	assert.Equal(t, StateActive, s.State())

	// Still silent after the grace period: Logout, then Disconnected.
	s.Tick(t0.Add(62 * time.Second))
	assert.Equal(t, StateLogoutSent, s.State())
	var sawLogout bool
	for _, m := range decodeFrames(t, dict.FIX42, s.Outbound()) {
		if m.MsgType() == dict.MsgTypeLogout {
			sawLogout = true
			text, _ := m.String(dict.TagText)
			assert.Contains(t, text, "unresponsive")
		}
	}
	assert.True(t, sawLogout)

	s.Tick(t0.Add(73 * time.Second))
	assert.Equal(t, StateDisconnected, s.State())
	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventDisconnected, events[len(events)-1].Kind)
}

func TestHeartbeatAnswerCancelsTestRequest(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Tick(t0.Add(31 * time.Second))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	var id string
	for _, m := range frames {
		if m.MsgType() == dict.MsgTypeTestRequest {
			id, _ = m.String(dict.TagTestReqID)
		}
	}
	require.NotEmpty(t, id)

	s.Receive(t0.Add(35*time.Second), p.frame(dict.MsgTypeHeartbeat, 2, func(m *codec.Message) {
		require.NoError(t, m.SetString(dict.TagTestReqID, id))
	}))
	s.Tick(t0.Add(62 * time.Second))
	assert.NotEqual(t, StateLogoutSent, s.State())
	assert.Equal(t, StateActive, s.State())
}

func TestServicingPeerResendRequest(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p) // our logon went out as seq 1

	for _, id := range []string{"X1", "X2"} {
		m, err := s.NewMessage(dict.MsgTypeNewOrderSingle)
		require.NoError(t, err)
		require.NoError(t, m.SetString(11, id))
		require.NoError(t, m.SetString(55, "EUR/USD"))
		require.NoError(t, m.SetChar(54, '2'))
		require.NoError(t, m.SetTime(60, t0))
		require.NoError(t, m.SetFloat(38, decimal.NewFromInt(5)))
		require.NoError(t, m.SetChar(40, '1'))
		require.NoError(t, s.Send(t0, m))
	}
	s.Outbound()
	outAfter := s.NextOutboundSeqNum()
	require.Equal(t, uint64(4), outAfter)

	later := t0.Add(5 * time.Second)
	s.Receive(later, p.frame(dict.MsgTypeResendRequest, 2, func(m *codec.Message) {
		require.NoError(t, m.SetSeqNum(dict.TagBeginSeqNo, 1))
		require.NoError(t, m.SetSeqNum(dict.TagEndSeqNo, 0))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 3)

	// Admin seq 1 is skipped with a GapFill pointing at seq 2.
	gf := frames[0]
	assert.Equal(t, dict.MsgTypeSequenceReset, gf.MsgType())
	seq, _ := gf.SeqNum(dict.TagMsgSeqNum)
	assert.Equal(t, uint64(1), seq)
	fill, _ := gf.Bool(dict.TagGapFillFlag)
	assert.True(t, fill)
	newSeq, _ := gf.SeqNum(dict.TagNewSeqNo)
	assert.Equal(t, uint64(2), newSeq)
	pd, _ := gf.Bool(dict.TagPossDupFlag)
	assert.True(t, pd)

	for i, wantID := range []string{"X1", "X2"} {
		m := frames[i+1]
		assert.Equal(t, dict.MsgTypeNewOrderSingle, m.MsgType())
		seq, _ := m.SeqNum(dict.TagMsgSeqNum)
		assert.Equal(t, uint64(2+i), seq)
		id, _ := m.String(11)
		assert.Equal(t, wantID, id)
		pd, _ := m.Bool(dict.TagPossDupFlag)
		assert.True(t, pd, "retransmissions carry PossDupFlag")
		orig, ok := m.Time(dict.TagOrigSendingTime)
		require.True(t, ok)
		assert.True(t, orig.Equal(t0))
		st, _ := m.Time(dict.TagSendingTime)
		assert.True(t, st.Equal(later))
	}

	// Retransmission reuses original numbers; the counter did not move.
	assert.Equal(t, outAfter, s.NextOutboundSeqNum())
}

func TestInvalidInboundMessageDrawsReject(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// A Logon missing its required HeartBtInt, arriving mid-session. Built
	// byte by byte; no compliant encoder would produce it.
	s.Receive(t0, rawFrame("FIX.4.2",
		"35=A|49=ACCEPT|56=INIT|34=2|52=20260829-12:00:00.000|98=0"))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	rej := frames[0]
	assert.Equal(t, dict.MsgTypeReject, rej.MsgType())
	refSeq, _ := rej.SeqNum(dict.TagRefSeqNum)
	assert.Equal(t, uint64(2), refSeq)
	reason, _ := rej.Int(dict.TagSessionRejectReason)
	assert.Equal(t, int64(codec.RejectRequiredTagMissing), reason)
	refTag, _ := rej.Int(dict.TagRefTagID)
	assert.Equal(t, int64(dict.TagHeartBtInt), refTag)

	assert.Equal(t, []EventKind{EventRejected}, kinds(s.Events()))
	assert.Equal(t, uint64(3), s.NextInboundSeqNum(), "rejected messages still consume a sequence number")
	assert.Equal(t, StateActive, s.State())
}

func TestRepeatedGarbledInputFailsSession(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	corrupt := func() []byte {
		f := p.order(2, "A")
		f[len(f)-3]++ // break the checksum
		return f
	}

	s.Receive(t0, corrupt())
	assert.Equal(t, StateActive, s.State(), "a single garbled message is dropped")
	assert.Equal(t, []EventKind{EventGarbled}, kinds(s.Events()))
	assert.Equal(t, uint64(2), s.NextInboundSeqNum())

	// A good message in between resets the tally.
	s.Receive(t0, p.order(2, "A"))
	s.Events()
	s.Receive(t0, corrupt2(p, 3))
	s.Receive(t0, corrupt2(p, 3))
	s.Receive(t0, corrupt2(p, 3))
	assert.Equal(t, StateFailed, s.State())
}

func corrupt2(p *peer, seq uint64) []byte {
	f := p.order(seq, "A")
	f[len(f)-3]++
	return f
}

func TestLogonCompIDMismatchIsFatal(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	require.NoError(t, s.Connect(t0))
	s.Outbound()

	imposter := newPeer(t, dict.FIX42)
	frame := imposter.frame(dict.MsgTypeLogon, 1, func(m *codec.Message) {
		require.NoError(t, m.SetString(dict.TagSenderCompID, "WRONG"))
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
	})
	s.Receive(t0, frame)
	assert.Equal(t, StateFailed, s.State())
}

func TestCompIDMismatchMidSessionDrawsReject(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeHeartbeat, 2, func(m *codec.Message) {
		require.NoError(t, m.SetString(dict.TagSenderCompID, "WRONG"))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeReject, frames[0].MsgType())
	reason, _ := frames[0].Int(dict.TagSessionRejectReason)
	assert.Equal(t, int64(codec.RejectCompIDProblem), reason)
	assert.Equal(t, StateActive, s.State())
}

func TestOrderlyLogoutInitiatedLocally(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Disconnect(t0, "done for the day")
	assert.Equal(t, StateLogoutSent, s.State())
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeLogout, frames[0].MsgType())

	s.Receive(t0, p.frame(dict.MsgTypeLogout, 2, nil))
	assert.Equal(t, StateDisconnected, s.State())
	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventDisconnected, events[len(events)-1].Kind)
}

func TestPeerInitiatedLogoutIsEchoed(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeLogout, 2, func(m *codec.Message) {
		require.NoError(t, m.SetString(dict.TagText, "maintenance window"))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeLogout, frames[0].MsgType())
	assert.Equal(t, StateDisconnected, s.State())
	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, EventDisconnected, events[len(events)-1].Kind)
	assert.Contains(t, events[len(events)-1].Reason, "maintenance window")
}

func TestSecondLogonWhileActiveIsRejected(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeLogon, 2, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
	}))
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	assert.Equal(t, dict.MsgTypeReject, frames[0].MsgType())
	assert.Equal(t, StateActive, s.State())
}

func TestSeqNumsSurviveReconnectThroughStore(t *testing.T) {
	store := NewMemoryStore()
	s := newTestSession(t, dict.FIX42, store)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)
	s.Receive(t0, p.order(2, "A"))
	s.Events()
	s.Disconnect(t0, "restart")
	s.Receive(t0, p.frame(dict.MsgTypeLogout, 3, nil))
	require.Equal(t, StateDisconnected, s.State())

	in, out, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), in)
	assert.Equal(t, uint64(3), out)

	// A fresh session over the same store resumes the counters.
	s2 := newTestSession(t, dict.FIX42, store)
	assert.Equal(t, uint64(4), s2.NextInboundSeqNum())
	assert.Equal(t, uint64(3), s2.NextOutboundSeqNum())
}

func TestSetSeqNumsOnlyWhileDisconnected(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	require.NoError(t, s.SetSeqNums(10, 20))
	assert.Equal(t, uint64(10), s.NextInboundSeqNum())
	assert.Equal(t, uint64(20), s.NextOutboundSeqNum())
	assert.Error(t, s.SetSeqNums(0, 1))

	p := newPeer(t, dict.FIX42)
	require.NoError(t, s.Connect(t0))
	assert.Error(t, s.SetSeqNums(1, 1))
	_ = p
}

func TestSendRefusedOutsideEstablishedStates(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	m, err := codec.New(dict.Session(dict.FIX42), dict.MsgTypeNewOrderSingle)
	require.NoError(t, err)
	assert.Error(t, s.Send(t0, m))
}

func TestResendRequestWithInvertedRangeIsRejected(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	s.Receive(t0, p.frame(dict.MsgTypeResendRequest, 2, func(m *codec.Message) {
		require.NoError(t, m.SetSeqNum(dict.TagBeginSeqNo, 5))
		require.NoError(t, m.SetSeqNum(dict.TagEndSeqNo, 3))
	}))

	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	rej := frames[0]
	assert.Equal(t, dict.MsgTypeReject, rej.MsgType())
	reason, _ := rej.Int(dict.TagSessionRejectReason)
	assert.Equal(t, int64(codec.RejectValueIncorrectForTag), reason)
	refTag, _ := rej.Int(dict.TagRefTagID)
	assert.Equal(t, int64(dict.TagEndSeqNo), refTag)
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, uint64(3), s.NextInboundSeqNum())
}

func TestRepeatedPeerResendRequestsForceLogout(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	for seq := uint64(2); seq <= 7; seq++ {
		s.Receive(t0, p.frame(dict.MsgTypeResendRequest, seq, func(m *codec.Message) {
			require.NoError(t, m.SetSeqNum(dict.TagBeginSeqNo, 1))
			require.NoError(t, m.SetSeqNum(dict.TagEndSeqNo, 0))
		}))
	}

	assert.Equal(t, StateLogoutSent, s.State())
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, dict.MsgTypeLogout, last.MsgType())
	text, _ := last.String(dict.TagText)
	assert.Contains(t, text, "loop")
}

func TestNegativeHeartBtIntOnLogonIsFatal(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	require.NoError(t, s.Connect(t0))
	s.Outbound()

	s.Receive(t0, p.frame(dict.MsgTypeLogon, 1, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, -5))
	}))

	assert.Equal(t, StateFailed, s.State())
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	rej := frames[0]
	assert.Equal(t, dict.MsgTypeReject, rej.MsgType())
	reason, _ := rej.Int(dict.TagSessionRejectReason)
	assert.Equal(t, int64(codec.RejectValueIncorrectForTag), reason)
	refTag, _ := rej.Int(dict.TagRefTagID)
	assert.Equal(t, int64(dict.TagHeartBtInt), refTag)
	assert.Equal(t, []EventKind{EventFailed}, kinds(s.Events()))
}

func TestPeerLogoutDeferredDuringResend(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	establish(t, s, p)

	// Gap: expected 2, got 3.
	s.Receive(t0, p.order(3, "C"))
	require.Equal(t, StateResendPending, s.State())
	s.Outbound()

	// The peer hangs up before the gap is filled. The confirming Logout
	// waits until recovery completes.
	s.Receive(t0, p.frame(dict.MsgTypeLogout, 4, nil))
	assert.Equal(t, StateResendPending, s.State())
	for _, f := range decodeFrames(t, dict.FIX42, s.Outbound()) {
		assert.NotEqual(t, dict.MsgTypeLogout, f.MsgType())
	}

	// Gap fill arrives; buffered traffic replays, then the logout is echoed.
	s.Receive(t0, p.order(2, "B"))
	assert.Equal(t, StateDisconnected, s.State())
	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.NotEmpty(t, frames)
	assert.Equal(t, dict.MsgTypeLogout, frames[len(frames)-1].MsgType())
	assert.Equal(t, []EventKind{EventMessage, EventMessage, EventDisconnected}, kinds(s.Events()))
	assert.Equal(t, uint64(5), s.NextInboundSeqNum())
}

func TestLogonReplyAboveExpectedStillEstablishes(t *testing.T) {
	s := newTestSession(t, dict.FIX42, nil)
	p := newPeer(t, dict.FIX42)
	require.NoError(t, s.Connect(t0))
	s.Outbound()

	// The acceptor's counter is ahead; its Logon reply arrives as seq 5.
	// The session establishes first and recovers the gap after.
	s.Receive(t0, p.frame(dict.MsgTypeLogon, 5, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
	}))
	assert.Equal(t, StateResendPending, s.State())
	assert.Equal(t, []EventKind{EventActive}, kinds(s.Events()))

	frames := decodeFrames(t, dict.FIX42, s.Outbound())
	require.Len(t, frames, 1)
	rr := frames[0]
	assert.Equal(t, dict.MsgTypeResendRequest, rr.MsgType())
	from, _ := rr.SeqNum(dict.TagBeginSeqNo)
	to, _ := rr.SeqNum(dict.TagEndSeqNo)
	assert.Equal(t, uint64(1), from)
	assert.Equal(t, uint64(4), to)

	// A PossDup Heartbeat answering part of the range is delivered normally.
	s.Receive(t0, p.frame(dict.MsgTypeHeartbeat, 1, func(m *codec.Message) {
		require.NoError(t, m.SetBool(dict.TagPossDupFlag, true))
		require.NoError(t, m.SetTime(dict.TagOrigSendingTime, t0))
	}))
	assert.Equal(t, StateResendPending, s.State())
	assert.Equal(t, uint64(2), s.NextInboundSeqNum())

	// A GapFill covers the rest; the Logon's own slot is skipped, not
	// redelivered.
	s.Receive(t0, p.frame(dict.MsgTypeSequenceReset, 2, func(m *codec.Message) {
		require.NoError(t, m.SetBool(dict.TagGapFillFlag, true))
		require.NoError(t, m.SetSeqNum(dict.TagNewSeqNo, 5))
	}))
	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, uint64(6), s.NextInboundSeqNum())
	assert.Empty(t, kinds(s.Events()))
}

func TestLogonNegotiatesDefaultApplVerID(t *testing.T) {
	s := newTestSession(t, dict.FIX50SP2, nil)
	p := newPeer(t, dict.FIX50SP2)
	require.NoError(t, s.Connect(t0))
	s.Outbound()

	// The acceptor pins the session to plain 5.0.
	s.Receive(t0, p.frame(dict.MsgTypeLogon, 1, func(m *codec.Message) {
		require.NoError(t, m.SetInt(dict.TagEncryptMethod, 0))
		require.NoError(t, m.SetInt(dict.TagHeartBtInt, 30))
		require.NoError(t, m.SetString(dict.TagDefaultApplVerID, "7"))
	}))
	require.Equal(t, StateActive, s.State())
	s.Events()
	assert.Same(t, dict.Session(dict.FIX50), s.dc)

	// ApplExtID exists from 5.0 SP1 on; under the negotiated default it is
	// out of schema for inbound traffic.
	s.Receive(t0, p.frame(dict.MsgTypeNewOrderSingle, 2, func(m *codec.Message) {
		require.NoError(t, m.SetInt(1156, 1))
		require.NoError(t, m.SetString(11, "V1"))
		require.NoError(t, m.SetString(55, "EUR/USD"))
		require.NoError(t, m.SetChar(54, '1'))
		require.NoError(t, m.SetTime(60, t0))
		require.NoError(t, m.SetFloat(38, decimal.NewFromInt(1)))
		require.NoError(t, m.SetChar(40, '1'))
	}))
	assert.Equal(t, []EventKind{EventRejected}, kinds(s.Events()))
	assert.Equal(t, uint64(3), s.NextInboundSeqNum())
}
