// Package session implements the FIX session layer: the connection
// lifecycle, sequence number accounting, heartbeat and test-request
// liveness, and gap recovery via ResendRequest and SequenceReset. A Session
// is a deterministic state machine: every entry point takes the current time
// from the caller, and all output is drained through Outbound and Events.
// Methods must be called from one goroutine at a time.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/Aidin1998/fixengine/internal/codec"
	"github.com/Aidin1998/fixengine/internal/dict"
)

const (
	defaultLogonTimeout  = 10 * time.Second
	defaultLogoutTimeout = 10 * time.Second
	defaultHeartBtInt    = 30 * time.Second
	// A TestRequest is sent only after the peer has been silent slightly
	// longer than the negotiated interval, so an on-time Heartbeat racing
	// the timer does not trigger one.
	livenessPadding = 250 * time.Millisecond
	// Consecutive garbled inbound messages tolerated before the session is
	// declared Failed.
	maxGarbledRun = 3
	// ResendRequests issued for one gap before declaring it unrecoverable.
	defaultMaxResendAttempts = 5
	// Outbound messages retained for servicing peer ResendRequests.
	sentLogLimit = 4096
)

// Config describes one session identity and its negotiated parameters.
type Config struct {
	// Version selects the FIX application version. Versions 5.0 and later
	// use the FIXT.1.1 transport and advertise DefaultApplVerID at logon.
	Version       dict.Version
	SenderCompID  string
	TargetCompID  string
	HeartBtInt    time.Duration
	LogonTimeout  time.Duration
	LogoutTimeout time.Duration
	// TestRequestGrace is how long after an unanswered TestRequest the peer
	// is declared stale. Defaults to HeartBtInt.
	TestRequestGrace time.Duration
	// MaxResendAttempts bounds how many ResendRequests are issued for one
	// gap before the session fails.
	MaxResendAttempts int
	// MaxMessageBytes caps the BodyLength an inbound frame may claim.
	// Zero means the codec default.
	MaxMessageBytes int
	// ResetSeqNumOnLogon restarts both counters at 1 and advertises
	// ResetSeqNumFlag on the Logon.
	ResetSeqNumOnLogon bool
	Username           string
	Password           string
}

func (c Config) withDefaults() Config {
	if c.HeartBtInt <= 0 {
		c.HeartBtInt = defaultHeartBtInt
	}
	if c.LogonTimeout <= 0 {
		c.LogonTimeout = defaultLogonTimeout
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = defaultLogoutTimeout
	}
	if c.TestRequestGrace <= 0 {
		c.TestRequestGrace = c.HeartBtInt
	}
	if c.MaxResendAttempts <= 0 {
		c.MaxResendAttempts = defaultMaxResendAttempts
	}
	return c
}

type sentEntry struct {
	msg         *codec.Message
	sendingTime time.Time
}

// Session is the state machine for one FIX connection as the initiating
// side. It owns the sequence counters and produces every administrative
// message the protocol requires.
type Session struct {
	cfg   Config
	log   *zap.Logger
	store SeqNumStore
	dec   *codec.Decoder
	dc    *dict.Dictionary

	state   State
	nextIn  uint64
	nextOut uint64

	readBuf  []byte
	outbound [][]byte
	events   []Event

	pending *btree.Map[uint64, *codec.Message]
	sent    *btree.Map[uint64, *sentEntry]

	lastIn  time.Time
	lastOut time.Time

	logonDeadline  time.Time
	logoutDeadline time.Time
	testDeadline time.Time
	testPending  bool
	testReqID    string

	resendAttempts int
	resendTo       uint64
	garbledRun     int

	// Sequence number of a Logon consumed ahead of order. The slot is
	// skipped, not redelivered, when gap recovery reaches it.
	logonSeq uint64

	peerResendFrom  uint64
	peerResendCount int

	// A peer Logout received while a resend range is outstanding is answered
	// once the gap resolves, or when the deferral deadline passes.
	peerLogoutPending  bool
	peerLogoutDeadline time.Time
	peerLogoutReason   string

	hbInt time.Duration
}

// New creates a session in the Disconnected state. store may be nil, in
// which case counters live in memory only.
func New(cfg Config, log *zap.Logger, store SeqNumStore) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.SenderCompID == "" || cfg.TargetCompID == "" {
		return nil, errors.New("session: SenderCompID and TargetCompID are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	in, out, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("session: loading sequence numbers: %w", err)
	}
	if in == 0 {
		in = 1
	}
	if out == 0 {
		out = 1
	}
	dec := codec.NewDecoder(cfg.Version)
	dec.MaxBodyLength = cfg.MaxMessageBytes
	return &Session{
		cfg:     cfg,
		log:     log.With(zap.String("sender", cfg.SenderCompID), zap.String("target", cfg.TargetCompID)),
		store:   store,
		dec:     dec,
		dc:      dict.Session(cfg.Version),
		nextIn:  in,
		nextOut: out,
		hbInt:   cfg.HeartBtInt,
		pending: btree.NewMap[uint64, *codec.Message](8),
		sent:    btree.NewMap[uint64, *sentEntry](8),
	}, nil
}

func (s *Session) State() State { return s.state }

// NextInboundSeqNum is the sequence number expected on the next inbound
// message.
func (s *Session) NextInboundSeqNum() uint64 { return s.nextIn }

// NextOutboundSeqNum is the sequence number the next outbound message will
// carry.
func (s *Session) NextOutboundSeqNum() uint64 { return s.nextOut }

// SetSeqNums overrides both counters, e.g. after operator intervention. Only
// legal while disconnected.
func (s *Session) SetSeqNums(nextInbound, nextOutbound uint64) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("session: cannot set sequence numbers in state %s", s.state)
	}
	if nextInbound == 0 || nextOutbound == 0 {
		return errors.New("session: sequence numbers start at 1")
	}
	s.nextIn, s.nextOut = nextInbound, nextOutbound
	s.persist()
	return nil
}

// Outbound drains the encoded frames waiting for the transport.
func (s *Session) Outbound() [][]byte {
	out := s.outbound
	s.outbound = nil
	return out
}

// Events drains the events waiting for the application.
func (s *Session) Events() []Event {
	ev := s.events
	s.events = nil
	return ev
}

// Connect starts the logon handshake. The transport must already be
// connected; the Logon frame is queued on Outbound.
func (s *Session) Connect(now time.Time) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("session: cannot connect in state %s", s.state)
	}
	if s.cfg.ResetSeqNumOnLogon {
		s.nextIn, s.nextOut = 1, 1
		s.persist()
	}
	logon := s.newAdmin(dict.MsgTypeLogon)
	s.must(logon.SetInt(dict.TagEncryptMethod, 0))
	s.must(logon.SetInt(dict.TagHeartBtInt, int64(s.cfg.HeartBtInt/time.Second)))
	if s.cfg.ResetSeqNumOnLogon && s.cfg.Version >= dict.FIX41 {
		s.must(logon.SetBool(dict.TagResetSeqNumFlag, true))
	}
	if s.cfg.Version.FIXT() {
		s.must(logon.SetString(dict.TagDefaultApplVerID, s.cfg.Version.ApplVerID()))
	}
	if s.cfg.Username != "" && s.cfg.Version >= dict.FIX43 {
		s.must(logon.SetString(553, s.cfg.Username))
	}
	if s.cfg.Password != "" && s.cfg.Version >= dict.FIX43 {
		s.must(logon.SetString(554, s.cfg.Password))
	}
	if err := s.stampAndSend(now, logon); err != nil {
		return err
	}
	s.state = StateLogonSent
	s.logonDeadline = now.Add(s.cfg.LogonTimeout)
	s.lastIn = now
	s.log.Info("logon sent", zap.String("version", s.cfg.Version.String()))
	return nil
}

// Send queues one application message. The session stamps the comp IDs,
// sequence number, and sending time; any values the caller put in those
// fields are overwritten.
func (s *Session) Send(now time.Time, m *codec.Message) error {
	if s.state != StateActive && s.state != StateResendPending {
		return fmt.Errorf("session: cannot send in state %s", s.state)
	}
	return s.stampAndSend(now, m)
}

// Disconnect starts an orderly shutdown. From an established state a Logout
// is sent and the session waits for the peer's echo; otherwise the session
// drops straight to Disconnected.
func (s *Session) Disconnect(now time.Time, reason string) {
	switch s.state {
	case StateActive, StateResendPending:
		s.sendLogout(now, reason)
	case StateDisconnected, StateFailed:
		// nothing to do
	default:
		s.toDisconnected(reason)
	}
}

// TransportClosed tells the session the collaborator lost the connection.
func (s *Session) TransportClosed(reason string) {
	if s.state == StateDisconnected || s.state == StateFailed {
		return
	}
	s.toDisconnected(reason)
}

// Receive feeds transport bytes into the session. Partial messages are
// buffered internally; complete ones are decoded, validated, sequenced, and
// acted on, producing events and outbound frames.
func (s *Session) Receive(now time.Time, data []byte) {
	if s.state == StateDisconnected || s.state == StateFailed {
		return
	}
	s.readBuf = append(s.readBuf, data...)
	for {
		msg, n, err := s.dec.Decode(s.readBuf)
		s.readBuf = s.readBuf[n:]
		switch {
		case err == nil:
			s.garbledRun = 0
			s.lastIn = now
			s.testPending = false
			s.handle(now, msg)
		case errors.Is(err, codec.ErrNeedMoreData):
			return
		default:
			s.handleDecodeError(now, err)
		}
		if s.state == StateDisconnected || s.state == StateFailed {
			s.readBuf = nil
			return
		}
	}
}

func (s *Session) handleDecodeError(now time.Time, err error) {
	var me *codec.MessageError
	if errors.As(err, &me) {
		s.garbledRun = 0
		s.lastIn = now
		reason, tag := codec.ReasonOf(err)
		s.log.Warn("rejecting inbound message",
			zap.String("msg_type", me.MsgType), zap.Uint64("seq", me.SeqNum), zap.Error(err))
		s.sendReject(now, me.SeqNum, me.MsgType, reason, tag, me.Err.Error())
		if me.SeqNum == 0 || me.SeqNum == s.nextIn {
			s.nextIn++
			s.persist()
		}
		s.events = append(s.events, Event{Kind: EventRejected, Err: err})
		return
	}

	GarbledMessages.Inc()
	s.garbledRun++
	s.log.Warn("garbled inbound bytes discarded", zap.Error(err), zap.Int("run", s.garbledRun))
	s.events = append(s.events, Event{Kind: EventGarbled, Reason: err.Error()})
	if s.garbledRun >= maxGarbledRun {
		s.fail("repeated garbled messages: " + err.Error())
	}
}

func (s *Session) handle(now time.Time, m *codec.Message) {
	seq, _ := m.SeqNum(dict.TagMsgSeqNum)
	possDup, _ := m.Bool(dict.TagPossDupFlag)

	// A SequenceReset without GapFill repairs a broken counter and is honored
	// regardless of its own MsgSeqNum.
	if m.MsgType() == dict.MsgTypeSequenceReset {
		if gapFill, ok := m.Bool(dict.TagGapFillFlag); !ok || !gapFill {
			s.hardSequenceReset(now, m)
			return
		}
	}

	if possDup {
		orig, hasOrig := m.Time(dict.TagOrigSendingTime)
		sending, hasSending := m.Time(dict.TagSendingTime)
		if hasOrig && hasSending && orig.After(sending) {
			s.sendReject(now, seq, m.MsgType(), codec.RejectSendingTimeAccuracy,
				dict.TagOrigSendingTime, "OrigSendingTime after SendingTime")
			s.events = append(s.events, Event{Kind: EventRejected,
				Err: fmt.Errorf("sending time accuracy problem on seq %d", seq)})
			if seq == s.nextIn {
				s.nextIn++
				s.persist()
			}
			return
		}
	}

	switch {
	case seq == s.nextIn:
		s.deliver(now, m)
		s.drainPending(now)
	case seq > s.nextIn:
		// A Logon reply is the one message handled ahead of order. The
		// session must establish before it can recover the gap behind it.
		if s.state == StateLogonSent && m.MsgType() == dict.MsgTypeLogon {
			if !s.compIDsMatch(m) {
				s.fail("Logon with mismatched sender/target identity")
				return
			}
			s.completeLogon(now, m)
			if s.state != StateActive {
				return
			}
			MessagesReceived.WithLabelValues(m.MsgType()).Inc()
			s.logonSeq = seq
		}
		s.bufferAhead(now, m, seq)
	default:
		if possDup {
			s.events = append(s.events, Event{Kind: EventDuplicate, Msg: m})
			return
		}
		s.fail(fmt.Sprintf("sequence number %d lower than expected %d without PossDupFlag", seq, s.nextIn))
	}
}

func (s *Session) bufferAhead(now time.Time, m *codec.Message, seq uint64) {
	s.pending.Set(seq, m)
	if s.state == StateResendPending && seq <= s.resendTo {
		// Already requested; this is one of the buffered originals arriving
		// out of order.
		return
	}
	if s.resendAttempts >= s.cfg.MaxResendAttempts {
		s.fail(fmt.Sprintf("sequence gap %d..%d unrecoverable after %d resend attempts",
			s.nextIn, seq-1, s.resendAttempts))
		return
	}
	s.resendAttempts++
	s.resendTo = seq - 1
	s.sendResendRequest(now, s.nextIn, seq-1)
	if s.state == StateActive {
		s.state = StateResendPending
	}
	s.log.Info("sequence gap detected",
		zap.Uint64("expected", s.nextIn), zap.Uint64("received", seq),
		zap.Int("attempt", s.resendAttempts))
}

func (s *Session) drainPending(now time.Time) {
	for {
		if s.logonSeq != 0 && s.nextIn >= s.logonSeq {
			if s.nextIn == s.logonSeq {
				// Already handled when it arrived; only the counter moves.
				s.pending.Delete(s.nextIn)
				s.nextIn++
				s.persist()
				s.logonSeq = 0
				continue
			}
			s.logonSeq = 0
		}
		m, ok := s.pending.Get(s.nextIn)
		if !ok {
			break
		}
		s.pending.Delete(s.nextIn)
		s.deliver(now, m)
		if s.state == StateFailed || s.state == StateDisconnected {
			return
		}
	}
	if s.state == StateResendPending && s.nextIn > s.resendTo {
		s.state = StateActive
		s.resendAttempts = 0
		s.log.Info("sequence gap resolved", zap.Uint64("next_inbound", s.nextIn))
		if s.peerLogoutPending {
			s.peerLogoutPending = false
			s.echoLogout(now, s.peerLogoutReason)
		}
	}
}

// deliver processes one in-sequence message and advances the inbound
// counter.
func (s *Session) deliver(now time.Time, m *codec.Message) {
	seq, _ := m.SeqNum(dict.TagMsgSeqNum)
	if !s.compIDsMatch(m) {
		if m.MsgType() == dict.MsgTypeLogon {
			s.fail("Logon with mismatched sender/target identity")
			return
		}
		s.sendReject(now, seq, m.MsgType(), codec.RejectCompIDProblem, dict.TagSenderCompID, "CompID mismatch")
		s.events = append(s.events, Event{Kind: EventRejected,
			Err: fmt.Errorf("CompID mismatch on seq %d", seq)})
		s.nextIn++
		s.persist()
		return
	}

	s.nextIn++
	s.persist()
	MessagesReceived.WithLabelValues(m.MsgType()).Inc()

	if s.state == StateLogonSent {
		switch m.MsgType() {
		case dict.MsgTypeLogon:
			s.completeLogon(now, m)
		case dict.MsgTypeLogout:
			reason, _ := m.String(dict.TagText)
			s.toDisconnected("peer refused logon: " + reason)
		case dict.MsgTypeReject:
			s.events = append(s.events, Event{Kind: EventPeerReject, Msg: m})
			s.fail("logon rejected by peer")
		default:
			s.fail("first message from peer was not a Logon")
		}
		return
	}

	switch m.MsgType() {
	case dict.MsgTypeLogon:
		// One active session per identity pair; a second Logon is refused.
		s.sendReject(now, seq, m.MsgType(), codec.RejectOther, 0, "session already established")
		s.events = append(s.events, Event{Kind: EventRejected,
			Err: errors.New("second Logon while session established")})
	case dict.MsgTypeHeartbeat:
		// Liveness already noted in Receive.
	case dict.MsgTypeTestRequest:
		hb := s.newAdmin(dict.MsgTypeHeartbeat)
		if id, ok := m.String(dict.TagTestReqID); ok {
			s.must(hb.SetString(dict.TagTestReqID, id))
		}
		if err := s.stampAndSend(now, hb); err != nil {
			s.fail("encoding heartbeat: " + err.Error())
		}
	case dict.MsgTypeResendRequest:
		from, _ := m.SeqNum(dict.TagBeginSeqNo)
		to, _ := m.SeqNum(dict.TagEndSeqNo)
		if to != 0 && from > to {
			s.sendReject(now, seq, m.MsgType(), codec.RejectValueIncorrectForTag,
				dict.TagEndSeqNo, "BeginSeqNo greater than EndSeqNo")
			return
		}
		// A peer stuck re-requesting the same range will loop forever;
		// cut the session loose after a bounded number of repeats.
		if from == s.peerResendFrom {
			s.peerResendCount++
			if s.peerResendCount > s.cfg.MaxResendAttempts {
				s.sendLogout(now, "resend request loop detected")
				return
			}
		} else {
			s.peerResendFrom = from
			s.peerResendCount = 1
		}
		s.serviceResend(now, from, to)
	case dict.MsgTypeSequenceReset:
		// GapFill. NewSeqNo points past the gap the peer chose not to resend.
		s.applyGapFill(now, m)
	case dict.MsgTypeLogout:
		if s.state == StateLogoutSent {
			s.toDisconnected("logout complete")
			return
		}
		reason, _ := m.String(dict.TagText)
		if s.state == StateResendPending {
			// Finish recovering the gap before hanging up, within a bound.
			s.peerLogoutPending = true
			s.peerLogoutDeadline = now.Add(s.cfg.LogoutTimeout)
			s.peerLogoutReason = reason
			s.log.Info("peer logout deferred until resend completes")
			return
		}
		s.echoLogout(now, reason)
	case dict.MsgTypeReject:
		s.events = append(s.events, Event{Kind: EventPeerReject, Msg: m})
	default:
		s.events = append(s.events, Event{Kind: EventMessage, Msg: m})
	}
}

func (s *Session) completeLogon(now time.Time, m *codec.Message) {
	if hb, ok := m.Int(dict.TagHeartBtInt); ok {
		if hb < 0 {
			seq, _ := m.SeqNum(dict.TagMsgSeqNum)
			s.sendReject(now, seq, m.MsgType(), codec.RejectValueIncorrectForTag,
				dict.TagHeartBtInt, "HeartBtInt must not be negative")
			s.fail("peer Logon carried a negative HeartBtInt")
			return
		}
		if hb > 0 {
			s.hbInt = time.Duration(hb) * time.Second
		}
	}
	if dav, ok := m.String(dict.TagDefaultApplVerID); ok {
		v, known := dict.VersionFromApplVerID(dav)
		if !known {
			seq, _ := m.SeqNum(dict.TagMsgSeqNum)
			s.sendReject(now, seq, m.MsgType(), codec.RejectValueIncorrectForTag,
				dict.TagDefaultApplVerID, "unknown DefaultApplVerID")
			s.fail("peer Logon carried unknown DefaultApplVerID " + dav)
			return
		}
		if v != s.cfg.Version {
			// The peer's default governs how untagged application messages
			// are decoded from here on.
			maxBody := s.dec.MaxBodyLength
			s.dec = codec.NewDecoder(v)
			s.dec.MaxBodyLength = maxBody
			s.dc = dict.Session(v)
			s.log.Info("default application version negotiated", zap.String("appl_ver_id", dav))
		}
	}
	s.state = StateActive
	s.events = append(s.events, Event{Kind: EventActive})
	s.log.Info("session active", zap.Duration("heartbeat", s.hbInt))
}

func (s *Session) hardSequenceReset(now time.Time, m *codec.Message) {
	newSeq, ok := m.SeqNum(dict.TagNewSeqNo)
	seq, _ := m.SeqNum(dict.TagMsgSeqNum)
	if !ok || newSeq < s.nextIn {
		s.sendReject(now, seq, m.MsgType(), codec.RejectValueIncorrectForTag,
			dict.TagNewSeqNo, "attempt to lower sequence number")
		s.events = append(s.events, Event{Kind: EventRejected,
			Err: fmt.Errorf("SequenceReset to %d below expected %d", newSeq, s.nextIn)})
		return
	}
	s.log.Info("sequence reset", zap.Uint64("from", s.nextIn), zap.Uint64("to", newSeq))
	s.nextIn = newSeq
	s.persist()
	s.drainPending(now)
}

func (s *Session) applyGapFill(now time.Time, m *codec.Message) {
	// deliver already advanced nextIn past the GapFill's own MsgSeqNum.
	newSeq, ok := m.SeqNum(dict.TagNewSeqNo)
	seq, _ := m.SeqNum(dict.TagMsgSeqNum)
	if !ok || newSeq < s.nextIn {
		s.sendReject(now, seq, m.MsgType(), codec.RejectValueIncorrectForTag,
			dict.TagNewSeqNo, "attempt to lower sequence number")
		s.events = append(s.events, Event{Kind: EventRejected,
			Err: fmt.Errorf("GapFill to %d below expected %d", newSeq, s.nextIn)})
		return
	}
	s.nextIn = newSeq
	s.persist()
}

func (s *Session) compIDsMatch(m *codec.Message) bool {
	sender, _ := m.String(dict.TagSenderCompID)
	target, _ := m.String(dict.TagTargetCompID)
	return sender == s.cfg.TargetCompID && target == s.cfg.SenderCompID
}

// Tick advances the timers. Call it whenever NextDeadline passes, and as
// often as convenient otherwise; it is idempotent between deadline
// crossings.
func (s *Session) Tick(now time.Time) {
	switch s.state {
	case StateLogonSent:
		if !now.Before(s.logonDeadline) {
			s.fail("logon timed out")
		}
	case StateActive, StateResendPending:
		if s.peerLogoutPending && !now.Before(s.peerLogoutDeadline) {
			s.peerLogoutPending = false
			s.echoLogout(now, s.peerLogoutReason)
			return
		}
		if now.Sub(s.lastOut) >= s.hbInt {
			hb := s.newAdmin(dict.MsgTypeHeartbeat)
			if err := s.stampAndSend(now, hb); err != nil {
				s.fail("encoding heartbeat: " + err.Error())
				return
			}
		}
		if s.testPending {
			if !now.Before(s.testDeadline) {
				s.sendLogout(now, "peer unresponsive: TestRequest "+s.testReqID+" unanswered")
			}
			return
		}
		if now.Sub(s.lastIn) >= s.hbInt+livenessPadding {
			s.testReqID = uuid.NewString()
			tr := s.newAdmin(dict.MsgTypeTestRequest)
			s.must(tr.SetString(dict.TagTestReqID, s.testReqID))
			if err := s.stampAndSend(now, tr); err != nil {
				s.fail("encoding test request: " + err.Error())
				return
			}
			s.testPending = true
			s.testDeadline = now.Add(s.cfg.TestRequestGrace)
			s.log.Info("peer silent, test request sent", zap.String("test_req_id", s.testReqID))
		}
	case StateLogoutSent:
		if !now.Before(s.logoutDeadline) {
			s.toDisconnected("logout response timed out")
		}
	}
}

// NextDeadline reports when Tick next needs to run. The zero time means no
// timer is armed.
func (s *Session) NextDeadline() time.Time {
	switch s.state {
	case StateLogonSent:
		return s.logonDeadline
	case StateActive, StateResendPending:
		d := s.lastOut.Add(s.hbInt)
		var liveness time.Time
		if s.testPending {
			liveness = s.testDeadline
		} else {
			liveness = s.lastIn.Add(s.hbInt + livenessPadding)
		}
		if liveness.Before(d) {
			d = liveness
		}
		if s.peerLogoutPending && s.peerLogoutDeadline.Before(d) {
			d = s.peerLogoutDeadline
		}
		return d
	case StateLogoutSent:
		return s.logoutDeadline
	}
	return time.Time{}
}

func (s *Session) sendLogout(now time.Time, reason string) {
	lo := s.newAdmin(dict.MsgTypeLogout)
	if reason != "" {
		s.must(lo.SetString(dict.TagText, reason))
	}
	if err := s.stampAndSend(now, lo); err != nil {
		s.fail("encoding logout: " + err.Error())
		return
	}
	s.state = StateLogoutSent
	s.logoutDeadline = now.Add(s.cfg.LogoutTimeout)
	s.log.Info("logout sent", zap.String("reason", reason))
}

// echoLogout confirms a peer-initiated Logout and closes the session.
func (s *Session) echoLogout(now time.Time, reason string) {
	echo := s.newAdmin(dict.MsgTypeLogout)
	if err := s.stampAndSend(now, echo); err != nil {
		s.fail("encoding logout: " + err.Error())
		return
	}
	s.toDisconnected("peer logout: " + reason)
}

func (s *Session) fail(reason string) {
	if s.state == StateFailed {
		return
	}
	s.state = StateFailed
	SessionFailures.WithLabelValues(failureLabel(reason)).Inc()
	s.events = append(s.events, Event{Kind: EventFailed, Reason: reason})
	s.log.Error("session failed", zap.String("reason", reason))
}

func (s *Session) toDisconnected(reason string) {
	s.state = StateDisconnected
	s.pending = btree.NewMap[uint64, *codec.Message](8)
	s.testPending = false
	s.garbledRun = 0
	s.resendAttempts = 0
	s.peerLogoutPending = false
	s.peerResendFrom = 0
	s.peerResendCount = 0
	s.logonSeq = 0
	s.events = append(s.events, Event{Kind: EventDisconnected, Reason: reason})
	s.log.Info("session disconnected", zap.String("reason", reason))
}

func (s *Session) persist() {
	if err := s.store.Save(s.nextIn, s.nextOut); err != nil {
		s.log.Warn("persisting sequence numbers", zap.Error(err))
	}
}

func (s *Session) must(err error) {
	// Only reachable through a bug in the built-in layouts.
	if err != nil {
		panic(err)
	}
}

func failureLabel(reason string) string {
	// Keep the label cardinality bounded.
	switch {
	case strings.HasPrefix(reason, "sequence"):
		return "sequencing"
	case strings.HasPrefix(reason, "logon"):
		return "logon"
	case strings.HasPrefix(reason, "repeated"):
		return "garbled"
	default:
		return "other"
	}
}
