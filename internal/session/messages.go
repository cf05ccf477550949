package session

import (
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/fixengine/internal/codec"
	"github.com/Aidin1998/fixengine/internal/dict"
)

// NewMessage creates an empty application message bound to the session's
// dictionary for the caller to populate and Send.
func (s *Session) NewMessage(msgType string) (*codec.Message, error) {
	return codec.New(s.dc, msgType)
}

func (s *Session) newAdmin(msgType string) *codec.Message {
	m, err := codec.New(s.dc, msgType)
	if err != nil {
		// Admin layouts exist in every built-in dictionary.
		panic(err)
	}
	return m
}

// stampAndSend fills the session header, assigns the next outbound sequence
// number, and queues the encoded frame. Every message sent this way advances
// the outbound counter; retransmissions go through resendFrame instead.
func (s *Session) stampAndSend(now time.Time, m *codec.Message) error {
	s.must(m.SetString(dict.TagSenderCompID, s.cfg.SenderCompID))
	s.must(m.SetString(dict.TagTargetCompID, s.cfg.TargetCompID))
	s.must(m.SetSeqNum(dict.TagMsgSeqNum, s.nextOut))
	s.must(m.SetTime(dict.TagSendingTime, now))

	frame, err := codec.Encode(nil, m)
	if err != nil {
		return err
	}
	seq := s.nextOut
	s.nextOut++
	s.persist()
	s.recordSent(seq, m, now)
	s.outbound = append(s.outbound, frame)
	s.lastOut = now
	MessagesSent.WithLabelValues(m.MsgType()).Inc()
	return nil
}

func (s *Session) recordSent(seq uint64, m *codec.Message, sendingTime time.Time) {
	s.sent.Set(seq, &sentEntry{msg: m, sendingTime: sendingTime})
	for s.sent.Len() > sentLogLimit {
		if k, _, ok := s.sent.Min(); ok {
			s.sent.Delete(k)
		}
	}
}

func (s *Session) sendResendRequest(now time.Time, from, to uint64) {
	rr := s.newAdmin(dict.MsgTypeResendRequest)
	s.must(rr.SetSeqNum(dict.TagBeginSeqNo, from))
	s.must(rr.SetSeqNum(dict.TagEndSeqNo, to))
	if err := s.stampAndSend(now, rr); err != nil {
		s.fail("encoding resend request: " + err.Error())
		return
	}
	ResendRequestsSent.Inc()
}

func (s *Session) sendReject(now time.Time, refSeq uint64, refMsgType string, reason codec.RejectReason, refTag int, text string) {
	rej := s.newAdmin(dict.MsgTypeReject)
	s.must(rej.SetSeqNum(dict.TagRefSeqNum, refSeq))
	if text != "" {
		s.must(rej.SetString(dict.TagText, text))
	}
	if s.cfg.Version >= dict.FIX42 {
		s.must(rej.SetInt(dict.TagSessionRejectReason, int64(reason)))
		if refTag > 0 {
			s.must(rej.SetInt(dict.TagRefTagID, int64(refTag)))
		}
		if refMsgType != "" {
			s.must(rej.SetString(dict.TagRefMsgType, refMsgType))
		}
	}
	if err := s.stampAndSend(now, rej); err != nil {
		s.fail("encoding reject: " + err.Error())
		return
	}
	RejectsSent.WithLabelValues(strconv.Itoa(int(reason))).Inc()
}

// serviceResend answers a peer ResendRequest for [from, to] (to == 0 means
// everything sent so far). Stored application messages are retransmitted
// with PossDupFlag and OrigSendingTime; administrative messages and anything
// no longer in the log are skipped over with a GapFill SequenceReset.
func (s *Session) serviceResend(now time.Time, from, to uint64) {
	if to == 0 || to >= s.nextOut {
		to = s.nextOut - 1
	}
	if from == 0 {
		from = 1
	}
	s.log.Info("servicing resend request", zap.Uint64("from", from), zap.Uint64("to", to))

	gapStart := uint64(0)
	flushGap := func(nextSeq uint64) {
		if gapStart == 0 {
			return
		}
		gf := s.newAdmin(dict.MsgTypeSequenceReset)
		s.must(gf.SetBool(dict.TagGapFillFlag, true))
		s.must(gf.SetSeqNum(dict.TagNewSeqNo, nextSeq))
		s.resendFrame(now, gapStart, gf, now)
		gapStart = 0
	}

	for seq := from; seq <= to; seq++ {
		entry, ok := s.sent.Get(seq)
		if !ok || isAdmin(entry.msg.MsgType()) {
			if gapStart == 0 {
				gapStart = seq
			}
			continue
		}
		flushGap(seq)
		s.resendFrame(now, seq, entry.msg, entry.sendingTime)
	}
	flushGap(to + 1)
}

// resendFrame re-encodes a message under its original sequence number with
// the duplicate markers set. The outbound counter does not move.
func (s *Session) resendFrame(now time.Time, seq uint64, m *codec.Message, origSendingTime time.Time) {
	s.must(m.SetString(dict.TagSenderCompID, s.cfg.SenderCompID))
	s.must(m.SetString(dict.TagTargetCompID, s.cfg.TargetCompID))
	s.must(m.SetSeqNum(dict.TagMsgSeqNum, seq))
	s.must(m.SetBool(dict.TagPossDupFlag, true))
	s.must(m.SetTime(dict.TagOrigSendingTime, origSendingTime))
	s.must(m.SetTime(dict.TagSendingTime, now))

	frame, err := codec.Encode(nil, m)
	if err != nil {
		s.fail("encoding retransmission: " + err.Error())
		return
	}
	s.outbound = append(s.outbound, frame)
	s.lastOut = now
	MessagesSent.WithLabelValues(m.MsgType()).Inc()
}

func isAdmin(msgType string) bool {
	switch msgType {
	case dict.MsgTypeHeartbeat, dict.MsgTypeTestRequest, dict.MsgTypeResendRequest,
		dict.MsgTypeReject, dict.MsgTypeSequenceReset, dict.MsgTypeLogout, dict.MsgTypeLogon:
		return true
	}
	return false
}
