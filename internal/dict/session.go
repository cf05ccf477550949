package dict

import (
	"sync"

	"github.com/Aidin1998/fixengine/internal/fixtype"
)

// Message type codes for the session-level messages the engine produces and
// consumes itself. Application message codes are ordinary dictionary data.
const (
	MsgTypeHeartbeat     = "0"
	MsgTypeTestRequest   = "1"
	MsgTypeResendRequest = "2"
	MsgTypeReject        = "3"
	MsgTypeSequenceReset = "4"
	MsgTypeLogout        = "5"
	MsgTypeLogon         = "A"
	MsgTypeEmail         = "C"
	MsgTypeNewOrderSingle = "D"
)

// Session-relevant tags beyond the ones in field.go.
const (
	TagBeginSeqNo        = 7
	TagEndSeqNo          = 16
	TagNewSeqNo          = 36
	TagRefSeqNum         = 45
	TagEncryptMethod     = 98
	TagHeartBtInt        = 108
	TagTestReqID         = 112
	TagGapFillFlag       = 123
	TagResetSeqNumFlag   = 141
	TagRefTagID          = 371
	TagRefMsgType        = 372
	TagSessionRejectReason = 373
	TagDefaultApplVerID  = 1137
)

// Plain fields shared by every version. Fields whose rule references a
// per-version group schema are built inside buildSession instead.
var (
	fldAccount          = &FieldDef{Tag: 1, Name: "Account", Type: fixtype.KindString}
	fldBeginSeqNo       = &FieldDef{Tag: TagBeginSeqNo, Name: "BeginSeqNo", Type: fixtype.KindSeqNum}
	fldClOrdID          = &FieldDef{Tag: 11, Name: "ClOrdID", Type: fixtype.KindString}
	fldCurrency         = &FieldDef{Tag: 15, Name: "Currency", Type: fixtype.KindString}
	fldEndSeqNo         = &FieldDef{Tag: TagEndSeqNo, Name: "EndSeqNo", Type: fixtype.KindSeqNum}
	fldHandlInst        = &FieldDef{Tag: 21, Name: "HandlInst", Type: fixtype.KindChar}
	fldMsgSeqNum        = &FieldDef{Tag: TagMsgSeqNum, Name: "MsgSeqNum", Type: fixtype.KindSeqNum}
	fldNewSeqNo         = &FieldDef{Tag: TagNewSeqNo, Name: "NewSeqNo", Type: fixtype.KindSeqNum}
	fldOrderQty         = &FieldDef{Tag: 38, Name: "OrderQty", Type: fixtype.KindFloat}
	fldOrdType          = &FieldDef{Tag: 40, Name: "OrdType", Type: fixtype.KindChar}
	fldOrigTime         = &FieldDef{Tag: 42, Name: "OrigTime", Type: fixtype.KindUTCTimestamp}
	fldPossDupFlag      = &FieldDef{Tag: TagPossDupFlag, Name: "PossDupFlag", Type: fixtype.KindBool}
	fldPrice            = &FieldDef{Tag: 44, Name: "Price", Type: fixtype.KindFloat}
	fldRefSeqNum        = &FieldDef{Tag: TagRefSeqNum, Name: "RefSeqNum", Type: fixtype.KindSeqNum}
	fldSenderCompID     = &FieldDef{Tag: TagSenderCompID, Name: "SenderCompID", Type: fixtype.KindString}
	fldSenderSubID      = &FieldDef{Tag: 50, Name: "SenderSubID", Type: fixtype.KindString}
	fldSendingTime      = &FieldDef{Tag: TagSendingTime, Name: "SendingTime", Type: fixtype.KindUTCTimestamp}
	fldSide             = &FieldDef{Tag: 54, Name: "Side", Type: fixtype.KindChar}
	fldSymbol           = &FieldDef{Tag: 55, Name: "Symbol", Type: fixtype.KindString}
	fldTargetCompID     = &FieldDef{Tag: TagTargetCompID, Name: "TargetCompID", Type: fixtype.KindString}
	fldTargetSubID      = &FieldDef{Tag: 57, Name: "TargetSubID", Type: fixtype.KindString}
	fldText             = &FieldDef{Tag: TagText, Name: "Text", Type: fixtype.KindString}
	fldTimeInForce      = &FieldDef{Tag: 59, Name: "TimeInForce", Type: fixtype.KindChar}
	fldTransactTime     = &FieldDef{Tag: 60, Name: "TransactTime", Type: fixtype.KindUTCTimestamp}
	fldSettlDate        = &FieldDef{Tag: 64, Name: "SettlDate", Type: fixtype.KindLocalDate}
	fldSignature        = &FieldDef{Tag: 89, Name: "Signature", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 93}}
	fldSecureDataLen    = &FieldDef{Tag: 90, Name: "SecureDataLen", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 91}}
	fldSecureData       = &FieldDef{Tag: 91, Name: "SecureData", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 90}}
	fldSignatureLength  = &FieldDef{Tag: 93, Name: "SignatureLength", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 89}}
	fldEmailType        = &FieldDef{Tag: 94, Name: "EmailType", Type: fixtype.KindChar}
	fldRawDataLength    = &FieldDef{Tag: 95, Name: "RawDataLength", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 96}}
	fldRawData          = &FieldDef{Tag: 96, Name: "RawData", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 95}}
	fldPossResend       = &FieldDef{Tag: 97, Name: "PossResend", Type: fixtype.KindBool}
	fldEncryptMethod    = &FieldDef{Tag: TagEncryptMethod, Name: "EncryptMethod", Type: fixtype.KindInt}
	fldHeartBtInt       = &FieldDef{Tag: TagHeartBtInt, Name: "HeartBtInt", Type: fixtype.KindInt}
	fldMinQty           = &FieldDef{Tag: 110, Name: "MinQty", Type: fixtype.KindFloat}
	fldTestReqID        = &FieldDef{Tag: TagTestReqID, Name: "TestReqID", Type: fixtype.KindString}
	fldOnBehalfOfCompID = &FieldDef{Tag: 115, Name: "OnBehalfOfCompID", Type: fixtype.KindString}
	fldOnBehalfOfSubID  = &FieldDef{Tag: 116, Name: "OnBehalfOfSubID", Type: fixtype.KindString}
	fldOrigSendingTime  = &FieldDef{Tag: TagOrigSendingTime, Name: "OrigSendingTime", Type: fixtype.KindUTCTimestamp}
	fldGapFillFlag      = &FieldDef{Tag: TagGapFillFlag, Name: "GapFillFlag", Type: fixtype.KindBool}
	fldDeliverToCompID  = &FieldDef{Tag: 128, Name: "DeliverToCompID", Type: fixtype.KindString}
	fldDeliverToSubID   = &FieldDef{Tag: 129, Name: "DeliverToSubID", Type: fixtype.KindString}
	fldResetSeqNumFlag  = &FieldDef{Tag: TagResetSeqNumFlag, Name: "ResetSeqNumFlag", Type: fixtype.KindBool}
	fldSenderLocationID = &FieldDef{Tag: 142, Name: "SenderLocationID", Type: fixtype.KindString}
	fldTargetLocationID = &FieldDef{Tag: 143, Name: "TargetLocationID", Type: fixtype.KindString}
	fldOnBehalfOfLocationID = &FieldDef{Tag: 144, Name: "OnBehalfOfLocationID", Type: fixtype.KindString}
	fldDeliverToLocationID  = &FieldDef{Tag: 145, Name: "DeliverToLocationID", Type: fixtype.KindString}
	fldEmailThreadID    = &FieldDef{Tag: 164, Name: "EmailThreadID", Type: fixtype.KindString}
	fldSubject          = &FieldDef{Tag: 147, Name: "Subject", Type: fixtype.KindString}
	fldXmlDataLen       = &FieldDef{Tag: 212, Name: "XmlDataLen", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 213}}
	fldXmlData          = &FieldDef{Tag: 213, Name: "XmlData", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 212}}
	fldMessageEncoding  = &FieldDef{Tag: 347, Name: "MessageEncoding", Type: fixtype.KindString}
	fldEncodedTextLen   = &FieldDef{Tag: 354, Name: "EncodedTextLen", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 355}}
	fldEncodedText      = &FieldDef{Tag: 355, Name: "EncodedText", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 354}}
	fldLastMsgSeqNumProcessed = &FieldDef{Tag: 369, Name: "LastMsgSeqNumProcessed", Type: fixtype.KindSeqNum}
	fldOnBehalfOfSendingTime  = &FieldDef{Tag: 370, Name: "OnBehalfOfSendingTime", Type: fixtype.KindUTCTimestamp}
	fldRefTagID         = &FieldDef{Tag: TagRefTagID, Name: "RefTagID", Type: fixtype.KindInt}
	fldRefMsgType       = &FieldDef{Tag: TagRefMsgType, Name: "RefMsgType", Type: fixtype.KindString}
	fldSessionRejectReason = &FieldDef{Tag: TagSessionRejectReason, Name: "SessionRejectReason", Type: fixtype.KindInt}
	fldMaxMessageSize   = &FieldDef{Tag: 383, Name: "MaxMessageSize", Type: fixtype.KindInt}
	fldMsgDirection     = &FieldDef{Tag: 385, Name: "MsgDirection", Type: fixtype.KindChar}
	fldTestMessageIndicator = &FieldDef{Tag: 464, Name: "TestMessageIndicator", Type: fixtype.KindBool}
	fldUsername         = &FieldDef{Tag: 553, Name: "Username", Type: fixtype.KindString}
	fldPassword         = &FieldDef{Tag: 554, Name: "Password", Type: fixtype.KindString}
	fldHopCompID        = &FieldDef{Tag: 628, Name: "HopCompID", Type: fixtype.KindString}
	fldHopSendingTime   = &FieldDef{Tag: 629, Name: "HopSendingTime", Type: fixtype.KindUTCTimestamp}
	fldHopRefID         = &FieldDef{Tag: 630, Name: "HopRefID", Type: fixtype.KindSeqNum}
	fldNextExpectedMsgSeqNum = &FieldDef{Tag: 789, Name: "NextExpectedMsgSeqNum", Type: fixtype.KindSeqNum}
	fldNewPassword      = &FieldDef{Tag: 925, Name: "NewPassword", Type: fixtype.KindString}
	fldApplVerID        = &FieldDef{Tag: TagApplVerID, Name: "ApplVerID", Type: fixtype.KindString}
	fldCstmApplVerID    = &FieldDef{Tag: 1129, Name: "CstmApplVerID", Type: fixtype.KindString}
	fldRefApplVerID     = &FieldDef{Tag: 1130, Name: "RefApplVerID", Type: fixtype.KindString}
	fldRefCstmApplVerID = &FieldDef{Tag: 1131, Name: "RefCstmApplVerID", Type: fixtype.KindString}
	fldDefaultApplVerID = &FieldDef{Tag: TagDefaultApplVerID, Name: "DefaultApplVerID", Type: fixtype.KindString}
	fldDefaultApplExtID = &FieldDef{Tag: 1140, Name: "DefaultApplExtID", Type: fixtype.KindInt}
	fldApplExtID        = &FieldDef{Tag: 1156, Name: "ApplExtID", Type: fixtype.KindInt}
	fldEncryptedPasswordMethod = &FieldDef{Tag: 1400, Name: "EncryptedPasswordMethod", Type: fixtype.KindInt}
	fldEncryptedPasswordLen    = &FieldDef{Tag: 1401, Name: "EncryptedPasswordLen", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 1402}}
	fldEncryptedPassword       = &FieldDef{Tag: 1402, Name: "EncryptedPassword", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 1401}}
	fldEncryptedNewPasswordLen = &FieldDef{Tag: 1403, Name: "EncryptedNewPasswordLen", Type: fixtype.KindNone, Rule: Rule{Kind: RulePrepareForBytes, Tag: 1404}}
	fldEncryptedNewPassword    = &FieldDef{Tag: 1404, Name: "EncryptedNewPassword", Type: fixtype.KindData, Rule: Rule{Kind: RuleConfirmPreviousTag, Tag: 1403}}
	fldRefApplExtID     = &FieldDef{Tag: 1406, Name: "RefApplExtID", Type: fixtype.KindInt}
	fldSessionStatus    = &FieldDef{Tag: 1409, Name: "SessionStatus", Type: fixtype.KindInt}
)

// row is a version-gated layout entry used by the static tables below.
type row struct {
	ref  FieldRef
	from Version
	to   Version // inclusive
}

func opt(f *FieldDef) row      { return row{ref: FieldRef{Field: f}, to: FIX50SP2} }
func req(f *FieldDef) row      { return row{ref: FieldRef{Field: f, Required: true}, to: FIX50SP2} }
func (r row) since(v Version) row { r.from = v; return r }
func (r row) until(v Version) row { r.to = v; return r }

// gate flattens rows into the layout for one version.
func gate(v Version, rows ...row) []FieldRef {
	out := make([]FieldRef, 0, len(rows))
	for _, r := range rows {
		if v >= r.from && v <= r.to {
			out = append(out, r.ref)
		}
	}
	return out
}

var (
	sessionOnce  [versionCount]sync.Once
	sessionDicts [versionCount]*Dictionary
)

// Session returns the built-in dictionary for one application version: the
// seven administrative message types plus a small set of application
// messages. Dictionaries are built on first use and shared; they are
// immutable.
func Session(v Version) *Dictionary {
	sessionOnce[v].Do(func() {
		sessionDicts[v] = buildSession(v)
	})
	return sessionDicts[v]
}

// headerRows is the FIXT standard header from SenderCompID onward.
// BeginString, BodyLength, and MsgType are handled by the codec envelope and
// never appear in layouts. Administrative messages omit the ApplVerID block:
// they always use the transport's own version.
func headerRows(v Version, admin bool, hopGrp *MessageDef) []FieldRef {
	rows := []row{
		req(fldSenderCompID),
		req(fldTargetCompID),
	}
	// Application messages may carry the ApplVerID block. It only means
	// something on a FIXT transport, but a message decoded under an
	// overridden application version still has it in its header, so every
	// version's layout admits it.
	if !admin {
		rows = append(rows,
			opt(fldApplVerID),
			opt(fldApplExtID).since(FIX50SP1),
			opt(fldCstmApplVerID),
		)
	}
	rows = append(rows,
		opt(fldOnBehalfOfCompID),
		opt(fldDeliverToCompID),
		opt(fldSecureDataLen),
		opt(fldSecureData),
		req(fldMsgSeqNum),
		opt(fldSenderSubID),
		opt(fldSenderLocationID).since(FIX41),
		opt(fldTargetSubID),
		opt(fldTargetLocationID).since(FIX41),
		opt(fldOnBehalfOfSubID),
		opt(fldOnBehalfOfLocationID).since(FIX41),
		opt(fldDeliverToSubID),
		opt(fldDeliverToLocationID).since(FIX41),
		opt(fldPossDupFlag),
		opt(fldPossResend),
		req(fldSendingTime),
		opt(fldOrigSendingTime),
		opt(fldXmlDataLen).since(FIX42),
		opt(fldXmlData).since(FIX42),
		opt(fldMessageEncoding).since(FIX42),
		opt(fldLastMsgSeqNumProcessed).since(FIX42),
		opt(fldOnBehalfOfSendingTime).since(FIX42).until(FIX43),
	)
	if hopGrp != nil {
		noHops := &FieldDef{Tag: 627, Name: "NoHops", Type: fixtype.KindGroup, Rule: Rule{Kind: RuleBeginGroup, Group: hopGrp}}
		rows = append(rows, opt(noHops).since(FIX43))
	}
	return gate(v, rows...)
}

func trailerRows(v Version) []FieldRef {
	return gate(v,
		opt(fldSignatureLength),
		opt(fldSignature),
	)
}

func buildSession(v Version) *Dictionary {
	b := NewBuilder(v)

	var hopGrp *MessageDef
	if v >= FIX43 {
		hopGrp = b.DefineGroup("HopGrp", gate(v,
			req(fldHopCompID),
			opt(fldHopSendingTime),
			opt(fldHopRefID),
		))
	}

	msg := func(msgType, name string, admin bool, body ...row) {
		refs := headerRows(v, admin, hopGrp)
		refs = append(refs, gate(v, body...)...)
		refs = append(refs, trailerRows(v)...)
		b.DefineMessage(msgType, name, refs)
	}

	msg(MsgTypeHeartbeat, "Heartbeat", true,
		opt(fldTestReqID),
	)

	msg(MsgTypeTestRequest, "TestRequest", true,
		req(fldTestReqID),
	)

	msg(MsgTypeResendRequest, "ResendRequest", true,
		req(fldBeginSeqNo),
		req(fldEndSeqNo),
	)

	msg(MsgTypeReject, "Reject", true,
		req(fldRefSeqNum),
		opt(fldRefTagID).since(FIX42),
		opt(fldRefMsgType).since(FIX42),
		opt(fldRefApplVerID).since(FIX50SP1),
		opt(fldRefApplExtID).since(FIX50SP1),
		opt(fldRefCstmApplVerID).since(FIX50SP1),
		opt(fldSessionRejectReason).since(FIX42),
		opt(fldText),
		opt(fldEncodedTextLen).since(FIX42),
		opt(fldEncodedText).since(FIX42),
	)

	msg(MsgTypeSequenceReset, "SequenceReset", true,
		opt(fldGapFillFlag),
		req(fldNewSeqNo),
	)

	msg(MsgTypeLogout, "Logout", true,
		opt(fldSessionStatus).since(FIX50SP1),
		opt(fldText),
		opt(fldEncodedTextLen).since(FIX42),
		opt(fldEncodedText).since(FIX42),
	)

	var msgTypeGrp *MessageDef
	if v >= FIX42 {
		msgTypeGrp = b.DefineGroup("MsgTypeGrp", gate(v,
			req(fldRefMsgType),
			opt(fldMsgDirection),
			opt(fldRefApplVerID).since(FIX50SP1),
		))
	}
	logonBody := []row{
		req(fldEncryptMethod),
		req(fldHeartBtInt),
		opt(fldRawDataLength),
		opt(fldRawData),
		opt(fldResetSeqNumFlag).since(FIX41),
		opt(fldNextExpectedMsgSeqNum).since(FIX44),
		opt(fldMaxMessageSize).since(FIX42),
	}
	if msgTypeGrp != nil {
		noMsgTypes := &FieldDef{Tag: 384, Name: "NoMsgTypes", Type: fixtype.KindGroup, Rule: Rule{Kind: RuleBeginGroup, Group: msgTypeGrp}}
		logonBody = append(logonBody, opt(noMsgTypes).since(FIX42))
	}
	logonBody = append(logonBody,
		opt(fldTestMessageIndicator).since(FIX43),
		opt(fldUsername).since(FIX43),
		opt(fldPassword).since(FIX43),
		opt(fldNewPassword).since(FIX50SP1),
		opt(fldEncryptedPasswordMethod).since(FIX50SP1),
		opt(fldEncryptedPasswordLen).since(FIX50SP1),
		opt(fldEncryptedPassword).since(FIX50SP1),
		opt(fldEncryptedNewPasswordLen).since(FIX50SP1),
		opt(fldEncryptedNewPassword).since(FIX50SP1),
		opt(fldSessionStatus).since(FIX50SP1),
		req(fldDefaultApplVerID).since(FIX50),
		opt(fldDefaultApplExtID).since(FIX50SP1),
		opt(fldText).since(FIX50SP1),
		opt(fldEncodedTextLen).since(FIX50SP1),
		opt(fldEncodedText).since(FIX50SP1),
	)
	msg(MsgTypeLogon, "Logon", true, logonBody...)

	linesOfTextGrp := b.DefineGroup("LinesOfTextGrp", gate(v,
		req(fldText),
		opt(fldEncodedTextLen).since(FIX42),
		opt(fldEncodedText).since(FIX42),
	))
	noLinesOfText := &FieldDef{Tag: 33, Name: "NoLinesOfText", Type: fixtype.KindGroup, Rule: Rule{Kind: RuleBeginGroup, Group: linesOfTextGrp}}
	msg(MsgTypeEmail, "Email", false,
		req(fldEmailThreadID).since(FIX41),
		req(fldEmailType),
		opt(fldOrigTime),
		req(fldSubject).since(FIX41),
		req(noLinesOfText),
		opt(fldRawDataLength),
		opt(fldRawData),
	)

	msg(MsgTypeNewOrderSingle, "NewOrderSingle", false,
		req(fldClOrdID),
		opt(fldAccount),
		opt(fldSettlDate),
		opt(fldHandlInst),
		opt(fldMinQty),
		req(fldSymbol),
		req(fldSide),
		req(fldTransactTime),
		req(fldOrderQty),
		req(fldOrdType),
		opt(fldPrice),
		opt(fldCurrency),
		opt(fldTimeInForce),
	)

	return b.MustBuild()
}
