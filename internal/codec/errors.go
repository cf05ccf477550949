package codec

import (
	"errors"
	"fmt"
)

// ErrNeedMoreData is returned by Decode when the buffer does not yet hold a
// complete message. The consumed count still tells the caller how many
// leading garbage bytes can be discarded.
var ErrNeedMoreData = errors.New("incomplete message, need more data")

// RejectReason is the SessionRejectReason (373) code carried on a session
// Reject. The values are fixed by FIXT v1.1.
type RejectReason int

const (
	RejectInvalidTagNumber        RejectReason = 0
	RejectRequiredTagMissing      RejectReason = 1
	RejectTagNotDefinedForMessage RejectReason = 2
	RejectTagSpecifiedWithoutValue RejectReason = 4
	RejectValueIncorrectForTag    RejectReason = 5
	RejectIncorrectDataFormat     RejectReason = 6
	RejectCompIDProblem           RejectReason = 9
	RejectSendingTimeAccuracy     RejectReason = 10
	RejectInvalidMsgType          RejectReason = 11
	RejectTagAppearsMoreThanOnce  RejectReason = 13
	RejectTagOutOfOrder           RejectReason = 14
	RejectIncorrectNumInGroupCount RejectReason = 16
	RejectOther                   RejectReason = 99
)

// FieldValueError reports field bytes that violate the field's type grammar.
// It is fatal to the containing message, never to the session.
type FieldValueError struct {
	Tag    int
	Reason RejectReason
	Detail string
}

func (e *FieldValueError) Error() string {
	return fmt.Sprintf("field %d: %s", e.Tag, e.Detail)
}

// SchemaError reports a message that violates its message schema: unknown
// MsgType, missing required field, a tag outside the schema, or a duplicate
// tag. The message is rejected; the session stays open.
type SchemaError struct {
	MsgType string
	Tag     int
	Reason  RejectReason
	Detail  string
}

func (e *SchemaError) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("message %q, tag %d: %s", e.MsgType, e.Tag, e.Detail)
	}
	return fmt.Sprintf("message %q: %s", e.MsgType, e.Detail)
}

// EnvelopeError reports a framing failure: bad BeginString, unparsable
// BodyLength, a missing or mismatched CheckSum, or envelope fields out of
// position. The bytes are unusable as a message.
type EnvelopeError struct {
	Detail string
}

func (e *EnvelopeError) Error() string {
	return "garbled message: " + e.Detail
}

// MessageError wraps a FieldValueError or SchemaError with the identifying
// context the session layer needs to build a Reject for the failed message.
type MessageError struct {
	MsgType string
	SeqNum  uint64 // 0 when MsgSeqNum itself could not be read
	Err     error
}

func (e *MessageError) Error() string {
	return e.Err.Error()
}

func (e *MessageError) Unwrap() error { return e.Err }

// ReasonOf extracts the reject reason and referenced tag from a decode error.
// Errors outside the codec taxonomy map to RejectOther.
func ReasonOf(err error) (RejectReason, int) {
	var fv *FieldValueError
	if errors.As(err, &fv) {
		return fv.Reason, fv.Tag
	}
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Reason, se.Tag
	}
	return RejectOther, 0
}

func fieldValueErrorf(tag int, reason RejectReason, format string, args ...any) error {
	return &FieldValueError{Tag: tag, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func schemaErrorf(msgType string, tag int, reason RejectReason, format string, args ...any) error {
	return &SchemaError{MsgType: msgType, Tag: tag, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func envelopeErrorf(format string, args ...any) error {
	return &EnvelopeError{Detail: fmt.Sprintf(format, args...)}
}
