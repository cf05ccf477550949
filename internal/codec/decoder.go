package codec

import (
	"bytes"

	"github.com/Aidin1998/fixengine/internal/dict"
	"github.com/Aidin1998/fixengine/internal/fixtype"
)

// Messages are framed by BodyLength, so a lying BodyLength could stall the
// read loop forever waiting for bytes that never come. Anything claiming a
// body over the bound is treated as garbled instead.
const defaultMaxBodyLength = 1 << 20

// Decoder splits a byte stream into messages for one session. It is stateless
// between calls and safe to share across goroutines.
type Decoder struct {
	appVersion dict.Version
	dictFor    func(dict.Version) *dict.Dictionary

	// MaxBodyLength caps the BodyLength a frame may claim. Zero means the
	// package default of 1 MiB.
	MaxBodyLength int
}

// NewDecoder returns a decoder resolving message schemas from the built-in
// session dictionaries. appVersion is the application version assumed for a
// FIXT transport when a message carries no ApplVerID of its own; for classic
// FIX 4.x transports the BeginString alone selects the version.
func NewDecoder(appVersion dict.Version) *Decoder {
	return NewDecoderWith(appVersion, dict.Session)
}

// NewDecoderWith is NewDecoder with a custom per-version dictionary source.
func NewDecoderWith(appVersion dict.Version, dictFor func(dict.Version) *dict.Dictionary) *Decoder {
	return &Decoder{appVersion: appVersion, dictFor: dictFor}
}

type rawField struct {
	tag int
	val []byte
}

// Decode extracts the first complete message from buf. consumed is the number
// of leading bytes the caller can discard: on success the whole message plus
// any garbage before it, on ErrNeedMoreData just the garbage, and on a decode
// error the bytes of the failed message. Message-level failures come back as
// *MessageError; framing failures as *EnvelopeError.
func (d *Decoder) Decode(buf []byte) (msg *Message, consumed int, err error) {
	start, found := findStart(buf)
	if !found {
		return nil, start, ErrNeedMoreData
	}

	// 8=BeginString
	bsEnd := bytes.IndexByte(buf[start+2:], soh)
	if bsEnd < 0 {
		return nil, start, ErrNeedMoreData
	}
	beginString := string(buf[start+2 : start+2+bsEnd])
	p := start + 2 + bsEnd + 1

	// 9=BodyLength
	if p+2 > len(buf) {
		return nil, start, ErrNeedMoreData
	}
	if buf[p] != '9' || buf[p+1] != '=' {
		return nil, start + 1, envelopeErrorf("BodyLength must follow BeginString")
	}
	maxBody := d.MaxBodyLength
	if maxBody <= 0 {
		maxBody = defaultMaxBodyLength
	}
	p += 2
	bodyLen := 0
	digits := 0
	for p < len(buf) && buf[p] >= '0' && buf[p] <= '9' {
		bodyLen = bodyLen*10 + int(buf[p]-'0')
		digits++
		p++
		if bodyLen > maxBody {
			return nil, start + 1, envelopeErrorf("BodyLength %d exceeds limit %d", bodyLen, maxBody)
		}
	}
	if p >= len(buf) {
		return nil, start, ErrNeedMoreData
	}
	if digits == 0 || buf[p] != soh {
		return nil, start + 1, envelopeErrorf("malformed BodyLength")
	}
	bodyStart := p + 1
	total := bodyStart + bodyLen + 7 // "10=" + 3 digits + SOH
	if total > len(buf) {
		return nil, start, ErrNeedMoreData
	}

	// 10=CheckSum
	trailer := buf[total-7 : total]
	if trailer[0] != '1' || trailer[1] != '0' || trailer[2] != '=' || trailer[6] != soh ||
		!isDigit(trailer[3]) || !isDigit(trailer[4]) || !isDigit(trailer[5]) {
		return nil, total, envelopeErrorf("malformed CheckSum trailer")
	}
	want := int(trailer[3]-'0')*100 + int(trailer[4]-'0')*10 + int(trailer[5]-'0')
	if got := int(checksum(buf[start : total-7])); got != want {
		return nil, total, envelopeErrorf("CheckSum mismatch: message sums to %d, trailer says %d", got, want)
	}

	transportVer, ok := dict.VersionFromBeginString(beginString, d.appVersion)
	if !ok {
		return nil, total, envelopeErrorf("unknown BeginString %q", beginString)
	}

	msg, err = d.assemble(transportVer, buf[bodyStart:total-7])
	return msg, total, err
}

// findStart locates the first plausible message start: "8=" at the buffer
// start or right after a SOH. Without one it reports how many bytes are
// definitely garbage, keeping a trailing '8' that may yet become "8=".
func findStart(buf []byte) (int, bool) {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '8' && buf[i+1] == '=' && (i == 0 || buf[i-1] == soh) {
			return i, true
		}
	}
	if n := len(buf); n > 0 && buf[n-1] == '8' && (n == 1 || buf[n-2] == soh) {
		return n - 1, false
	}
	return len(buf), false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (d *Decoder) assemble(transportVer dict.Version, body []byte) (*Message, error) {
	dc := d.dictFor(transportVer)

	raw, err := splitFields(body, dc)
	if err != nil {
		if _, ok := err.(*EnvelopeError); ok {
			return nil, err
		}
		return nil, &MessageError{MsgType: rawMsgType(raw), SeqNum: rawSeqNum(raw), Err: err}
	}
	msgType := rawMsgType(raw)
	seqNum := rawSeqNum(raw)

	if len(raw) == 0 || raw[0].tag != dict.TagMsgType {
		return nil, envelopeErrorf("MsgType must be the first field after BodyLength")
	}

	// FIXT fixes the header prefix: SenderCompID fourth on the wire,
	// TargetCompID fifth, ApplVerID sixth when present. A present ApplVerID
	// overrides the session's default application version.
	if transportVer.FIXT() {
		if len(raw) < 2 || raw[1].tag != dict.TagSenderCompID {
			return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: schemaErrorf(
				msgType, dict.TagSenderCompID, RejectTagOutOfOrder, "SenderCompID must be the fourth field")}
		}
		if len(raw) < 3 || raw[2].tag != dict.TagTargetCompID {
			return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: schemaErrorf(
				msgType, dict.TagTargetCompID, RejectTagOutOfOrder, "TargetCompID must be the fifth field")}
		}
		for k, rf := range raw {
			if rf.tag != dict.TagApplVerID {
				continue
			}
			if k != 3 {
				return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: schemaErrorf(
					msgType, dict.TagApplVerID, RejectTagOutOfOrder, "ApplVerID must be the sixth field")}
			}
			over, ok := dict.VersionFromApplVerID(string(rf.val))
			if !ok {
				return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: fieldValueErrorf(
					dict.TagApplVerID, RejectValueIncorrectForTag, "unknown ApplVerID %q", rf.val)}
			}
			dc = d.dictFor(over)
			break
		}
	}

	def, ok := dc.Message(msgType)
	if !ok {
		return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: schemaErrorf(
			msgType, 0, RejectInvalidMsgType, "unknown message type")}
	}

	msg := newMessage(def)
	end, err := parseInto(dc, msg, raw, 1, true)
	if err != nil {
		return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: err}
	}
	if end != len(raw) {
		return nil, &MessageError{MsgType: msgType, SeqNum: seqNum, Err: schemaErrorf(
			msgType, raw[end].tag, RejectTagNotDefinedForMessage, "tag not in message layout")}
	}
	return msg, nil
}

// splitFields cuts the body into tag=value pairs. Structural rules for length
// prefixes are applied here: after a PrepareForBytes field, the paired data
// field's value is taken as exactly that many bytes, so SOH bytes inside raw
// data never split a field.
func splitFields(body []byte, dc *dict.Dictionary) ([]rawField, error) {
	var raw []rawField
	pendTag, pendLen := 0, -1
	i := 0
	for i < len(body) {
		tag := 0
		j := i
		for j < len(body) && isDigit(body[j]) {
			tag = tag*10 + int(body[j]-'0')
			j++
			if tag > 1<<24 {
				return raw, envelopeErrorf("tag number out of range")
			}
		}
		if j == i || j >= len(body) || body[j] != '=' || tag == 0 {
			return raw, envelopeErrorf("malformed tag at body offset %d", i)
		}
		j++

		var val []byte
		switch {
		case pendLen >= 0 && tag == pendTag:
			if j+pendLen >= len(body) || body[j+pendLen] != soh {
				return raw, fieldValueErrorf(tag, RejectIncorrectDataFormat,
					"raw data length %d overruns the message body", pendLen)
			}
			val = body[j : j+pendLen]
			i = j + pendLen + 1
			pendLen = -1
		case pendLen >= 0:
			return raw, schemaErrorf("", pendTag, RejectTagOutOfOrder,
				"data field %d must immediately follow its length field", pendTag)
		default:
			if fd, ok := dc.Field(tag); ok && fd.Rule.Kind == dict.RuleConfirmPreviousTag {
				return raw, schemaErrorf("", tag, RejectTagOutOfOrder,
					"data field %d without its length field %d", tag, fd.Rule.Tag)
			}
			k := bytes.IndexByte(body[j:], soh)
			if k < 0 {
				return raw, envelopeErrorf("unterminated field %d", tag)
			}
			val = body[j : j+k]
			i = j + k + 1
		}

		if fd, ok := dc.Field(tag); ok && fd.Rule.Kind == dict.RulePrepareForBytes {
			n, err := fixtype.ParseInt(val)
			if err != nil || n < 0 {
				return raw, fieldValueErrorf(tag, RejectIncorrectDataFormat, "invalid length prefix %q", val)
			}
			pendTag, pendLen = fd.Rule.Tag, int(n)
		}
		raw = append(raw, rawField{tag: tag, val: val})
	}
	if pendLen >= 0 {
		return raw, schemaErrorf("", pendTag, RejectTagOutOfOrder,
			"length field declared but data field %d never arrived", pendTag)
	}
	return raw, nil
}

func rawMsgType(raw []rawField) string {
	if len(raw) > 0 && raw[0].tag == dict.TagMsgType {
		return string(raw[0].val)
	}
	return ""
}

func rawSeqNum(raw []rawField) uint64 {
	for _, rf := range raw {
		if rf.tag == dict.TagMsgSeqNum {
			n, err := fixtype.ParseSeqNum(rf.val)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}

// parseInto fills msg from raw[from:] and returns the index of the first
// entry it did not consume. At the top level every entry must belong to the
// schema; inside a group instance, a foreign tag or a repeat of the group's
// first tag ends the instance instead.
func parseInto(dc *dict.Dictionary, msg *Message, raw []rawField, from int, top bool) (int, error) {
	msgType := msg.def.MsgType
	seen := make(map[int]bool)
	i := from
	for i < len(raw) {
		tag := raw[i].tag
		ref, inSchema := msg.def.Field(tag)
		if !inSchema {
			if !top {
				break
			}
			if _, known := dc.Field(tag); known {
				return i, schemaErrorf(msgType, tag, RejectTagNotDefinedForMessage, "tag not in message layout")
			}
			return i, schemaErrorf(msgType, tag, RejectInvalidTagNumber, "tag not defined")
		}
		if !top && tag == msg.def.FirstTag() && len(seen) > 0 {
			break
		}
		if seen[tag] {
			return i, schemaErrorf(msgType, tag, RejectTagAppearsMoreThanOnce, "tag appears more than once")
		}
		seen[tag] = true
		f := ref.Field

		switch {
		case f.Rule.Kind == dict.RulePrepareForBytes:
			// Length prefixes are structural only; splitFields already
			// consumed the byte count. The data field carries the value.
			i++
		case f.Type == fixtype.KindGroup:
			count, err := fixtype.ParseInt(raw[i].val)
			if err != nil || count < 0 {
				return i, fieldValueErrorf(tag, RejectIncorrectDataFormat, "invalid NumInGroup %q", raw[i].val)
			}
			i++
			grp := f.Rule.Group
			insts := []*Message{}
			for i < len(raw) && raw[i].tag == grp.FirstTag() {
				inst := newMessage(grp)
				i, err = parseInto(dc, inst, raw, i, false)
				if err != nil {
					return i, err
				}
				insts = append(insts, inst)
			}
			if int(count) != len(insts) {
				return i, schemaErrorf(msgType, tag, RejectIncorrectNumInGroupCount,
					"NumInGroup says %d, found %d instances", count, len(insts))
			}
			msg.fields[tag] = GroupValue(insts)
		default:
			v, err := parseValue(f, raw[i].val)
			if err != nil {
				return i, err
			}
			msg.fields[tag] = v
			i++
		}
	}

	for _, ref := range msg.def.Fields() {
		if ref.Required && !msg.Has(ref.Field.Tag) && ref.Field.Rule.Kind != dict.RulePrepareForBytes {
			return i, schemaErrorf(msgType, ref.Field.Tag, RejectRequiredTagMissing,
				"required field %s (%d) missing", ref.Field.Name, ref.Field.Tag)
		}
	}
	return i, nil
}

func parseValue(f *dict.FieldDef, val []byte) (Value, error) {
	if len(val) == 0 && !f.Type.AcceptsEmpty() {
		return Value{}, fieldValueErrorf(f.Tag, RejectTagSpecifiedWithoutValue, "empty value")
	}
	switch f.Type {
	case fixtype.KindInt:
		n, err := fixtype.ParseInt(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return IntValue(n), nil
	case fixtype.KindSeqNum:
		n, err := fixtype.ParseSeqNum(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return SeqNumValue(n), nil
	case fixtype.KindFloat:
		n, err := fixtype.ParseFloat(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return FloatValue(n), nil
	case fixtype.KindString:
		s, err := fixtype.ParseString(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return StringValue(s), nil
	case fixtype.KindChar:
		c, err := fixtype.ParseChar(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return CharValue(c), nil
	case fixtype.KindBool:
		b, err := fixtype.ParseBool(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return BoolValue(b), nil
	case fixtype.KindData:
		return DataValue(append([]byte(nil), val...)), nil
	case fixtype.KindUTCTimestamp:
		ts, err := fixtype.ParseUTCTimestamp(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return TimeValue(ts), nil
	case fixtype.KindLocalDate:
		ts, err := fixtype.ParseLocalDate(val)
		if err != nil {
			return Value{}, fieldValueErrorf(f.Tag, RejectIncorrectDataFormat, "%v", err)
		}
		return DateValue(ts), nil
	}
	return Value{}, fieldValueErrorf(f.Tag, RejectOther, "field type %s cannot carry a value", f.Type)
}
