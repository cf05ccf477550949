// Package codec turns byte streams into typed messages and back. Decoding
// splits tag=value pairs, applies the structural rules declared in the
// dictionary (length prefixes, raw data, repeating groups), and validates the
// result against the message schema. Encoding walks the schema in order and
// reproduces the envelope exactly, BodyLength and CheckSum included.
package codec

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/fixengine/internal/dict"
	"github.com/Aidin1998/fixengine/internal/fixtype"
)

// Message is one FIX message (or one repeating-group instance) as a tag to
// value mapping validated against a schema. Field order on the wire is the
// schema's order, so the mapping loses nothing a conforming peer may rely on.
type Message struct {
	def    *dict.MessageDef
	fields map[int]Value
}

// New creates an empty message of the given type. The caller fills required
// fields before encoding.
func New(d *dict.Dictionary, msgType string) (*Message, error) {
	def, ok := d.Message(msgType)
	if !ok {
		return nil, schemaErrorf(msgType, 0, RejectInvalidMsgType, "unknown message type")
	}
	return newMessage(def), nil
}

func newMessage(def *dict.MessageDef) *Message {
	return &Message{def: def, fields: make(map[int]Value)}
}

func (m *Message) Def() *dict.MessageDef { return m.def }
func (m *Message) MsgType() string       { return m.def.MsgType }
func (m *Message) Version() dict.Version { return m.def.Version }

// Get returns the value stored for tag.
func (m *Message) Get(tag int) (Value, bool) {
	v, ok := m.fields[tag]
	return v, ok
}

// Has reports whether tag carries a value.
func (m *Message) Has(tag int) bool {
	_, ok := m.fields[tag]
	return ok
}

// Set stores a value for tag after checking it against the schema: the tag
// must be in the message's layout and the value's kind must match the field's
// declared type.
func (m *Message) Set(tag int, v Value) error {
	ref, ok := m.def.Field(tag)
	if !ok {
		return schemaErrorf(m.def.MsgType, tag, RejectTagNotDefinedForMessage, "tag not in message layout")
	}
	if ref.Field.Type != v.Kind() {
		return schemaErrorf(m.def.MsgType, tag, RejectValueIncorrectForTag,
			"value kind %s does not match field type %s", v.Kind(), ref.Field.Type)
	}
	m.fields[tag] = v
	return nil
}

// Unset removes a field. Removing an absent field is a no-op.
func (m *Message) Unset(tag int) {
	delete(m.fields, tag)
}

func (m *Message) SetInt(tag int, v int64) error            { return m.Set(tag, IntValue(v)) }
func (m *Message) SetSeqNum(tag int, v uint64) error        { return m.Set(tag, SeqNumValue(v)) }
func (m *Message) SetFloat(tag int, v decimal.Decimal) error { return m.Set(tag, FloatValue(v)) }
func (m *Message) SetString(tag int, v string) error        { return m.Set(tag, StringValue(v)) }
func (m *Message) SetChar(tag int, v byte) error            { return m.Set(tag, CharValue(v)) }
func (m *Message) SetBool(tag int, v bool) error            { return m.Set(tag, BoolValue(v)) }
func (m *Message) SetData(tag int, v []byte) error          { return m.Set(tag, DataValue(v)) }
func (m *Message) SetTime(tag int, v time.Time) error       { return m.Set(tag, TimeValue(v)) }
func (m *Message) SetDate(tag int, v time.Time) error       { return m.Set(tag, DateValue(v)) }

func (m *Message) Int(tag int) (int64, bool) {
	v, ok := m.fields[tag]
	return v.Int(), ok && v.Kind() == fixtype.KindInt
}

func (m *Message) SeqNum(tag int) (uint64, bool) {
	v, ok := m.fields[tag]
	return v.SeqNum(), ok && v.Kind() == fixtype.KindSeqNum
}

func (m *Message) Float(tag int) (decimal.Decimal, bool) {
	v, ok := m.fields[tag]
	return v.Float(), ok && v.Kind() == fixtype.KindFloat
}

func (m *Message) String(tag int) (string, bool) {
	v, ok := m.fields[tag]
	return v.Str(), ok && v.Kind() == fixtype.KindString
}

func (m *Message) Char(tag int) (byte, bool) {
	v, ok := m.fields[tag]
	return v.Char(), ok && v.Kind() == fixtype.KindChar
}

func (m *Message) Bool(tag int) (bool, bool) {
	v, ok := m.fields[tag]
	return v.Bool(), ok && v.Kind() == fixtype.KindBool
}

func (m *Message) Data(tag int) ([]byte, bool) {
	v, ok := m.fields[tag]
	return v.Data(), ok && v.Kind() == fixtype.KindData
}

func (m *Message) Time(tag int) (time.Time, bool) {
	v, ok := m.fields[tag]
	if !ok || (v.Kind() != fixtype.KindUTCTimestamp && v.Kind() != fixtype.KindLocalDate) {
		return time.Time{}, false
	}
	return v.Time(), true
}

func (m *Message) Groups(tag int) ([]*Message, bool) {
	v, ok := m.fields[tag]
	return v.Groups(), ok && v.Kind() == fixtype.KindGroup
}

// AddGroup appends one instance to the repeating group rooted at tag and
// returns it for the caller to populate. A zero-instance group is represented
// by setting GroupValue(nil) explicitly.
func (m *Message) AddGroup(tag int) (*Message, error) {
	ref, ok := m.def.Field(tag)
	if !ok {
		return nil, schemaErrorf(m.def.MsgType, tag, RejectTagNotDefinedForMessage, "tag not in message layout")
	}
	if ref.Field.Rule.Kind != dict.RuleBeginGroup || ref.Field.Rule.Group == nil {
		return nil, schemaErrorf(m.def.MsgType, tag, RejectValueIncorrectForTag, "tag is not a group count field")
	}
	inst := newMessage(ref.Field.Rule.Group)
	cur := m.fields[tag]
	m.fields[tag] = GroupValue(append(cur.Groups(), inst))
	return inst, nil
}
