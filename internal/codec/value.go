package codec

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/fixengine/internal/fixtype"
)

// Value is the decoded form of one field. The active member is selected by
// Kind; accessing another member returns that member's zero value.
type Value struct {
	kind   fixtype.Kind
	num    int64
	seq    uint64
	dec    decimal.Decimal
	str    string
	ch     byte
	flag   bool
	data   []byte
	t      time.Time
	groups []*Message
}

func IntValue(v int64) Value          { return Value{kind: fixtype.KindInt, num: v} }
func SeqNumValue(v uint64) Value      { return Value{kind: fixtype.KindSeqNum, seq: v} }
func FloatValue(v decimal.Decimal) Value { return Value{kind: fixtype.KindFloat, dec: v} }
func StringValue(v string) Value      { return Value{kind: fixtype.KindString, str: v} }
func CharValue(v byte) Value          { return Value{kind: fixtype.KindChar, ch: v} }
func BoolValue(v bool) Value          { return Value{kind: fixtype.KindBool, flag: v} }
func DataValue(v []byte) Value        { return Value{kind: fixtype.KindData, data: v} }
func TimeValue(v time.Time) Value     { return Value{kind: fixtype.KindUTCTimestamp, t: v} }
func DateValue(v time.Time) Value     { return Value{kind: fixtype.KindLocalDate, t: v} }
func GroupValue(v []*Message) Value   { return Value{kind: fixtype.KindGroup, groups: v} }

func (v Value) Kind() fixtype.Kind       { return v.kind }
func (v Value) Int() int64               { return v.num }
func (v Value) SeqNum() uint64           { return v.seq }
func (v Value) Float() decimal.Decimal   { return v.dec }
func (v Value) Str() string              { return v.str }
func (v Value) Char() byte               { return v.ch }
func (v Value) Bool() bool               { return v.flag }
func (v Value) Data() []byte             { return v.data }
func (v Value) Time() time.Time          { return v.t }
func (v Value) Groups() []*Message       { return v.groups }
