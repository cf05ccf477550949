// Package fixtype implements encoding and decoding of the primitive FIX
// field value types. Every function is pure: bytes in, Go value out (or the
// reverse), with strict grammar checking on the decode side. The wire codec
// layers tag/rule handling on top of these primitives.
package fixtype

import (
	"fmt"
	"strconv"
)

// Kind identifies the primitive value type of a FIX field.
type Kind int

const (
	KindNone Kind = iota // carries no value of its own (length prefixes)
	KindInt
	KindSeqNum
	KindFloat
	KindString
	KindChar
	KindBool
	KindData
	KindUTCTimestamp
	KindLocalDate
	KindGroup // NumInGroup count; value is the parsed group instances
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindInt:
		return "Int"
	case KindSeqNum:
		return "SeqNum"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindChar:
		return "Char"
	case KindBool:
		return "Bool"
	case KindData:
		return "Data"
	case KindUTCTimestamp:
		return "UTCTimestamp"
	case KindLocalDate:
		return "LocalDate"
	case KindGroup:
		return "Group"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// AcceptsEmpty reports whether a zero-length wire value is legal for the kind.
// Only free-form text fields may be empty; every numeric, flag, and time
// grammar requires at least one byte.
func (k Kind) AcceptsEmpty() bool {
	return k == KindString || k == KindData
}

// ParseInt decodes an ASCII signed integer. Leading zeros are accepted (the
// spec renders CheckSum zero-padded) but any non-digit byte is an error.
func ParseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty int value")
	}
	s := b
	if s[0] == '-' {
		if len(s) == 1 {
			return 0, fmt.Errorf("invalid int value %q", b)
		}
		s = s[1:]
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid int value %q", b)
		}
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", b)
	}
	return v, nil
}

// AppendInt encodes v in the canonical FIX integer representation.
func AppendInt(dst []byte, v int64) []byte {
	return strconv.AppendInt(dst, v, 10)
}

// ParseSeqNum decodes a positive integer used for MsgSeqNum and friends.
// FIXT v1.1 defines sequence numbers as positive; zero is only legal in the
// EndSeqNo "to infinity" convention, so zero is allowed here and policed by
// the session layer where it matters.
func ParseSeqNum(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("empty sequence number")
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid sequence number %q", b)
		}
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence number %q", b)
	}
	return v, nil
}

// AppendSeqNum encodes a sequence number.
func AppendSeqNum(dst []byte, v uint64) []byte {
	return strconv.AppendUint(dst, v, 10)
}

// ParseChar decodes a single-byte field.
func ParseChar(b []byte) (byte, error) {
	if len(b) != 1 {
		return 0, fmt.Errorf("char value must be exactly one byte, got %d", len(b))
	}
	return b[0], nil
}

// ParseBool decodes the FIX boolean grammar: "Y" or "N".
func ParseBool(b []byte) (bool, error) {
	if len(b) == 1 {
		switch b[0] {
		case 'Y':
			return true, nil
		case 'N':
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid boolean value %q, want Y or N", b)
}

// AppendBool encodes a boolean as "Y" or "N".
func AppendBool(dst []byte, v bool) []byte {
	if v {
		return append(dst, 'Y')
	}
	return append(dst, 'N')
}

// ParseString decodes a string field. The FIX string grammar excludes the SOH
// delimiter by construction (the splitter never hands one through), so any
// byte content is accepted, including the empty string.
func ParseString(b []byte) (string, error) {
	return string(b), nil
}
