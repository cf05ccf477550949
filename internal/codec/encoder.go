package codec

import (
	"github.com/Aidin1998/fixengine/internal/dict"
	"github.com/Aidin1998/fixengine/internal/fixtype"
)

const soh = 0x01

// Encode appends the wire form of m to dst. Fields are emitted in schema
// order, length prefixes are synthesized from their data fields, and
// BodyLength and CheckSum are computed from the emitted bytes.
func Encode(dst []byte, m *Message) ([]byte, error) {
	body := make([]byte, 0, 256)
	body = append(body, '3', '5', '=')
	body = append(body, m.def.MsgType...)
	body = append(body, soh)

	body, err := appendFields(body, m)
	if err != nil {
		return nil, err
	}

	start := len(dst)
	dst = append(dst, '8', '=')
	dst = append(dst, m.def.Version.BeginString()...)
	dst = append(dst, soh, '9', '=')
	dst = fixtype.AppendInt(dst, int64(len(body)))
	dst = append(dst, soh)
	dst = append(dst, body...)

	sum := checksum(dst[start:])
	dst = append(dst, '1', '0', '=')
	dst = append(dst, '0'+sum/100, '0'+sum/10%10, '0'+sum%10)
	dst = append(dst, soh)
	return dst, nil
}

func appendFields(dst []byte, m *Message) ([]byte, error) {
	for _, ref := range m.def.Fields() {
		f := ref.Field
		if f.Rule.Kind == dict.RulePrepareForBytes {
			data, ok := m.Data(f.Rule.Tag)
			if !ok {
				continue
			}
			dst = appendTag(dst, f.Tag)
			dst = fixtype.AppendInt(dst, int64(len(data)))
			dst = append(dst, soh)
			continue
		}
		v, ok := m.fields[f.Tag]
		if !ok {
			if ref.Required {
				return nil, schemaErrorf(m.def.MsgType, f.Tag, RejectRequiredTagMissing,
					"required field %s missing", f.Name)
			}
			continue
		}
		if v.Kind() != f.Type {
			return nil, schemaErrorf(m.def.MsgType, f.Tag, RejectValueIncorrectForTag,
				"value kind %s does not match field type %s", v.Kind(), f.Type)
		}

		if f.Type == fixtype.KindGroup {
			insts := v.Groups()
			dst = appendTag(dst, f.Tag)
			dst = fixtype.AppendInt(dst, int64(len(insts)))
			dst = append(dst, soh)
			var err error
			for _, inst := range insts {
				dst, err = appendFields(dst, inst)
				if err != nil {
					return nil, err
				}
			}
			continue
		}

		dst = appendTag(dst, f.Tag)
		switch f.Type {
		case fixtype.KindInt:
			dst = fixtype.AppendInt(dst, v.Int())
		case fixtype.KindSeqNum:
			dst = fixtype.AppendSeqNum(dst, v.SeqNum())
		case fixtype.KindFloat:
			dst = fixtype.AppendFloat(dst, v.Float())
		case fixtype.KindString:
			dst = append(dst, v.Str()...)
		case fixtype.KindChar:
			dst = append(dst, v.Char())
		case fixtype.KindBool:
			dst = fixtype.AppendBool(dst, v.Bool())
		case fixtype.KindData:
			dst = append(dst, v.Data()...)
		case fixtype.KindUTCTimestamp:
			dst = fixtype.AppendUTCTimestamp(dst, v.Time())
		case fixtype.KindLocalDate:
			dst = fixtype.AppendLocalDate(dst, v.Time())
		default:
			return nil, schemaErrorf(m.def.MsgType, f.Tag, RejectOther,
				"field type %s cannot be encoded", f.Type)
		}
		dst = append(dst, soh)
	}
	return dst, nil
}

func appendTag(dst []byte, tag int) []byte {
	dst = fixtype.AppendInt(dst, int64(tag))
	return append(dst, '=')
}

func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}
