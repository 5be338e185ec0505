package codec

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var ErrNotProtoMessage = errors.New("ProtoCodec: v must implement ProtoMessage")

// ProtoMessage is implemented by payloads that know their own protobuf field
// layout. Field numbers are part of the wire contract and must not change.
type ProtoMessage interface {
	AppendProto(b []byte) []byte
	UnmarshalProto(b []byte) error
}

// ProtoCodec encodes ProtoMessage values in protobuf wire format.
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(ProtoMessage)
	if !ok {
		return nil, ErrNotProtoMessage
	}
	return msg.AppendProto(nil), nil
}

func (c *ProtoCodec) Decode(data []byte, v any) error {
	msg, ok := v.(ProtoMessage)
	if !ok {
		return ErrNotProtoMessage
	}
	return msg.UnmarshalProto(data)
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}

// Field is one decoded top-level protobuf field. Varint holds the value of
// varint fields; Bytes holds the payload of length-delimited fields.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Varint uint64
	Bytes  []byte
}

// ConsumeFields walks every field in b and hands it to fn. Fixed32/fixed64
// and group fields are skipped, since no control payload uses them.
func ConsumeFields(b []byte, fn func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("proto: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		f := Field{Num: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("proto: field %d: %w", num, protowire.ParseError(n))
			}
			f.Varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("proto: field %d: %w", num, protowire.ParseError(n))
			}
			f.Bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("proto: field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// AppendString appends a string field, omitting empty values.
func AppendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// AppendVarint appends a varint field, omitting zero values.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendBool appends a bool field. It is always written so that an explicit
// false survives the round trip.
func AppendBool(b []byte, num protowire.Number, v bool) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// AppendMessage appends m as an embedded message field.
func AppendMessage(b []byte, num protowire.Number, m ProtoMessage) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.AppendProto(nil))
}
