// Package codec serializes message bodies.
//
// The frame layer treats a body as opaque bytes; this package decides how a
// payload struct becomes those bytes. Control messages use the protobuf wire
// format so bodies stay compatible with existing supervisor clients, while
// JSON is kept for human-facing records such as registry entries.
package codec

type CodecType byte

const (
	CodecTypeProto CodecType = 0
	CodecTypeJSON  CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=Proto, 1=JSON
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &ProtoCodec{}
}
