package codec

import (
	"encoding/json"
)

// JSONCodec uses encoding/json. It backs registry records, which operators
// read with etcdctl, so readability wins over size.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
