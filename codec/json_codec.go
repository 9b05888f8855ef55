package codec

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"

	"github.com/robert-cronin/kvrpc/message"
)

// jsonAPI mirrors encoding/json behaviour so RawMessage, Marshaler and
// TextMarshaler values encode the same way they would with the standard library.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONCodec encodes envelopes as JSON with json-iterator.
// Pros: human-readable, cross-language, easy to debug.
// Cons: larger payload, field names repeated on every call.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return jsonAPI.Marshal(v)
}

// Decode unmarshals an envelope. jsoniter leaves a null element of
// []json.RawMessage empty, so request params are restored to the literal null.
func (c *JSONCodec) Decode(data []byte, v any) error {
	if err := jsonAPI.Unmarshal(data, v); err != nil {
		return err
	}
	if req, ok := v.(*message.Request); ok {
		for i, p := range req.Params {
			if len(p) == 0 {
				req.Params[i] = json.RawMessage("null")
			}
		}
	}
	return nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func (c *JSONCodec) ContentType() string {
	return ContentTypeJSON
}
