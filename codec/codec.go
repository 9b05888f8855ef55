// Package codec encodes envelopes and parameter values.
//
// Two envelope codecs exist, selected by HTTP Content-Type. Parameter and result
// values are always JSON (see EncodeValue and DecodeValue) regardless of the
// envelope codec.
package codec

import (
	"mime"
	"strings"
)

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

const (
	ContentTypeJSON   = "application/json"
	ContentTypeBinary = "application/x-kvrpc"
)

// Codec encodes *message.Request and *message.Response envelopes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Binary
	ContentType() string
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeBinary {
		return &BinaryCodec{}
	}
	return &JSONCodec{}
}

// ForContentType picks the codec for an HTTP Content-Type header.
// An empty header selects JSON.
func ForContentType(contentType string) (Codec, bool) {
	if strings.TrimSpace(contentType) == "" {
		return &JSONCodec{}, true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}
	switch mt {
	case ContentTypeJSON:
		return &JSONCodec{}, true
	case ContentTypeBinary:
		return &BinaryCodec{}, true
	}
	return nil, false
}

// ParseCodecType maps a config name ("json", "binary") to a CodecType.
func ParseCodecType(name string) (CodecType, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, true
	case "binary", "kvrpc":
		return CodecTypeBinary, true
	}
	return 0, false
}
