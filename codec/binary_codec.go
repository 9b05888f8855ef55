package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	kverrors "github.com/robert-cronin/kvrpc/errors"
	"github.com/robert-cronin/kvrpc/message"
	"github.com/robert-cronin/kvrpc/protocol"
)

// BinaryCodec wraps envelopes in a protocol frame with length-prefixed fields.
//
// Request body:  method (u16 len + bytes), param count (u8), params (u32 len + bytes each).
// Response body: result (u32 len + bytes), error flag (u8), and when set:
// id (u16), code (u32), detail (u32), status (u16), each string length-prefixed.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	var (
		w       frameWriter
		msgType protocol.MsgType
		seq     uint32
	)
	switch msg := v.(type) {
	case *message.Request:
		if len(msg.Params) > math.MaxUint8 {
			return nil, fmt.Errorf("BinaryCodec: too many params: %d", len(msg.Params))
		}
		msgType, seq = protocol.MsgTypeRequest, msg.ID
		w.str16(msg.Method)
		w.u8(uint8(len(msg.Params)))
		for _, p := range msg.Params {
			w.bytes32(p)
		}
	case *message.Response:
		msgType, seq = protocol.MsgTypeResponse, msg.ID
		w.bytes32(msg.Result)
		if msg.Error == nil {
			w.u8(0)
		} else {
			w.u8(1)
			w.str16(msg.Error.ID)
			w.u32(uint32(msg.Error.Code))
			w.bytes32([]byte(msg.Error.Detail))
			w.str16(msg.Error.Status)
		}
	default:
		return nil, errors.New("BinaryCodec: v must be *message.Request or *message.Response")
	}
	if w.err != nil {
		return nil, w.err
	}

	body := w.buf.Bytes()
	var out bytes.Buffer
	header := protocol.Header{MsgType: msgType, Seq: seq, BodyLen: uint32(len(body))}
	if err := protocol.Encode(&out, &header, body); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	header, body, err := protocol.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	r := frameReader{data: body}

	switch msg := v.(type) {
	case *message.Request:
		if header.MsgType != protocol.MsgTypeRequest {
			return fmt.Errorf("BinaryCodec: expected request frame, got type %d", header.MsgType)
		}
		msg.ID = header.Seq
		msg.Method = r.str16()
		n := int(r.u8())
		msg.Params = make([]json.RawMessage, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			msg.Params = append(msg.Params, r.bytes32())
		}
	case *message.Response:
		if header.MsgType != protocol.MsgTypeResponse {
			return fmt.Errorf("BinaryCodec: expected response frame, got type %d", header.MsgType)
		}
		msg.ID = header.Seq
		if result := r.bytes32(); len(result) > 0 {
			msg.Result = result
		}
		if r.u8() == 1 {
			msg.Error = &kverrors.Error{
				ID:     r.str16(),
				Code:   int32(r.u32()),
				Detail: string(r.bytes32()),
				Status: r.str16(),
			}
		}
	default:
		return errors.New("BinaryCodec: v must be *message.Request or *message.Response")
	}
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("BinaryCodec: %d trailing bytes", len(r.data)-r.off)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func (c *BinaryCodec) ContentType() string {
	return ContentTypeBinary
}

type frameWriter struct {
	buf bytes.Buffer
	err error
}

func (w *frameWriter) u8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *frameWriter) u32(v uint32) {
	w.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (w *frameWriter) str16(s string) {
	if len(s) > math.MaxUint16 {
		w.err = fmt.Errorf("BinaryCodec: string too long: %d bytes", len(s))
		return
	}
	w.buf.Write(binary.BigEndian.AppendUint16(nil, uint16(len(s))))
	w.buf.WriteString(s)
}

func (w *frameWriter) bytes32(b []byte) {
	w.u32(uint32(len(b)))
	w.buf.Write(b)
}

// frameReader reads length-prefixed fields; the first short read sticks in err.
type frameReader struct {
	data []byte
	off  int
	err  error
}

func (r *frameReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("BinaryCodec: truncated body at offset %d", r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *frameReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *frameReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *frameReader) str16() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	return string(r.take(int(binary.BigEndian.Uint16(b))))
}

func (r *frameReader) bytes32() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
