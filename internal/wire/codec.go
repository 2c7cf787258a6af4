package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// RawPayload defers decoding of a nested payload document until the
// consumer knows what shape to expect. It stays raw under both codecs.
type RawPayload []byte

func (p RawPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p *RawPayload) UnmarshalJSON(data []byte) error {
	*p = append((*p)[:0], data...)
	return nil
}

func (p RawPayload) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(p) == 0 {
		return enc.EncodeNil()
	}
	return msgpack.RawMessage(p).EncodeMsgpack(enc)
}

func (p *RawPayload) DecodeMsgpack(dec *msgpack.Decoder) error {
	var raw msgpack.RawMessage
	if err := raw.DecodeMsgpack(dec); err != nil {
		return err
	}
	*p = RawPayload(raw)
	return nil
}

// Codec encodes frames and payload documents. Both ends of a connection
// must agree on the codec; JSON is the default.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var ErrUnknownCodec = errors.New("unknown codec")

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// EncodeFrame marshals the payload document and wraps it into a frame.
func EncodeFrame(c Codec, typ FrameType, id string, payload any) (Frame, error) {
	f := Frame{Type: typ, ID: id}
	if payload == nil {
		return f, nil
	}
	data, err := c.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	f.Payload = data
	return f, nil
}
