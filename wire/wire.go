// Package wire implements the client side of the deployed protobuf-based wire
// schema: RPC headers, namenode method payloads, and the datanode transfer
// messages. The field numbers and method names below are the versioned
// contract; messages are encoded directly with protowire since the schema is
// fixed and code generation sits outside this module.
package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is any wire message that can round-trip itself.
type Message interface {
	Marshal() []byte
	Unmarshal([]byte) error
}

var errWireType = errors.New("unexpected wire type")

var ErrInvalidFrame = errors.New("malformed frame")

// encode helpers

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSintField(b []byte, num protowire.Number, v int64) []byte {
	return appendVarintField(b, num, protowire.EncodeZigZag(v))
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if v {
		return appendVarintField(b, num, 1)
	}
	return appendVarintField(b, num, 0)
}

func appendFixed64Field(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendFixed32Field(b []byte, num protowire.Number, v uint32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendMessageField(b []byte, num protowire.Number, m Message) []byte {
	return appendBytesField(b, num, m.Marshal())
}

// decoder walks one message's fields, remembering the first error.
type decoder struct {
	buf []byte
	err error
}

func (d *decoder) more() bool {
	return d.err == nil && len(d.buf) > 0
}

func (d *decoder) tag() (protowire.Number, protowire.Type) {
	num, typ, n := protowire.ConsumeTag(d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0, 0
	}
	d.buf = d.buf[n:]
	return num, typ
}

func (d *decoder) varint(typ protowire.Type) uint64 {
	if d.err != nil {
		return 0
	}
	if typ != protowire.VarintType {
		d.err = errWireType
		return 0
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) sint(typ protowire.Type) int64 {
	return protowire.DecodeZigZag(d.varint(typ))
}

func (d *decoder) bool(typ protowire.Type) bool {
	return d.varint(typ) != 0
}

func (d *decoder) fixed64(typ protowire.Type) uint64 {
	if d.err != nil {
		return 0
	}
	if typ != protowire.Fixed64Type {
		d.err = errWireType
		return 0
	}
	v, n := protowire.ConsumeFixed64(d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) fixed32(typ protowire.Type) uint32 {
	if d.err != nil {
		return 0
	}
	if typ != protowire.Fixed32Type {
		d.err = errWireType
		return 0
	}
	v, n := protowire.ConsumeFixed32(d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0
	}
	d.buf = d.buf[n:]
	return v
}

func (d *decoder) bytes(typ protowire.Type) []byte {
	if d.err != nil {
		return nil
	}
	if typ != protowire.BytesType {
		d.err = errWireType
		return nil
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return nil
	}
	d.buf = d.buf[n:]
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (d *decoder) string(typ protowire.Type) string {
	return string(d.bytes(typ))
}

func (d *decoder) message(typ protowire.Type, m Message) {
	raw := d.bytes(typ)
	if d.err == nil {
		d.err = m.Unmarshal(raw)
	}
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) {
	if d.err != nil {
		return
	}
	n := protowire.ConsumeFieldValue(num, typ, d.buf)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return
	}
	d.buf = d.buf[n:]
}

// AppendPrefixed appends msg to b with a varint length prefix, the framing
// both the RPC channel and the data transfer channel use for embedded
// messages.
func AppendPrefixed(b []byte, msg Message) []byte {
	raw := msg.Marshal()
	b = protowire.AppendVarint(b, uint64(len(raw)))
	return append(b, raw...)
}

// ConsumePrefixed decodes one varint length-prefixed message from b and
// returns the remainder.
func ConsumePrefixed(b []byte, msg Message) ([]byte, error) {
	length, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, ErrInvalidFrame
	}
	b = b[n:]
	if uint64(len(b)) < length {
		return nil, ErrInvalidFrame
	}
	if err := msg.Unmarshal(b[:length]); err != nil {
		return nil, err
	}
	return b[length:], nil
}

// ReadPrefixed reads one varint length-prefixed message directly off a
// stream, one byte at a time for the prefix so no stream bytes are
// overconsumed.
func ReadPrefixed(r io.Reader, msg Message) error {
	length, err := readUvarint(r)
	if err != nil {
		return err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(r, raw); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return msg.Unmarshal(raw)
}

func readUvarint(r io.Reader) (uint64, error) {
	var v uint64
	var shift uint
	buf := make([]byte, 1)
	for i := 0; i < binary.MaxVarintLen32; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		v |= uint64(buf[0]&0x7f) << shift
		if buf[0] < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrInvalidFrame
}
