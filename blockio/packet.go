// Package blockio moves block data between the client and datanodes: the
// checksum-verifying replica-failover reader and the replication pipeline
// writer.
package blockio

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/peakfs/hdfsclient/wire"
)

// crcTable is the Castagnoli table; CRC32C is the checksum the transfer
// protocol negotiates.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Packet is the unit of pipeline transfer: a bounded run of block data, its
// per-chunk checksums, and a sequence number. On the wire:
//
//	+------------------------------------------+
//	|  payload length, uint32 BE               |  = 4 + len(checksums) + len(data)
//	+------------------------------------------+
//	|  header length, uint16 BE                |
//	+------------------------------------------+
//	|  PacketHeaderProto                       |
//	+------------------------------------------+
//	|  checksums, 4 bytes per chunk            |
//	+------------------------------------------+
//	|  data                                    |
//	+------------------------------------------+
type Packet struct {
	Header    *wire.PacketHeader
	Checksums []byte
	Data      []byte
}

// NewPacket builds a data packet, checksumming data in bytesPerChecksum
// chunks.
func NewPacket(seqno, offsetInBlock int64, data []byte, bytesPerChecksum int, last, sync bool) *Packet {
	var sums []byte
	for off := 0; off < len(data); off += bytesPerChecksum {
		end := off + bytesPerChecksum
		if end > len(data) {
			end = len(data)
		}
		sums = binary.BigEndian.AppendUint32(sums, crc32.Checksum(data[off:end], crcTable))
	}
	return &Packet{
		Header: &wire.PacketHeader{
			OffsetInBlock:     offsetInBlock,
			Seqno:             seqno,
			LastPacketInBlock: last,
			DataLen:           int32(len(data)),
			SyncBlock:         sync,
		},
		Checksums: sums,
		Data:      data,
	}
}

// WriteTo frames the packet onto w.
func (p *Packet) WriteTo(w io.Writer) error {
	header := p.Header.Marshal()
	payloadLen := 4 + len(p.Checksums) + len(p.Data)

	buf := make([]byte, 0, 6+len(header)+len(p.Checksums)+len(p.Data))
	buf = binary.BigEndian.AppendUint32(buf, uint32(payloadLen))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	buf = append(buf, p.Checksums...)
	buf = append(buf, p.Data...)
	_, err := w.Write(buf)
	return err
}

// ReadPacket reads one framed packet off r.
func ReadPacket(r io.Reader) (*Packet, error) {
	var fixed [6]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	payloadLen := int(binary.BigEndian.Uint32(fixed[:4]))
	headerLen := int(binary.BigEndian.Uint16(fixed[4:]))
	if payloadLen < 4 {
		return nil, wire.ErrInvalidFrame
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, err
	}
	header := &wire.PacketHeader{}
	if err := header.Unmarshal(headerBytes); err != nil {
		return nil, err
	}

	rest := make([]byte, payloadLen-4)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	dataLen := int(header.DataLen)
	sumLen := len(rest) - dataLen
	if dataLen < 0 || sumLen < 0 {
		return nil, wire.ErrInvalidFrame
	}
	return &Packet{Header: header, Checksums: rest[:sumLen], Data: rest[sumLen:]}, nil
}

// VerifyChecksums checks every chunk of the packet against its CRC32C and
// returns the index of the first bad chunk, or -1.
func (p *Packet) VerifyChecksums(bytesPerChecksum int) int {
	for i, off := 0, 0; off < len(p.Data); i, off = i+1, off+bytesPerChecksum {
		end := off + bytesPerChecksum
		if end > len(p.Data) {
			end = len(p.Data)
		}
		if 4*(i+1) > len(p.Checksums) {
			return i
		}
		want := binary.BigEndian.Uint32(p.Checksums[4*i:])
		if crc32.Checksum(p.Data[off:end], crcTable) != want {
			return i
		}
	}
	return -1
}

// writeTransferOp sends a data transfer operation request: protocol version,
// op code, then the varint-prefixed operation message.
func writeTransferOp(w io.Writer, op byte, msg wire.Message) error {
	buf := []byte{0x00, wire.DataTransferVersion, op}
	buf = wire.AppendPrefixed(buf, msg)
	_, err := w.Write(buf)
	return err
}

// readBlockOpResponse reads the datanode's reply to a transfer op and
// translates a non-success status into an error.
func readBlockOpResponse(r io.Reader) (*wire.BlockOpResponse, error) {
	resp := &wire.BlockOpResponse{}
	if err := wire.ReadPrefixed(r, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func statusError(resp *wire.BlockOpResponse) error {
	if resp.Status == wire.StatusSuccess {
		return nil
	}
	return fmt.Errorf("datanode rejected op: status %d: %s", resp.Status, resp.Message)
}
