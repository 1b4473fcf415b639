package wire

// Data transfer protocol: the framing spoken directly to datanodes for block
// reads and pipeline writes.

// A transfer request on the wire is:
//
//	+-----------------------------------------------+
//	|  Data Transfer Protocol Version, int16        |
//	+-----------------------------------------------+
//	|  Op code, 1 byte                              |
//	+-----------------------------------------------+
//	|  varint length + operation proto              |
//	+-----------------------------------------------+
const (
	DataTransferVersion = 0x1c

	OpWriteBlock    = 0x50
	OpReadBlock     = 0x51
	OpChecksumBlock = 0x55
)

// Transfer status codes (Status enum).
const (
	StatusSuccess          = 0
	StatusError            = 1
	StatusErrorChecksum    = 2
	StatusErrorInvalid     = 3
	StatusErrorExists      = 4
	StatusErrorAccessToken = 5
	StatusChecksumOK       = 6
)

// Checksum algorithms (ChecksumTypeProto).
const (
	ChecksumTypeNull   = 0
	ChecksumTypeCRC32  = 1
	ChecksumTypeCRC32C = 2
)

// Pipeline construction stages (OpWriteBlockProto.BlockConstructionStage).
const (
	StageSetupAppend            = 0
	StageSetupAppendRecovery    = 1
	StageDataStreaming          = 2
	StageSetupStreamingRecovery = 3
	StagePipelineClose          = 4
	StagePipelineCloseRecovery  = 5
	StageSetupCreate            = 6
)

// BaseHeader is BaseHeaderProto.
type BaseHeader struct {
	Block *ExtendedBlock // 1
	Token *Token         // 2
}

func (m *BaseHeader) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	if m.Token != nil {
		b = appendMessageField(b, 2, m.Token)
	}
	return b
}

func (m *BaseHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Block = &ExtendedBlock{}
			d.message(typ, m.Block)
		case 2:
			m.Token = &Token{}
			d.message(typ, m.Token)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ClientOperationHeader is ClientOperationHeaderProto.
type ClientOperationHeader struct {
	BaseHeader *BaseHeader // 1
	ClientName string      // 2
}

func (m *ClientOperationHeader) Marshal() []byte {
	var b []byte
	if m.BaseHeader != nil {
		b = appendMessageField(b, 1, m.BaseHeader)
	}
	b = appendStringField(b, 2, m.ClientName)
	return b
}

func (m *ClientOperationHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.BaseHeader = &BaseHeader{}
			d.message(typ, m.BaseHeader)
		case 2:
			m.ClientName = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// Checksum is ChecksumProto.
type Checksum struct {
	Type             int32  // 1
	BytesPerChecksum uint32 // 2
}

func (m *Checksum) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.Type))
	b = appendVarintField(b, 2, uint64(m.BytesPerChecksum))
	return b
}

func (m *Checksum) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Type = int32(d.varint(typ))
		case 2:
			m.BytesPerChecksum = uint32(d.varint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ReadBlockOp is OpReadBlockProto.
type ReadBlockOp struct {
	Header        *ClientOperationHeader // 1
	Offset        uint64                 // 2
	Len           uint64                 // 3
	SendChecksums bool                   // 4
}

func (m *ReadBlockOp) Marshal() []byte {
	var b []byte
	if m.Header != nil {
		b = appendMessageField(b, 1, m.Header)
	}
	b = appendVarintField(b, 2, m.Offset)
	b = appendVarintField(b, 3, m.Len)
	b = appendBoolField(b, 4, m.SendChecksums)
	return b
}

func (m *ReadBlockOp) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Header = &ClientOperationHeader{}
			d.message(typ, m.Header)
		case 2:
			m.Offset = d.varint(typ)
		case 3:
			m.Len = d.varint(typ)
		case 4:
			m.SendChecksums = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// WriteBlockOp is OpWriteBlockProto.
type WriteBlockOp struct {
	Header                *ClientOperationHeader // 1
	Targets               []*DatanodeInfo        // 2
	Stage                 int32                  // 4
	PipelineSize          uint32                 // 5
	MinBytesRcvd          uint64                 // 6
	MaxBytesRcvd          uint64                 // 7
	LatestGenerationStamp uint64                 // 8
	RequestedChecksum     *Checksum              // 9
}

func (m *WriteBlockOp) Marshal() []byte {
	var b []byte
	if m.Header != nil {
		b = appendMessageField(b, 1, m.Header)
	}
	for _, t := range m.Targets {
		b = appendMessageField(b, 2, t)
	}
	b = appendVarintField(b, 4, uint64(m.Stage))
	b = appendVarintField(b, 5, uint64(m.PipelineSize))
	b = appendVarintField(b, 6, m.MinBytesRcvd)
	b = appendVarintField(b, 7, m.MaxBytesRcvd)
	b = appendVarintField(b, 8, m.LatestGenerationStamp)
	if m.RequestedChecksum != nil {
		b = appendMessageField(b, 9, m.RequestedChecksum)
	}
	return b
}

func (m *WriteBlockOp) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Header = &ClientOperationHeader{}
			d.message(typ, m.Header)
		case 2:
			t := &DatanodeInfo{}
			d.message(typ, t)
			m.Targets = append(m.Targets, t)
		case 4:
			m.Stage = int32(d.varint(typ))
		case 5:
			m.PipelineSize = uint32(d.varint(typ))
		case 6:
			m.MinBytesRcvd = d.varint(typ)
		case 7:
			m.MaxBytesRcvd = d.varint(typ)
		case 8:
			m.LatestGenerationStamp = d.varint(typ)
		case 9:
			m.RequestedChecksum = &Checksum{}
			d.message(typ, m.RequestedChecksum)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ReadOpChecksumInfo describes the checksum layout of a read response.
type ReadOpChecksumInfo struct {
	Checksum    *Checksum // 1
	ChunkOffset uint64    // 2, offset of the first returned chunk
}

func (m *ReadOpChecksumInfo) Marshal() []byte {
	var b []byte
	if m.Checksum != nil {
		b = appendMessageField(b, 1, m.Checksum)
	}
	b = appendVarintField(b, 2, m.ChunkOffset)
	return b
}

func (m *ReadOpChecksumInfo) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Checksum = &Checksum{}
			d.message(typ, m.Checksum)
		case 2:
			m.ChunkOffset = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// BlockOpResponse is BlockOpResponseProto, the datanode's reply to a
// transfer op.
type BlockOpResponse struct {
	Status             int32               // 1
	FirstBadLink       string              // 2
	ReadOpChecksumInfo *ReadOpChecksumInfo // 4
	Message            string              // 5
}

func (m *BlockOpResponse) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.Status))
	if m.FirstBadLink != "" {
		b = appendStringField(b, 2, m.FirstBadLink)
	}
	if m.ReadOpChecksumInfo != nil {
		b = appendMessageField(b, 4, m.ReadOpChecksumInfo)
	}
	if m.Message != "" {
		b = appendStringField(b, 5, m.Message)
	}
	return b
}

func (m *BlockOpResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Status = int32(d.varint(typ))
		case 2:
			m.FirstBadLink = d.string(typ)
		case 4:
			m.ReadOpChecksumInfo = &ReadOpChecksumInfo{}
			d.message(typ, m.ReadOpChecksumInfo)
		case 5:
			m.Message = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// PacketHeader is PacketHeaderProto, carried in every data packet. The
// numeric fields are fixed-width on the wire so the header length stays
// constant regardless of the values carried.
type PacketHeader struct {
	OffsetInBlock     int64 // 1 (sfixed64)
	Seqno             int64 // 2 (sfixed64)
	LastPacketInBlock bool  // 3
	DataLen           int32 // 4 (sfixed32)
	SyncBlock         bool  // 5
}

func (m *PacketHeader) Marshal() []byte {
	var b []byte
	b = appendFixed64Field(b, 1, uint64(m.OffsetInBlock))
	b = appendFixed64Field(b, 2, uint64(m.Seqno))
	b = appendBoolField(b, 3, m.LastPacketInBlock)
	b = appendFixed32Field(b, 4, uint32(m.DataLen))
	b = appendBoolField(b, 5, m.SyncBlock)
	return b
}

func (m *PacketHeader) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.OffsetInBlock = int64(d.fixed64(typ))
		case 2:
			m.Seqno = int64(d.fixed64(typ))
		case 3:
			m.LastPacketInBlock = d.bool(typ)
		case 4:
			m.DataLen = int32(d.fixed32(typ))
		case 5:
			m.SyncBlock = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// PipelineAck is PipelineAckProto: one reply status per pipeline member, in
// pipeline order.
type PipelineAck struct {
	Seqno   int64   // 1 (sint64)
	Replies []int32 // 2
}

func (m *PipelineAck) Marshal() []byte {
	var b []byte
	b = appendSintField(b, 1, m.Seqno)
	for _, r := range m.Replies {
		b = appendVarintField(b, 2, uint64(r))
	}
	return b
}

func (m *PipelineAck) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Seqno = d.sint(typ)
		case 2:
			m.Replies = append(m.Replies, int32(d.varint(typ)))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ClientReadStatus is ClientReadStatusProto, sent by the reader after
// consuming a block to report checksum verification.
type ClientReadStatus struct {
	Status int32 // 1
}

func (m *ClientReadStatus) Marshal() []byte {
	return appendVarintField(nil, 1, uint64(m.Status))
}

func (m *ClientReadStatus) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Status = int32(d.varint(typ))
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}
