package wire

// Core filesystem types of the hdfs schema and the ClientProtocol
// request/response payloads this client issues.

// ExtendedBlock identifies one block: pool, id, generation stamp.
type ExtendedBlock struct {
	PoolID          string // 1
	BlockID         uint64 // 2
	GenerationStamp uint64 // 3
	NumBytes        uint64 // 4
}

func (m *ExtendedBlock) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.PoolID)
	b = appendVarintField(b, 2, m.BlockID)
	b = appendVarintField(b, 3, m.GenerationStamp)
	b = appendVarintField(b, 4, m.NumBytes)
	return b
}

func (m *ExtendedBlock) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.PoolID = d.string(typ)
		case 2:
			m.BlockID = d.varint(typ)
		case 3:
			m.GenerationStamp = d.varint(typ)
		case 4:
			m.NumBytes = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// Token is the security token scoped to one block.
type Token struct {
	Identifier []byte // 1
	Password   []byte // 2
	Kind       string // 3
	Service    string // 4
}

func (m *Token) Marshal() []byte {
	var b []byte
	b = appendBytesField(b, 1, m.Identifier)
	b = appendBytesField(b, 2, m.Password)
	b = appendStringField(b, 3, m.Kind)
	b = appendStringField(b, 4, m.Service)
	return b
}

func (m *Token) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Identifier = d.bytes(typ)
		case 2:
			m.Password = d.bytes(typ)
		case 3:
			m.Kind = d.string(typ)
		case 4:
			m.Service = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// DatanodeID is the network identity of one datanode.
type DatanodeID struct {
	IPAddr   string // 1
	Hostname string // 2
	UUID     string // 3
	XferPort uint32 // 4
	InfoPort uint32 // 5
	IPCPort  uint32 // 6
}

func (m *DatanodeID) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.IPAddr)
	b = appendStringField(b, 2, m.Hostname)
	b = appendStringField(b, 3, m.UUID)
	b = appendVarintField(b, 4, uint64(m.XferPort))
	b = appendVarintField(b, 5, uint64(m.InfoPort))
	b = appendVarintField(b, 6, uint64(m.IPCPort))
	return b
}

func (m *DatanodeID) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.IPAddr = d.string(typ)
		case 2:
			m.Hostname = d.string(typ)
		case 3:
			m.UUID = d.string(typ)
		case 4:
			m.XferPort = uint32(d.varint(typ))
		case 5:
			m.InfoPort = uint32(d.varint(typ))
		case 6:
			m.IPCPort = uint32(d.varint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// DatanodeInfo wraps DatanodeID; the remaining status fields of the schema
// are skipped on decode since the client does not consume them.
type DatanodeInfo struct {
	ID *DatanodeID // 1
}

func (m *DatanodeInfo) Marshal() []byte {
	var b []byte
	if m.ID != nil {
		b = appendMessageField(b, 1, m.ID)
	}
	return b
}

func (m *DatanodeInfo) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.ID = &DatanodeID{}
			d.message(typ, m.ID)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// TransferAddr returns the host:port used for block transfer connections.
func (m *DatanodeInfo) TransferAddr(useHostname bool) string {
	if m.ID == nil {
		return ""
	}
	host := m.ID.IPAddr
	if useHostname || host == "" {
		host = m.ID.Hostname
	}
	return host + ":" + itoa(m.ID.XferPort)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// LocatedBlock is one block plus its replica locations and access token.
type LocatedBlock struct {
	Block      *ExtendedBlock  // 1
	Offset     uint64          // 2 (byte offset of the block within the file)
	Locs       []*DatanodeInfo // 3
	Corrupt    bool            // 4
	Token      *Token          // 5
	StorageIDs []string        // 8
}

func (m *LocatedBlock) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	b = appendVarintField(b, 2, m.Offset)
	for _, loc := range m.Locs {
		b = appendMessageField(b, 3, loc)
	}
	b = appendBoolField(b, 4, m.Corrupt)
	if m.Token != nil {
		b = appendMessageField(b, 5, m.Token)
	}
	for _, id := range m.StorageIDs {
		b = appendStringField(b, 8, id)
	}
	return b
}

func (m *LocatedBlock) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Block = &ExtendedBlock{}
			d.message(typ, m.Block)
		case 2:
			m.Offset = d.varint(typ)
		case 3:
			info := &DatanodeInfo{}
			d.message(typ, info)
			m.Locs = append(m.Locs, info)
		case 4:
			m.Corrupt = d.bool(typ)
		case 5:
			m.Token = &Token{}
			d.message(typ, m.Token)
		case 8:
			m.StorageIDs = append(m.StorageIDs, d.string(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// LocatedBlocks is the block map of one file range.
type LocatedBlocks struct {
	FileLength          uint64          // 1
	Blocks              []*LocatedBlock // 2
	UnderConstruction   bool            // 3
	LastBlock           *LocatedBlock   // 4
	IsLastBlockComplete bool            // 5
}

func (m *LocatedBlocks) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.FileLength)
	for _, blk := range m.Blocks {
		b = appendMessageField(b, 2, blk)
	}
	b = appendBoolField(b, 3, m.UnderConstruction)
	if m.LastBlock != nil {
		b = appendMessageField(b, 4, m.LastBlock)
	}
	b = appendBoolField(b, 5, m.IsLastBlockComplete)
	return b
}

func (m *LocatedBlocks) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.FileLength = d.varint(typ)
		case 2:
			blk := &LocatedBlock{}
			d.message(typ, blk)
			m.Blocks = append(m.Blocks, blk)
		case 3:
			m.UnderConstruction = d.bool(typ)
		case 4:
			m.LastBlock = &LocatedBlock{}
			d.message(typ, m.LastBlock)
		case 5:
			m.IsLastBlockComplete = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// FsPermission is FsPermissionProto.
type FsPermission struct {
	Perm uint32 // 1
}

func (m *FsPermission) Marshal() []byte {
	return appendVarintField(nil, 1, uint64(m.Perm))
}

func (m *FsPermission) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Perm = uint32(d.varint(typ))
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// File types (HdfsFileStatusProto.FileType).
const (
	FileTypeDir     = 1
	FileTypeFile    = 2
	FileTypeSymlink = 3
)

// FileStatus is HdfsFileStatusProto, the immutable metadata snapshot of one
// path. It is stale the moment it is returned.
type FileStatus struct {
	FileType         int32          // 1
	Path             []byte         // 2
	Length           uint64         // 3
	Permission       *FsPermission  // 4
	Owner            string         // 5
	Group            string         // 6
	ModificationTime uint64         // 7
	AccessTime       uint64         // 8
	BlockReplication uint32         // 10
	BlockSize        uint64         // 11
	Locations        *LocatedBlocks // 12
	FileID           uint64         // 13
}

func (m *FileStatus) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.FileType))
	b = appendBytesField(b, 2, m.Path)
	b = appendVarintField(b, 3, m.Length)
	if m.Permission != nil {
		b = appendMessageField(b, 4, m.Permission)
	}
	b = appendStringField(b, 5, m.Owner)
	b = appendStringField(b, 6, m.Group)
	b = appendVarintField(b, 7, m.ModificationTime)
	b = appendVarintField(b, 8, m.AccessTime)
	if m.BlockReplication != 0 {
		b = appendVarintField(b, 10, uint64(m.BlockReplication))
	}
	if m.BlockSize != 0 {
		b = appendVarintField(b, 11, m.BlockSize)
	}
	if m.Locations != nil {
		b = appendMessageField(b, 12, m.Locations)
	}
	if m.FileID != 0 {
		b = appendVarintField(b, 13, m.FileID)
	}
	return b
}

func (m *FileStatus) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.FileType = int32(d.varint(typ))
		case 2:
			m.Path = d.bytes(typ)
		case 3:
			m.Length = d.varint(typ)
		case 4:
			m.Permission = &FsPermission{}
			d.message(typ, m.Permission)
		case 5:
			m.Owner = d.string(typ)
		case 6:
			m.Group = d.string(typ)
		case 7:
			m.ModificationTime = d.varint(typ)
		case 8:
			m.AccessTime = d.varint(typ)
		case 10:
			m.BlockReplication = uint32(d.varint(typ))
		case 11:
			m.BlockSize = d.varint(typ)
		case 12:
			m.Locations = &LocatedBlocks{}
			d.message(typ, m.Locations)
		case 13:
			m.FileID = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// DirectoryListing is one page of a directory listing.
type DirectoryListing struct {
	PartialListing   []*FileStatus // 1
	RemainingEntries uint32        // 2
}

func (m *DirectoryListing) Marshal() []byte {
	var b []byte
	for _, s := range m.PartialListing {
		b = appendMessageField(b, 1, s)
	}
	b = appendVarintField(b, 2, uint64(m.RemainingEntries))
	return b
}

func (m *DirectoryListing) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			s := &FileStatus{}
			d.message(typ, s)
			m.PartialListing = append(m.PartialListing, s)
		case 2:
			m.RemainingEntries = uint32(d.varint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// ServerDefaults is FsServerDefaultsProto.
type ServerDefaults struct {
	BlockSize        uint64 // 1
	BytesPerChecksum uint32 // 2
	WritePacketSize  uint32 // 3
	Replication      uint32 // 4
	FileBufferSize   uint32 // 5
}

func (m *ServerDefaults) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.BlockSize)
	b = appendVarintField(b, 2, uint64(m.BytesPerChecksum))
	b = appendVarintField(b, 3, uint64(m.WritePacketSize))
	b = appendVarintField(b, 4, uint64(m.Replication))
	b = appendVarintField(b, 5, uint64(m.FileBufferSize))
	return b
}

func (m *ServerDefaults) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.BlockSize = d.varint(typ)
		case 2:
			m.BytesPerChecksum = uint32(d.varint(typ))
		case 3:
			m.WritePacketSize = uint32(d.varint(typ))
		case 4:
			m.Replication = uint32(d.varint(typ))
		case 5:
			m.FileBufferSize = uint32(d.varint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}
