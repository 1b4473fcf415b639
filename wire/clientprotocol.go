package wire

// ClientProtocol method payloads. Method names must match the deployed
// server's dispatch table exactly.

// GetBlockLocationsRequest / Response

type GetBlockLocationsRequest struct {
	Src    string // 1
	Offset uint64 // 2
	Length uint64 // 3
}

func (m *GetBlockLocationsRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendVarintField(b, 2, m.Offset)
	b = appendVarintField(b, 3, m.Length)
	return b
}

func (m *GetBlockLocationsRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Offset = d.varint(typ)
		case 3:
			m.Length = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type GetBlockLocationsResponse struct {
	Locations *LocatedBlocks // 1
}

func (m *GetBlockLocationsResponse) Marshal() []byte {
	var b []byte
	if m.Locations != nil {
		b = appendMessageField(b, 1, m.Locations)
	}
	return b
}

func (m *GetBlockLocationsResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Locations = &LocatedBlocks{}
			d.message(typ, m.Locations)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// GetFileInfoRequest / Response

type GetFileInfoRequest struct {
	Src string // 1
}

func (m *GetFileInfoRequest) Marshal() []byte {
	return appendStringField(nil, 1, m.Src)
}

func (m *GetFileInfoRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Src = d.string(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

type GetFileInfoResponse struct {
	Status *FileStatus // 1, absent when the path does not exist
}

func (m *GetFileInfoResponse) Marshal() []byte {
	var b []byte
	if m.Status != nil {
		b = appendMessageField(b, 1, m.Status)
	}
	return b
}

func (m *GetFileInfoResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Status = &FileStatus{}
			d.message(typ, m.Status)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// GetListingRequest / Response

type GetListingRequest struct {
	Src          string // 1
	StartAfter   []byte // 2
	NeedLocation bool   // 3
}

func (m *GetListingRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendBytesField(b, 2, m.StartAfter)
	b = appendBoolField(b, 3, m.NeedLocation)
	return b
}

func (m *GetListingRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.StartAfter = d.bytes(typ)
		case 3:
			m.NeedLocation = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type GetListingResponse struct {
	DirList *DirectoryListing // 1
}

func (m *GetListingResponse) Marshal() []byte {
	var b []byte
	if m.DirList != nil {
		b = appendMessageField(b, 1, m.DirList)
	}
	return b
}

func (m *GetListingResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.DirList = &DirectoryListing{}
			d.message(typ, m.DirList)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// Create flags.
const (
	CreateFlagCreate    = 0x01
	CreateFlagOverwrite = 0x02
	CreateFlagAppend    = 0x04
)

// CreateRequest / Response

type CreateRequest struct {
	Src          string        // 1
	Masked       *FsPermission // 2
	ClientName   string        // 3
	CreateFlag   uint32        // 4
	CreateParent bool          // 5
	Replication  uint32        // 6
	BlockSize    uint64        // 7
}

func (m *CreateRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	if m.Masked != nil {
		b = appendMessageField(b, 2, m.Masked)
	}
	b = appendStringField(b, 3, m.ClientName)
	b = appendVarintField(b, 4, uint64(m.CreateFlag))
	b = appendBoolField(b, 5, m.CreateParent)
	b = appendVarintField(b, 6, uint64(m.Replication))
	b = appendVarintField(b, 7, m.BlockSize)
	return b
}

func (m *CreateRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Masked = &FsPermission{}
			d.message(typ, m.Masked)
		case 3:
			m.ClientName = d.string(typ)
		case 4:
			m.CreateFlag = uint32(d.varint(typ))
		case 5:
			m.CreateParent = d.bool(typ)
		case 6:
			m.Replication = uint32(d.varint(typ))
		case 7:
			m.BlockSize = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type CreateResponse struct {
	Status *FileStatus // 1
}

func (m *CreateResponse) Marshal() []byte {
	var b []byte
	if m.Status != nil {
		b = appendMessageField(b, 1, m.Status)
	}
	return b
}

func (m *CreateResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Status = &FileStatus{}
			d.message(typ, m.Status)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// AppendRequest / Response

type AppendRequest struct {
	Src        string // 1
	ClientName string // 2
}

func (m *AppendRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendStringField(b, 2, m.ClientName)
	return b
}

func (m *AppendRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.ClientName = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type AppendResponse struct {
	Block  *LocatedBlock // 1, nil when the last block is full or the file is empty
	Status *FileStatus   // 2
}

func (m *AppendResponse) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	if m.Status != nil {
		b = appendMessageField(b, 2, m.Status)
	}
	return b
}

func (m *AppendResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Block = &LocatedBlock{}
			d.message(typ, m.Block)
		case 2:
			m.Status = &FileStatus{}
			d.message(typ, m.Status)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

// AddBlockRequest / Response

type AddBlockRequest struct {
	Src          string          // 1
	ClientName   string          // 2
	Previous     *ExtendedBlock  // 3
	ExcludeNodes []*DatanodeInfo // 4
	FileID       uint64          // 5
}

func (m *AddBlockRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendStringField(b, 2, m.ClientName)
	if m.Previous != nil {
		b = appendMessageField(b, 3, m.Previous)
	}
	for _, n := range m.ExcludeNodes {
		b = appendMessageField(b, 4, n)
	}
	if m.FileID != 0 {
		b = appendVarintField(b, 5, m.FileID)
	}
	return b
}

func (m *AddBlockRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.ClientName = d.string(typ)
		case 3:
			m.Previous = &ExtendedBlock{}
			d.message(typ, m.Previous)
		case 4:
			n := &DatanodeInfo{}
			d.message(typ, n)
			m.ExcludeNodes = append(m.ExcludeNodes, n)
		case 5:
			m.FileID = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type AddBlockResponse struct {
	Block *LocatedBlock // 1
}

func (m *AddBlockResponse) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	return b
}

func (m *AddBlockResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Block = &LocatedBlock{}
			d.message(typ, m.Block)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// CompleteRequest / Response

type CompleteRequest struct {
	Src        string         // 1
	ClientName string         // 2
	Last       *ExtendedBlock // 3
	FileID     uint64         // 4
}

func (m *CompleteRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendStringField(b, 2, m.ClientName)
	if m.Last != nil {
		b = appendMessageField(b, 3, m.Last)
	}
	if m.FileID != 0 {
		b = appendVarintField(b, 4, m.FileID)
	}
	return b
}

func (m *CompleteRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.ClientName = d.string(typ)
		case 3:
			m.Last = &ExtendedBlock{}
			d.message(typ, m.Last)
		case 4:
			m.FileID = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type CompleteResponse struct {
	Result bool // 1
}

func (m *CompleteResponse) Marshal() []byte {
	return appendBoolField(nil, 1, m.Result)
}

func (m *CompleteResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Result = d.bool(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// RenewLeaseRequest / Response

type RenewLeaseRequest struct {
	ClientName string // 1
}

func (m *RenewLeaseRequest) Marshal() []byte {
	return appendStringField(nil, 1, m.ClientName)
}

func (m *RenewLeaseRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.ClientName = d.string(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

type RenewLeaseResponse struct{}

func (m *RenewLeaseResponse) Marshal() []byte          { return nil }
func (m *RenewLeaseResponse) Unmarshal(b []byte) error { return nil }

// DeleteRequest / Response

type DeleteRequest struct {
	Src       string // 1
	Recursive bool   // 2
}

func (m *DeleteRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendBoolField(b, 2, m.Recursive)
	return b
}

func (m *DeleteRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Recursive = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type DeleteResponse struct {
	Result bool // 1
}

func (m *DeleteResponse) Marshal() []byte {
	return appendBoolField(nil, 1, m.Result)
}

func (m *DeleteResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Result = d.bool(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// RenameRequest / Response

type RenameRequest struct {
	Src string // 1
	Dst string // 2
}

func (m *RenameRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendStringField(b, 2, m.Dst)
	return b
}

func (m *RenameRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Dst = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type RenameResponse struct {
	Result bool // 1
}

func (m *RenameResponse) Marshal() []byte {
	return appendBoolField(nil, 1, m.Result)
}

func (m *RenameResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Result = d.bool(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// MkdirsRequest / Response

type MkdirsRequest struct {
	Src          string        // 1
	Masked       *FsPermission // 2
	CreateParent bool          // 3
}

func (m *MkdirsRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	if m.Masked != nil {
		b = appendMessageField(b, 2, m.Masked)
	}
	b = appendBoolField(b, 3, m.CreateParent)
	return b
}

func (m *MkdirsRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Masked = &FsPermission{}
			d.message(typ, m.Masked)
		case 3:
			m.CreateParent = d.bool(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type MkdirsResponse struct {
	Result bool // 1
}

func (m *MkdirsResponse) Marshal() []byte {
	return appendBoolField(nil, 1, m.Result)
}

func (m *MkdirsResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Result = d.bool(typ)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// SetPermissionRequest / Response

type SetPermissionRequest struct {
	Src        string        // 1
	Permission *FsPermission // 2
}

func (m *SetPermissionRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	if m.Permission != nil {
		b = appendMessageField(b, 2, m.Permission)
	}
	return b
}

func (m *SetPermissionRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.Permission = &FsPermission{}
			d.message(typ, m.Permission)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type SetPermissionResponse struct{}

func (m *SetPermissionResponse) Marshal() []byte          { return nil }
func (m *SetPermissionResponse) Unmarshal(b []byte) error { return nil }

// UpdateBlockForPipelineRequest / Response — fetches a fresh generation stamp
// for pipeline recovery.

type UpdateBlockForPipelineRequest struct {
	Block      *ExtendedBlock // 1
	ClientName string         // 2
}

func (m *UpdateBlockForPipelineRequest) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	b = appendStringField(b, 2, m.ClientName)
	return b
}

func (m *UpdateBlockForPipelineRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Block = &ExtendedBlock{}
			d.message(typ, m.Block)
		case 2:
			m.ClientName = d.string(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type UpdateBlockForPipelineResponse struct {
	Block *LocatedBlock // 1
}

func (m *UpdateBlockForPipelineResponse) Marshal() []byte {
	var b []byte
	if m.Block != nil {
		b = appendMessageField(b, 1, m.Block)
	}
	return b
}

func (m *UpdateBlockForPipelineResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Block = &LocatedBlock{}
			d.message(typ, m.Block)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}

// UpdatePipelineRequest / Response — informs the namenode of the surviving
// pipeline membership after recovery.

type UpdatePipelineRequest struct {
	ClientName string        // 1
	OldBlock   *ExtendedBlock // 2
	NewBlock   *ExtendedBlock // 3
	NewNodes   []*DatanodeID // 4
	StorageIDs []string      // 5
}

func (m *UpdatePipelineRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.ClientName)
	if m.OldBlock != nil {
		b = appendMessageField(b, 2, m.OldBlock)
	}
	if m.NewBlock != nil {
		b = appendMessageField(b, 3, m.NewBlock)
	}
	for _, n := range m.NewNodes {
		b = appendMessageField(b, 4, n)
	}
	for _, id := range m.StorageIDs {
		b = appendStringField(b, 5, id)
	}
	return b
}

func (m *UpdatePipelineRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.ClientName = d.string(typ)
		case 2:
			m.OldBlock = &ExtendedBlock{}
			d.message(typ, m.OldBlock)
		case 3:
			m.NewBlock = &ExtendedBlock{}
			d.message(typ, m.NewBlock)
		case 4:
			n := &DatanodeID{}
			d.message(typ, n)
			m.NewNodes = append(m.NewNodes, n)
		case 5:
			m.StorageIDs = append(m.StorageIDs, d.string(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type UpdatePipelineResponse struct{}

func (m *UpdatePipelineResponse) Marshal() []byte          { return nil }
func (m *UpdatePipelineResponse) Unmarshal(b []byte) error { return nil }

// FsyncRequest / Response

type FsyncRequest struct {
	Src             string // 1
	ClientName      string // 2
	LastBlockLength int64  // 3 (sint64)
}

func (m *FsyncRequest) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Src)
	b = appendStringField(b, 2, m.ClientName)
	b = appendSintField(b, 3, m.LastBlockLength)
	return b
}

func (m *FsyncRequest) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		switch num {
		case 1:
			m.Src = d.string(typ)
		case 2:
			m.ClientName = d.string(typ)
		case 3:
			m.LastBlockLength = d.sint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.err
}

type FsyncResponse struct{}

func (m *FsyncResponse) Marshal() []byte          { return nil }
func (m *FsyncResponse) Unmarshal(b []byte) error { return nil }

// GetServerDefaultsRequest / Response

type GetServerDefaultsRequest struct{}

func (m *GetServerDefaultsRequest) Marshal() []byte          { return nil }
func (m *GetServerDefaultsRequest) Unmarshal(b []byte) error { return nil }

type GetServerDefaultsResponse struct {
	Defaults *ServerDefaults // 1
}

func (m *GetServerDefaultsResponse) Marshal() []byte {
	var b []byte
	if m.Defaults != nil {
		b = appendMessageField(b, 1, m.Defaults)
	}
	return b
}

func (m *GetServerDefaultsResponse) Unmarshal(b []byte) error {
	d := &decoder{buf: b}
	for d.more() {
		num, typ := d.tag()
		if num == 1 {
			m.Defaults = &ServerDefaults{}
			d.message(typ, m.Defaults)
		} else {
			d.skip(num, typ)
		}
	}
	return d.err
}
