package client

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/fs"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakfs/hdfsclient/blockio"
	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

const dnChunkSize = 16

// --- fake datanode ---

// fakeDataNode serves block reads and pipeline writes from an in-memory
// block store. Write packets land positionally by their block offset, so a
// pipeline recovery that resends only unacknowledged packets reconstructs
// the block correctly. One ack failure can be injected for a chosen block.
type fakeDataNode struct {
	t  *testing.T
	ln net.Listener

	mu        sync.Mutex
	blocks    map[uint64][]byte
	failBlock uint64
	failReply int
	failed    bool
}

func startDataNode(t *testing.T) *fakeDataNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	dn := &fakeDataNode{t: t, ln: ln, blocks: make(map[uint64][]byte)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go dn.handle(conn)
		}
	}()
	return dn
}

func (dn *fakeDataNode) addr() string { return dn.ln.Addr().String() }

func (dn *fakeDataNode) handle(conn net.Conn) {
	defer conn.Close()
	var head [3]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return
	}
	switch head[2] {
	case wire.OpWriteBlock:
		dn.handleWrite(conn)
	case wire.OpReadBlock:
		dn.handleRead(conn)
	}
}

func dnSuccessReplies(n int) []int32 {
	replies := make([]int32, n)
	for i := range replies {
		replies[i] = wire.StatusSuccess
	}
	return replies
}

func (dn *fakeDataNode) handleWrite(conn net.Conn) {
	op := &wire.WriteBlockOp{}
	if err := wire.ReadPrefixed(conn, op); err != nil {
		return
	}
	blockID := op.Header.BaseHeader.Block.BlockID
	members := 1 + len(op.Targets)
	conn.Write(wire.AppendPrefixed(nil, &wire.BlockOpResponse{Status: wire.StatusSuccess}))

	for {
		pkt, err := blockio.ReadPacket(conn)
		if err != nil {
			return
		}

		dn.mu.Lock()
		inject := dn.failBlock == blockID && !dn.failed && pkt.Header.LastPacketInBlock
		if inject {
			dn.failed = true
		}
		dn.mu.Unlock()
		if inject {
			replies := dnSuccessReplies(members)
			replies[dn.failReply] = wire.StatusError
			conn.Write(wire.AppendPrefixed(nil, &wire.PipelineAck{Seqno: pkt.Header.Seqno, Replies: replies}))
			return
		}

		if len(pkt.Data) > 0 {
			dn.mu.Lock()
			buf := dn.blocks[blockID]
			end := pkt.Header.OffsetInBlock + int64(len(pkt.Data))
			if int64(len(buf)) < end {
				buf = append(buf, make([]byte, end-int64(len(buf)))...)
			}
			copy(buf[pkt.Header.OffsetInBlock:], pkt.Data)
			dn.blocks[blockID] = buf
			dn.mu.Unlock()
		}

		if _, err := conn.Write(wire.AppendPrefixed(nil, &wire.PipelineAck{
			Seqno:   pkt.Header.Seqno,
			Replies: dnSuccessReplies(members),
		})); err != nil {
			return
		}
		if pkt.Header.LastPacketInBlock {
			return
		}
	}
}

func (dn *fakeDataNode) handleRead(conn net.Conn) {
	op := &wire.ReadBlockOp{}
	if err := wire.ReadPrefixed(conn, op); err != nil {
		return
	}
	dn.mu.Lock()
	data := append([]byte(nil), dn.blocks[op.Header.BaseHeader.Block.BlockID]...)
	dn.mu.Unlock()

	start := int64(op.Offset) - int64(op.Offset)%dnChunkSize
	resp := &wire.BlockOpResponse{
		Status: wire.StatusSuccess,
		ReadOpChecksumInfo: &wire.ReadOpChecksumInfo{
			Checksum:    &wire.Checksum{Type: wire.ChecksumTypeCRC32C, BytesPerChecksum: dnChunkSize},
			ChunkOffset: uint64(start),
		},
	}
	if _, err := conn.Write(wire.AppendPrefixed(nil, resp)); err != nil {
		return
	}

	const packetData = 4 * dnChunkSize
	seqno := int64(0)
	for off := start; off < int64(len(data)); off += packetData {
		end := off + packetData
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		chunk := append([]byte(nil), data[off:end]...)
		if err := blockio.NewPacket(seqno, off, chunk, dnChunkSize, false, false).WriteTo(conn); err != nil {
			return
		}
		seqno++
	}
	blockio.NewPacket(seqno, int64(len(data)), nil, dnChunkSize, true, false).WriteTo(conn)
	wire.ReadPrefixed(conn, &wire.ClientReadStatus{})
}

// --- fake namenode ---

type nnFile struct {
	id     uint64
	dir    bool
	perm   uint32
	blocks []*wire.LocatedBlock
	size   uint64
	open   bool
}

// fakeNameNode implements just enough of the metadata protocol to drive the
// client: a path table, sequential block allocation against one real
// datanode head plus optional phantom downstream targets, and switches for
// standby behavior, failed renewals, and delayed completion.
type fakeNameNode struct {
	t      *testing.T
	ln     net.Listener
	dnAddr string
	// phantomTargets are downstream pipeline members that exist only in
	// block locations; the head datanode never actually forwards to them.
	phantomTargets []string

	mu            sync.Mutex
	standby       bool
	files         map[string]*nnFile
	nextID        uint64
	nextBlock     uint64
	completeFalse int
	renewFail     bool
	renewals      int
	genBumps      int
	pipelineUpds  int
}

func startNameNode(t *testing.T, dnAddr string, phantoms ...string) *fakeNameNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	nn := &fakeNameNode{
		t:              t,
		ln:             ln,
		dnAddr:         dnAddr,
		phantomTargets: phantoms,
		files:          map[string]*nnFile{"/": {dir: true, perm: DefaultDirPerm}},
		nextID:         100,
		nextBlock:      1,
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go nn.serveConn(conn)
		}
	}()
	return nn
}

func (nn *fakeNameNode) addr() string { return nn.ln.Addr().String() }

func (nn *fakeNameNode) setStandby(v bool) {
	nn.mu.Lock()
	nn.standby = v
	nn.mu.Unlock()
}

func (nn *fakeNameNode) serveConn(conn net.Conn) {
	defer conn.Close()
	preamble := make([]byte, 7)
	if _, err := io.ReadFull(conn, preamble); err != nil {
		return
	}
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
			return
		}
		frame := make([]byte, binary.BigEndian.Uint32(lenBuf[:]))
		if _, err := io.ReadFull(conn, frame); err != nil {
			return
		}

		header := &wire.RPCRequestHeader{}
		rest, err := wire.ConsumePrefixed(frame, header)
		if err != nil {
			return
		}
		if header.CallID == wire.CallIDConnectionContext {
			continue
		}
		req := &wire.RequestHeader{}
		rest, err = wire.ConsumePrefixed(rest, req)
		if err != nil {
			return
		}

		msg, exception, errMsg := nn.dispatch(req.MethodName, rest)
		respHeader := &wire.RPCResponseHeader{CallID: uint32(header.CallID), Status: wire.RPCStatusSuccess}
		if exception != "" {
			respHeader.Status = wire.RPCStatusError
			respHeader.Exception = exception
			respHeader.ErrorMessage = errMsg
		}
		body := wire.AppendPrefixed(nil, respHeader)
		if msg != nil && exception == "" {
			body = wire.AppendPrefixed(body, msg)
		}
		out := binary.BigEndian.AppendUint32(nil, uint32(len(body)))
		if _, err := conn.Write(append(out, body...)); err != nil {
			return
		}
	}
}

func (nn *fakeNameNode) dispatch(method string, payload []byte) (wire.Message, string, string) {
	nn.mu.Lock()
	defer nn.mu.Unlock()

	if nn.standby {
		return nil, common.ExceptionStandby, "operation category READ is not supported in state standby"
	}

	switch method {
	case "getFileInfo":
		req := &wire.GetFileInfoRequest{}
		wire.ConsumePrefixed(payload, req)
		f, ok := nn.files[req.Src]
		if !ok {
			return &wire.GetFileInfoResponse{}, "", ""
		}
		return &wire.GetFileInfoResponse{Status: nn.statusFor("", f)}, "", ""

	case "getListing":
		req := &wire.GetListingRequest{}
		wire.ConsumePrefixed(payload, req)
		if _, ok := nn.files[req.Src]; !ok {
			return &wire.GetListingResponse{}, "", ""
		}
		var names []string
		prefix := strings.TrimSuffix(req.Src, "/") + "/"
		for p := range nn.files {
			if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
				names = append(names, p)
			}
		}
		sort.Strings(names)
		listing := &wire.DirectoryListing{}
		for _, p := range names {
			listing.PartialListing = append(listing.PartialListing, nn.statusFor(p[len(prefix):], nn.files[p]))
		}
		return &wire.GetListingResponse{DirList: listing}, "", ""

	case "create":
		req := &wire.CreateRequest{}
		wire.ConsumePrefixed(payload, req)
		if _, exists := nn.files[req.Src]; exists && req.CreateFlag&wire.CreateFlagOverwrite == 0 {
			return nil, common.ExceptionFileAlreadyExists, req.Src
		}
		nn.nextID++
		f := &nnFile{id: nn.nextID, perm: permBits(req.Masked), open: true}
		nn.files[req.Src] = f
		return &wire.CreateResponse{Status: nn.statusFor("", f)}, "", ""

	case "mkdirs":
		req := &wire.MkdirsRequest{}
		wire.ConsumePrefixed(payload, req)
		nn.files[req.Src] = &nnFile{dir: true, perm: permBits(req.Masked)}
		return &wire.MkdirsResponse{Result: true}, "", ""

	case "delete":
		req := &wire.DeleteRequest{}
		wire.ConsumePrefixed(payload, req)
		if _, ok := nn.files[req.Src]; !ok {
			return &wire.DeleteResponse{}, "", ""
		}
		delete(nn.files, req.Src)
		return &wire.DeleteResponse{Result: true}, "", ""

	case "rename":
		req := &wire.RenameRequest{}
		wire.ConsumePrefixed(payload, req)
		f, ok := nn.files[req.Src]
		if !ok {
			return &wire.RenameResponse{}, "", ""
		}
		delete(nn.files, req.Src)
		nn.files[req.Dst] = f
		return &wire.RenameResponse{Result: true}, "", ""

	case "setPermission":
		req := &wire.SetPermissionRequest{}
		wire.ConsumePrefixed(payload, req)
		if f, ok := nn.files[req.Src]; ok {
			f.perm = permBits(req.Permission)
		}
		return &wire.SetPermissionResponse{}, "", ""

	case "addBlock":
		req := &wire.AddBlockRequest{}
		wire.ConsumePrefixed(payload, req)
		f := nn.fileByID(req.FileID, req.Src)
		if f == nil {
			return nil, common.ExceptionFileNotFound, req.Src
		}
		if req.Previous != nil {
			nn.commitBlock(f, req.Previous)
		}
		nn.nextBlock++
		lb := &wire.LocatedBlock{
			Block:  &wire.ExtendedBlock{PoolID: "BP-test", BlockID: nn.nextBlock, GenerationStamp: 1000},
			Offset: f.size,
			Locs:   nn.pipelineLocs(),
		}
		for i := range lb.Locs {
			lb.StorageIDs = append(lb.StorageIDs, "storage-"+lb.Locs[i].ID.UUID)
		}
		f.blocks = append(f.blocks, lb)
		return &wire.AddBlockResponse{Block: lb}, "", ""

	case "complete":
		req := &wire.CompleteRequest{}
		wire.ConsumePrefixed(payload, req)
		f := nn.fileByID(req.FileID, req.Src)
		if f == nil {
			return nil, common.ExceptionFileNotFound, req.Src
		}
		if nn.completeFalse > 0 {
			nn.completeFalse--
			return &wire.CompleteResponse{Result: false}, "", ""
		}
		if req.Last != nil {
			nn.commitBlock(f, req.Last)
		}
		f.open = false
		return &wire.CompleteResponse{Result: true}, "", ""

	case "getBlockLocations":
		req := &wire.GetBlockLocationsRequest{}
		wire.ConsumePrefixed(payload, req)
		f, ok := nn.files[req.Src]
		if !ok {
			return &wire.GetBlockLocationsResponse{}, "", ""
		}
		// Only the head replica is real; strip the phantoms for readers.
		located := &wire.LocatedBlocks{FileLength: f.size, IsLastBlockComplete: true}
		for _, lb := range f.blocks {
			located.Blocks = append(located.Blocks, &wire.LocatedBlock{
				Block:  lb.Block,
				Offset: lb.Offset,
				Locs:   lb.Locs[:1],
			})
		}
		return &wire.GetBlockLocationsResponse{Locations: located}, "", ""

	case "append":
		req := &wire.AppendRequest{}
		wire.ConsumePrefixed(payload, req)
		f, ok := nn.files[req.Src]
		if !ok {
			return nil, common.ExceptionFileNotFound, req.Src
		}
		f.open = true
		resp := &wire.AppendResponse{Status: nn.statusFor("", f)}
		if len(f.blocks) > 0 {
			if last := f.blocks[len(f.blocks)-1]; last.Block.NumBytes < 256 {
				resp.Block = last
			}
		}
		return resp, "", ""

	case "renewLease":
		nn.renewals++
		if nn.renewFail {
			return nil, "java.io.IOException", "injected renewal failure"
		}
		return &wire.RenewLeaseResponse{}, "", ""

	case "updateBlockForPipeline":
		req := &wire.UpdateBlockForPipelineRequest{}
		wire.ConsumePrefixed(payload, req)
		nn.genBumps++
		bumped := *req.Block
		bumped.GenerationStamp++
		return &wire.UpdateBlockForPipelineResponse{Block: &wire.LocatedBlock{Block: &bumped}}, "", ""

	case "updatePipeline":
		req := &wire.UpdatePipelineRequest{}
		wire.ConsumePrefixed(payload, req)
		nn.pipelineUpds++
		for _, f := range nn.files {
			for _, lb := range f.blocks {
				if lb.Block.BlockID == req.NewBlock.BlockID {
					lb.Block.GenerationStamp = req.NewBlock.GenerationStamp
				}
			}
		}
		return &wire.UpdatePipelineResponse{}, "", ""

	case "fsync":
		return &wire.FsyncResponse{}, "", ""

	case "getServerDefaults":
		return &wire.GetServerDefaultsResponse{Defaults: &wire.ServerDefaults{
			BlockSize:        256,
			BytesPerChecksum: dnChunkSize,
			WritePacketSize:  64,
			Replication:      2,
		}}, "", ""
	}
	return nil, "java.lang.UnsupportedOperationException", method
}

func (nn *fakeNameNode) statusFor(name string, f *nnFile) *wire.FileStatus {
	fileType := int32(wire.FileTypeFile)
	if f.dir {
		fileType = wire.FileTypeDir
	}
	return &wire.FileStatus{
		FileType:         fileType,
		Path:             []byte(name),
		Length:           f.size,
		Permission:       &wire.FsPermission{Perm: f.perm},
		Owner:            "tester",
		Group:            "supergroup",
		BlockReplication: uint32(1 + len(nn.phantomTargets)),
		BlockSize:        256,
		FileID:           f.id,
	}
}

func (nn *fakeNameNode) fileByID(id uint64, src string) *nnFile {
	if f, ok := nn.files[src]; ok {
		return f
	}
	for _, f := range nn.files {
		if id != 0 && f.id == id {
			return f
		}
	}
	return nil
}

func (nn *fakeNameNode) commitBlock(f *nnFile, committed *wire.ExtendedBlock) {
	for _, lb := range f.blocks {
		if lb.Block.BlockID == committed.BlockID {
			lb.Block.NumBytes = committed.NumBytes
		}
	}
	f.size = 0
	for _, lb := range f.blocks {
		f.size += lb.Block.NumBytes
	}
}

func (nn *fakeNameNode) pipelineLocs() []*wire.DatanodeInfo {
	locs := []*wire.DatanodeInfo{dnInfo(nn.dnAddr, "head")}
	for i, addr := range nn.phantomTargets {
		locs = append(locs, dnInfo(addr, "phantom-"+string(rune('a'+i))))
	}
	return locs
}

func dnInfo(addr, id string) *wire.DatanodeInfo {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return &wire.DatanodeInfo{ID: &wire.DatanodeID{IPAddr: host, UUID: id, XferPort: uint32(port)}}
}

func permBits(p *wire.FsPermission) uint32 {
	if p == nil {
		return 0
	}
	return p.Perm
}

// --- harness ---

func testConfig(nnAddrs ...string) common.Config {
	return common.Config{
		Addresses:          nnAddrs,
		User:               "tester",
		BlockSize:          256,
		Replication:        2,
		PacketSize:         64,
		BytesPerChecksum:   dnChunkSize,
		MaxPacketsInFlight: 4,
		MaxRetries:         4,
		BaseBackoff:        5 * time.Millisecond,
		MaxBackoff:         50 * time.Millisecond,
		MinReplication:     1,
		ConnectTimeout:     time.Second,
		RPCTimeout:         2 * time.Second,
		LeaseInterval:      time.Hour,
	}
}

func testClient(t *testing.T, cfg common.Config) *Client {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func filePattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i*13 + 7)
	}
	return data
}

// --- tests ---

func TestMetadataOperations(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())
	c := testClient(t, testConfig(nn.addr()))
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, "/data", DefaultDirPerm, true))

	exists, err := c.Exists(ctx, "/data/report")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.Stat(ctx, "/data/report")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	w, err := c.Create(ctx, "/data/report")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := c.Stat(ctx, "/data/report")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.Dir)
	assert.Equal(t, "tester", info.Owner)

	require.NoError(t, c.Mkdir(ctx, "/data/sub", DefaultDirPerm, false))
	infos, err := c.List(ctx, "/data")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "report", infos[0].Name)
	assert.Equal(t, "/data/report", infos[0].Path)
	assert.True(t, infos[1].Dir)

	require.NoError(t, c.Chmod(ctx, "/data/report", 0o600))
	require.NoError(t, c.Rename(ctx, "/data/report", "/data/report2"))
	exists, err = c.Exists(ctx, "/data/report")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Delete(ctx, "/data/report2", false))
	assert.ErrorIs(t, c.Delete(ctx, "/data/report2", false), fs.ErrNotExist)

	defaults, err := c.ServerDefaults(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), defaults.BlockSize)
}

func TestWriteReadRoundTrip(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())
	c := testClient(t, testConfig(nn.addr()))
	ctx := context.Background()

	// Three blocks: 256 + 256 + 188.
	data := filePattern(700)
	w, err := c.Create(ctx, "/big")
	require.NoError(t, err)
	n, err := w.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, int64(700), w.Size())
	require.NoError(t, w.Close())

	r, err := c.Open(ctx, "/big")
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(700), r.Size())

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got))

	// Seek back across a block boundary and reread.
	pos, err := r.Seek(200, io.SeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(200), pos)
	got, err = io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data[200:], got))

	// ReadAt spanning the second block boundary, independent of Seek state.
	buf := make([]byte, 100)
	n, err = r.ReadAt(buf, 460)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.True(t, bytes.Equal(data[460:560], buf))
}

func TestWritePipelineRecovery(t *testing.T) {
	dn := startDataNode(t)
	// Pipelines are advertised with a phantom downstream member that the
	// injected ack will blame.
	nn := startNameNode(t, dn.addr(), "10.255.255.1:9866")
	c := testClient(t, testConfig(nn.addr()))
	ctx := context.Background()

	data := filePattern(700)
	w, err := c.Create(ctx, "/recovered")
	require.NoError(t, err)

	// Second allocated block carries id 3; fail its closing packet.
	dn.mu.Lock()
	dn.failBlock = 3
	dn.failReply = 1
	dn.mu.Unlock()

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	nn.mu.Lock()
	assert.Equal(t, 1, nn.genBumps, "one generation bump for the recovery")
	assert.Equal(t, 1, nn.pipelineUpds)
	nn.mu.Unlock()

	r, err := c.Open(ctx, "/recovered")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, got), "reread equals written data after recovery")
}

func TestStandbyFailover(t *testing.T) {
	dn := startDataNode(t)
	standby := startNameNode(t, dn.addr())
	standby.setStandby(true)
	active := startNameNode(t, dn.addr())

	c := testClient(t, testConfig(standby.addr(), active.addr()))
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, "/ha", DefaultDirPerm, true))
	exists, err := c.Exists(ctx, "/ha")
	require.NoError(t, err)
	assert.True(t, exists)

	active.mu.Lock()
	_, onActive := active.files["/ha"]
	active.mu.Unlock()
	assert.True(t, onActive, "operations landed on the active namenode")
}

func TestAllNameNodesDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	ln.Close()

	cfg := testConfig(deadAddr)
	cfg.MaxRetries = 2
	c := testClient(t, cfg)

	_, err = c.Stat(context.Background(), "/anything")
	assert.ErrorIs(t, err, common.ErrNameNodeUnreachable)
}

func TestCompleteRetriesUntilReplicated(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())
	nn.mu.Lock()
	nn.completeFalse = 2
	nn.mu.Unlock()

	c := testClient(t, testConfig(nn.addr()))
	w, err := c.Create(context.Background(), "/slow")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	nn.mu.Lock()
	assert.False(t, nn.files["/slow"].open)
	nn.mu.Unlock()
}

func TestLeaseRenewalAndExpiry(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())

	cfg := testConfig(nn.addr())
	cfg.LeaseInterval = 10 * time.Millisecond
	cfg.LeaseThreshold = 3
	c := testClient(t, cfg)
	ctx := context.Background()

	w, err := c.Create(ctx, "/leased")
	require.NoError(t, err)

	// Healthy renewals tick along without disturbing the writer.
	require.Eventually(t, func() bool {
		nn.mu.Lock()
		defer nn.mu.Unlock()
		return nn.renewals >= 2
	}, 2*time.Second, 5*time.Millisecond)
	_, err = w.Write([]byte("still fine"))
	require.NoError(t, err)

	// Now every renewal fails; after the threshold the lease is presumed
	// lost and the writer is poisoned.
	nn.mu.Lock()
	nn.renewFail = true
	nn.mu.Unlock()

	require.Eventually(t, c.lease.isExpired, 5*time.Second, 10*time.Millisecond)

	_, err = w.Write([]byte("too late"))
	assert.ErrorIs(t, err, common.ErrLeaseExpired)
	assert.ErrorIs(t, w.Close(), common.ErrLeaseExpired)

	// With the failed writer gone the renewer resets for future sessions.
	assert.False(t, c.lease.isExpired())
}

func TestAppendResumesLastBlock(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())
	c := testClient(t, testConfig(nn.addr()))
	ctx := context.Background()

	first := filePattern(100)
	w, err := c.Create(ctx, "/appendable")
	require.NoError(t, err)
	_, err = w.Write(first)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// The fake namenode hands back the partially filled last block, so the
	// appended bytes continue at offset 100 of the same block.
	second := filePattern(300)[100:]
	aw, err := c.Append(ctx, "/appendable")
	require.NoError(t, err)
	assert.Equal(t, int64(100), aw.Size())
	_, err = aw.Write(second)
	require.NoError(t, err)
	require.NoError(t, aw.Close())

	r, err := c.Open(ctx, "/appendable")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(filePattern(300), got))
}

func TestDoubleCloseSurfacesErrClosed(t *testing.T) {
	dn := startDataNode(t)
	nn := startNameNode(t, dn.addr())
	c := testClient(t, testConfig(nn.addr()))
	ctx := context.Background()

	w, err := c.Create(ctx, "/once")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), common.ErrClosed)

	r, err := c.Open(ctx, "/once")
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Close(), common.ErrClosed)
}
