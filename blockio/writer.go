package blockio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// ErrEndOfBlock tells the write session the current block is full and a new
// one must be allocated.
var ErrEndOfBlock = errors.New("end of block")

// PipelineUpdater is the namenode capability the writer needs for pipeline
// recovery, passed at construction instead of a back-pointer to the session.
type PipelineUpdater interface {
	UpdateBlockForPipeline(ctx context.Context, block *wire.ExtendedBlock) (*wire.LocatedBlock, error)
	UpdatePipeline(ctx context.Context, oldBlock, newBlock *wire.ExtendedBlock, nodes []*wire.DatanodeID, storageIDs []string) error
}

// Writer drives one block through a replication pipeline. Packets go to the
// first member, which forwards downstream; acknowledgments flow back and are
// collected by a background goroutine, so up to MaxPacketsInFlight packets
// ride the pipe at once. On a member failure the writer rebuilds a fresh,
// shorter pipeline under a new generation stamp and resends everything not
// yet acknowledged; dropping below MinReplication breaks the write with
// ErrPipelineBroken.
type Writer struct {
	ClientName string
	Block      *wire.LocatedBlock
	BlockSize  int64

	// Offset is the write position in the block; non-zero when appending.
	Offset int64
	Append bool

	MinReplication      int
	PacketSize          int
	BytesPerChecksum    int
	MaxPacketsInFlight  int
	UseDatanodeHostname bool
	ConnectTimeout      time.Duration

	// DataTimeout bounds every socket operation on the pipeline: packet
	// writes, the setup exchange, and ack reads. Datanodes heartbeat the
	// ack stream, so an expiry means a member stopped responding and the
	// usual recovery runs.
	DataTimeout time.Duration

	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

	Namenode PipelineUpdater

	mu   sync.Mutex
	cond *sync.Cond

	conn       net.Conn
	pipeline   []*wire.DatanodeInfo
	storageIDs []string

	// unacked holds packets sent but not yet acknowledged, in sequence
	// order; a recovery resends exactly this queue.
	unacked    *linkedlistqueue.Queue
	seqno      int64
	ackedBytes int64

	ackGen    int
	ackFailed bool
	failedIdx int

	staging []byte
	fatal   error
	closed  bool
}

func (w *Writer) init() {
	if w.cond == nil {
		w.cond = sync.NewCond(&w.mu)
		w.unacked = linkedlistqueue.New()
		w.pipeline = append([]*wire.DatanodeInfo(nil), w.Block.Locs...)
		w.storageIDs = append([]string(nil), w.Block.StorageIDs...)
		w.ackedBytes = w.Offset
	}
}

// Write stages data into packets, flushing each full packet into the
// pipeline. It accepts at most the bytes remaining in the block and returns
// ErrEndOfBlock alongside the accepted count when the boundary is hit.
func (w *Writer) Write(b []byte) (int, error) {
	w.init()
	if w.closed {
		return 0, common.ErrClosed
	}
	if w.fatal != nil {
		return 0, w.fatal
	}

	remaining := w.BlockSize - w.Offset - int64(len(w.staging))
	if remaining <= 0 {
		return 0, ErrEndOfBlock
	}
	blockFull := false
	if int64(len(b)) >= remaining {
		b = b[:remaining]
		blockFull = true
	}

	n := 0
	for len(b) > 0 {
		space := w.PacketSize - len(w.staging)
		take := space
		if take > len(b) {
			take = len(b)
		}
		w.staging = append(w.staging, b[:take]...)
		b = b[take:]
		n += take

		if len(w.staging) >= w.PacketSize {
			if err := w.flushStaging(false, false); err != nil {
				return n, err
			}
		}
	}
	if blockFull {
		return n, ErrEndOfBlock
	}
	return n, nil
}

// Flush forces any partial packet into the pipeline and waits until every
// outstanding packet is acknowledged. sync asks the datanodes to fsync.
func (w *Writer) Flush(sync bool) error {
	w.init()
	if w.closed {
		return common.ErrClosed
	}
	if err := w.flushStaging(false, sync); err != nil {
		return err
	}
	return w.waitAcks()
}

// Close flushes, sends the end-of-block packet, and waits for every
// acknowledgment. On success the writer's block carries the final length for
// the namenode's complete call.
func (w *Writer) Close() error {
	w.init()
	if w.closed {
		return common.ErrClosed
	}
	if w.fatal == nil {
		if err := w.flushStaging(false, false); err != nil {
			return err
		}
		if err := w.sendLastPacket(); err != nil {
			return err
		}
		if err := w.waitAcks(); err != nil {
			return err
		}
	}
	w.closed = true
	w.teardown()
	w.Block.Block.NumBytes = uint64(w.Offset)
	if w.fatal != nil {
		return w.fatal
	}
	return nil
}

// BytesAcked reports how much of the block every pipeline member has
// acknowledged.
func (w *Writer) BytesAcked() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ackedBytes
}

func (w *Writer) teardown() {
	w.mu.Lock()
	w.ackGen++
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (w *Writer) failf(format string, args ...any) error {
	w.fatal = fmt.Errorf(format, args...)
	w.teardown()
	return w.fatal
}

func (w *Writer) flushStaging(force, sync bool) error {
	if len(w.staging) == 0 && !force {
		if sync {
			// Nothing staged; a sync still needs an empty marker packet so
			// the datanodes flush what they hold.
			return w.sendPacket(NewPacket(w.nextSeqno(), w.Offset, nil, w.BytesPerChecksum, false, true))
		}
		return nil
	}
	data := w.staging
	w.staging = nil
	pkt := NewPacket(w.nextSeqno(), w.Offset, data, w.BytesPerChecksum, false, sync)
	w.Offset += int64(len(data))
	return w.sendPacket(pkt)
}

func (w *Writer) sendLastPacket() error {
	return w.sendPacket(NewPacket(w.nextSeqno(), w.Offset, nil, w.BytesPerChecksum, true, false))
}

func (w *Writer) nextSeqno() int64 {
	s := w.seqno
	w.seqno++
	return s
}

// sendPacket enqueues pkt as unacknowledged and pushes it down the pipe,
// waiting for window space first and running recovery when the pipeline has
// failed underneath us.
func (w *Writer) sendPacket(pkt *Packet) error {
	if w.fatal != nil {
		return w.fatal
	}

	w.mu.Lock()
	for w.unacked.Size() >= w.MaxPacketsInFlight && !w.ackFailed && w.fatal == nil {
		w.cond.Wait()
	}
	if w.fatal != nil {
		w.mu.Unlock()
		return w.fatal
	}
	failed := w.ackFailed
	w.unacked.Enqueue(pkt)
	w.mu.Unlock()

	if failed {
		return w.recover()
	}

	if w.conn == nil {
		stage := int32(wire.StageSetupCreate)
		if w.Append {
			stage = wire.StageSetupAppend
		}
		if err := w.setupPipeline(stage); err != nil {
			return w.recover()
		}
	}

	w.armWrite(w.conn)
	if err := pkt.WriteTo(w.conn); err != nil {
		w.noteFailure(0, timeoutUnavailable(err))
		return w.recover()
	}
	return nil
}

// The sender and the ack reader share the connection, so each side arms
// only its own direction.
func (w *Writer) armWrite(conn net.Conn) {
	if w.DataTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(w.DataTimeout))
	}
}

func (w *Writer) armRead(conn net.Conn) {
	if w.DataTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(w.DataTimeout))
	}
}

// waitAcks blocks until the unacked queue drains, recovering as needed.
func (w *Writer) waitAcks() error {
	for {
		w.mu.Lock()
		for w.unacked.Size() > 0 && !w.ackFailed && w.fatal == nil {
			w.cond.Wait()
		}
		if w.fatal != nil {
			w.mu.Unlock()
			return w.fatal
		}
		if !w.ackFailed {
			w.mu.Unlock()
			return nil
		}
		w.mu.Unlock()
		if err := w.recover(); err != nil {
			return err
		}
	}
}

func (w *Writer) noteFailure(idx int, err error) {
	w.mu.Lock()
	if !w.ackFailed {
		w.ackFailed = true
		w.failedIdx = idx
		slog.Warn("pipeline member failed", "block", w.Block.Block.BlockID, "index", idx, "error", err)
	}
	w.cond.Broadcast()
	w.mu.Unlock()
}

// recover replaces the pipeline wholesale: the failed member is dropped, the
// namenode hands out a fresh generation stamp, the shorter pipeline is
// reconnected in the recovery stage, and every unacknowledged packet is
// resent. The namenode is then told the surviving membership.
func (w *Writer) recover() error {
	ctx := context.Background()
	for {
		if w.fatal != nil {
			return w.fatal
		}

		w.mu.Lock()
		idx := w.failedIdx
		w.ackFailed = false
		w.ackGen++
		conn := w.conn
		w.conn = nil
		w.mu.Unlock()
		if conn != nil {
			conn.Close()
		}

		if idx >= 0 && idx < len(w.pipeline) {
			slog.Info("removing failed pipeline member",
				"block", w.Block.Block.BlockID,
				"datanode", w.pipeline[idx].TransferAddr(w.UseDatanodeHostname),
				"remaining", len(w.pipeline)-1)
			w.pipeline = append(w.pipeline[:idx], w.pipeline[idx+1:]...)
			if idx < len(w.storageIDs) {
				w.storageIDs = append(w.storageIDs[:idx], w.storageIDs[idx+1:]...)
			}
		}
		if len(w.pipeline) < w.MinReplication || len(w.pipeline) == 0 {
			return w.failf("%w: block %d: %d of %d members left",
				common.ErrPipelineBroken, w.Block.Block.BlockID, len(w.pipeline), w.MinReplication)
		}

		oldBlock := *w.Block.Block
		updated, err := w.Namenode.UpdateBlockForPipeline(ctx, w.Block.Block)
		if err != nil {
			return w.failf("%w: block %d: generation bump: %v", common.ErrPipelineBroken, w.Block.Block.BlockID, err)
		}
		w.Block.Block.GenerationStamp = updated.Block.GenerationStamp
		if updated.Token != nil {
			w.Block.Token = updated.Token
		}

		if err := w.setupPipeline(wire.StageSetupStreamingRecovery); err != nil {
			// The new head is bad too; drop it and go around again.
			w.noteFailure(0, err)
			continue
		}

		if err := w.resendUnacked(); err != nil {
			w.noteFailure(0, err)
			continue
		}

		newBlock := *w.Block.Block
		newBlock.NumBytes = uint64(w.Offset)
		nodes := make([]*wire.DatanodeID, len(w.pipeline))
		for i, dn := range w.pipeline {
			nodes[i] = dn.ID
		}
		if err := w.Namenode.UpdatePipeline(ctx, &oldBlock, &newBlock, nodes, w.storageIDs); err != nil {
			return w.failf("%w: block %d: update pipeline: %v", common.ErrPipelineBroken, w.Block.Block.BlockID, err)
		}
		return nil
	}
}

func (w *Writer) resendUnacked() error {
	w.mu.Lock()
	packets := w.unacked.Values()
	w.mu.Unlock()
	for _, v := range packets {
		w.armWrite(w.conn)
		if err := v.(*Packet).WriteTo(w.conn); err != nil {
			return timeoutUnavailable(err)
		}
	}
	return nil
}

// setupPipeline connects to the current head and issues the write op naming
// the downstream targets; the head builds the rest of the chain.
func (w *Writer) setupPipeline(stage int32) error {
	addr := w.pipeline[0].TransferAddr(w.UseDatanodeHostname)
	dial := w.DialFunc
	if dial == nil {
		dial = (&net.Dialer{Timeout: w.ConnectTimeout}).DialContext
	}
	conn, err := dial(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	armDeadline(conn, w.DataTimeout)

	op := &wire.WriteBlockOp{
		Header: &wire.ClientOperationHeader{
			BaseHeader: &wire.BaseHeader{Block: w.Block.Block, Token: w.Block.Token},
			ClientName: w.ClientName,
		},
		Targets:               w.pipeline[1:],
		Stage:                 stage,
		PipelineSize:          uint32(len(w.pipeline)),
		MinBytesRcvd:          uint64(w.BytesAcked()),
		MaxBytesRcvd:          uint64(w.Offset),
		LatestGenerationStamp: w.Block.Block.GenerationStamp,
		RequestedChecksum: &wire.Checksum{
			Type:             wire.ChecksumTypeCRC32C,
			BytesPerChecksum: uint32(w.BytesPerChecksum),
		},
	}
	if err := writeTransferOp(conn, wire.OpWriteBlock, op); err != nil {
		conn.Close()
		return timeoutUnavailable(err)
	}
	resp, err := readBlockOpResponse(conn)
	if err != nil {
		conn.Close()
		return timeoutUnavailable(err)
	}
	if err := statusError(resp); err != nil {
		conn.Close()
		if resp.FirstBadLink != "" {
			if idx := w.memberIndex(resp.FirstBadLink); idx > 0 {
				w.mu.Lock()
				w.failedIdx = idx
				w.ackFailed = true
				w.mu.Unlock()
			}
		}
		return err
	}

	// Setup is done; from here each direction carries its own deadline.
	conn.SetDeadline(time.Time{})

	w.mu.Lock()
	w.conn = conn
	w.ackGen++
	gen := w.ackGen
	w.mu.Unlock()
	go w.ackLoop(gen, conn)
	return nil
}

func (w *Writer) memberIndex(addr string) int {
	for i, dn := range w.pipeline {
		if dn.TransferAddr(w.UseDatanodeHostname) == addr {
			return i
		}
	}
	return -1
}

// ackLoop collects pipeline acknowledgments for one pipeline incarnation.
// Sequence numbers must match the head of the unacked queue exactly: a gap
// or reordering is a transport failure. A non-success reply names the failed
// member by its position in the pipeline.
func (w *Writer) ackLoop(gen int, conn net.Conn) {
	for {
		w.armRead(conn)
		ack := &wire.PipelineAck{}
		err := wire.ReadPrefixed(conn, ack)

		w.mu.Lock()
		if gen != w.ackGen {
			// A recovery replaced this pipeline; this reader is done.
			w.mu.Unlock()
			return
		}
		if err != nil {
			w.mu.Unlock()
			w.noteFailure(0, timeoutUnavailable(err))
			return
		}
		if ack.Seqno < 0 {
			// Heartbeat ack.
			w.mu.Unlock()
			continue
		}

		for i, status := range ack.Replies {
			if status != wire.StatusSuccess {
				w.mu.Unlock()
				w.noteFailure(i, fmt.Errorf("ack status %d from member %d", status, i))
				return
			}
		}

		head, ok := w.unacked.Peek()
		if !ok || head.(*Packet).Header.Seqno != ack.Seqno {
			w.mu.Unlock()
			w.noteFailure(0, fmt.Errorf("ack out of sequence: got %d", ack.Seqno))
			return
		}
		pkt := head.(*Packet)
		w.unacked.Dequeue()
		w.ackedBytes = pkt.Header.OffsetInBlock + int64(pkt.Header.DataLen)
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}
