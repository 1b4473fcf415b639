package blockio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// armDeadline bounds the next socket operation on a data-plane connection.
// Zero disables the deadline.
func armDeadline(conn net.Conn, d time.Duration) {
	if d > 0 {
		conn.SetDeadline(time.Now().Add(d))
	}
}

// timeoutUnavailable reclassifies a deadline expiry as unavailability so a
// stalled peer takes the same failover paths as an unreachable one.
func timeoutUnavailable(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return err
}

// Reader streams one block from its replicas. Locations are attempted in the
// order the namenode ranked them; a connection failure or checksum mismatch
// marks the replica failed for this block and moves to the next. Data is
// only handed to the caller after its chunk checksums verify, so a corrupt
// chunk costs a re-read from the failed chunk's boundary on another replica,
// never the bytes already returned.
type Reader struct {
	ClientName string
	Block      *wire.LocatedBlock

	// Offset and Length bound the read within the block.
	Offset int64
	Length int64

	UseDatanodeHostname bool
	ConnectTimeout      time.Duration

	// DataTimeout bounds every socket operation on the replica stream; a
	// replica that accepts the op and then stalls is failed over like one
	// that refused the connection.
	DataTimeout time.Duration

	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

	failover *common.Failover
	conn     net.Conn

	// Chunk width advertised by the replica serving the stream.
	bytesPerChecksum int

	// Current packet buffer, already checksum-verified.
	buf     []byte
	lastPkt bool
	closed  bool
}

// Read implements io.Reader over the configured block range, failing over
// across replicas internally. Exhaustion of every replica surfaces
// ErrBlockUnavailable.
func (r *Reader) Read(b []byte) (int, error) {
	if r.closed {
		return 0, common.ErrClosed
	}
	if r.Length <= 0 {
		return 0, io.EOF
	}

	for {
		if r.conn == nil {
			if err := r.connectNext(); err != nil {
				return 0, err
			}
		}

		n, err := r.readBuffered(b)
		if err == nil {
			return n, nil
		}
		// This replica failed mid-stream; any verified bytes are already
		// out. Move on to the next replica from the current offset.
		slog.Debug("replica failed during read", "block", r.Block.Block.BlockID, "error", err)
		r.failover.RecordFailure(err)
		r.dropConn()
	}
}

// Close releases the connection. The read status has already been reported
// if the stream completed.
func (r *Reader) Close() error {
	if r.closed {
		return common.ErrClosed
	}
	r.closed = true
	r.dropConn()
	return nil
}

func (r *Reader) dropConn() {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
	r.buf = nil
	r.lastPkt = false
}

// connectNext attempts replicas until one accepts the read op.
func (r *Reader) connectNext() error {
	if r.failover == nil {
		addrs := make([]string, len(r.Block.Locs))
		for i, loc := range r.Block.Locs {
			addrs[i] = loc.TransferAddr(r.UseDatanodeHostname)
		}
		r.failover = common.NewFailover(addrs)
	}

	for r.failover.Remaining() > 0 {
		addr := r.failover.Next()
		err := r.connect(addr)
		if err == nil {
			return nil
		}
		slog.Debug("replica connect failed", "address", addr, "block", r.Block.Block.BlockID, "error", err)
		r.failover.RecordFailure(err)
	}
	return fmt.Errorf("%w: block %d: %v", common.ErrBlockUnavailable, r.Block.Block.BlockID, r.failover.LastError())
}

func (r *Reader) connect(addr string) error {
	dial := r.DialFunc
	if dial == nil {
		dial = (&net.Dialer{Timeout: r.ConnectTimeout}).DialContext
	}
	conn, err := dial(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	armDeadline(conn, r.DataTimeout)

	op := &wire.ReadBlockOp{
		Header: &wire.ClientOperationHeader{
			BaseHeader: &wire.BaseHeader{Block: r.Block.Block, Token: r.Block.Token},
			ClientName: r.ClientName,
		},
		Offset:        uint64(r.Offset),
		Len:           uint64(r.Length),
		SendChecksums: true,
	}
	if err := writeTransferOp(conn, wire.OpReadBlock, op); err != nil {
		conn.Close()
		return timeoutUnavailable(err)
	}
	resp, err := readBlockOpResponse(conn)
	if err != nil {
		conn.Close()
		return timeoutUnavailable(err)
	}
	if err := statusError(resp); err != nil {
		// Covers token rejection and a stale generation stamp on this
		// replica; both disqualify the replica, not the block.
		conn.Close()
		return err
	}

	// The datanode aligns the stream down to a chunk boundary; skip the
	// lead-in up to the requested offset once the first packet arrives.
	discard := int64(0)
	r.bytesPerChecksum = common.DefaultBytesPerChecksum
	if info := resp.ReadOpChecksumInfo; info != nil {
		if info.Checksum != nil && info.Checksum.BytesPerChecksum > 0 {
			r.bytesPerChecksum = int(info.Checksum.BytesPerChecksum)
		}
		if uint64(r.Offset) > info.ChunkOffset {
			discard = r.Offset - int64(info.ChunkOffset)
		}
	}

	r.conn = conn
	r.buf = nil
	r.lastPkt = false
	if err := r.fillBuffer(discard); err != nil {
		r.dropConn()
		return err
	}
	return nil
}

// fillBuffer pulls packets until verified data is buffered, dropping the
// first discard bytes of chunk-alignment lead-in.
func (r *Reader) fillBuffer(discard int64) error {
	for {
		armDeadline(r.conn, r.DataTimeout)
		pkt, err := ReadPacket(r.conn)
		if err != nil {
			return timeoutUnavailable(err)
		}
		if bad := pkt.VerifyChecksums(r.bytesPerChecksum); bad >= 0 {
			return fmt.Errorf("%w: block %d chunk %d", common.ErrChecksum, r.Block.Block.BlockID, bad)
		}
		if pkt.Header.LastPacketInBlock {
			r.lastPkt = true
			// The stream is fully verified; report it back clean before the
			// connection goes.
			status := &wire.ClientReadStatus{Status: wire.StatusChecksumOK}
			r.conn.Write(wire.AppendPrefixed(nil, status))
			if len(pkt.Data) == 0 {
				return nil
			}
		}
		data := pkt.Data
		if discard > 0 {
			if discard >= int64(len(data)) {
				discard -= int64(len(data))
				continue
			}
			data = data[discard:]
			discard = 0
		}
		if len(data) == 0 && !r.lastPkt {
			continue
		}
		r.buf = data
		return nil
	}
}

func (r *Reader) readBuffered(b []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.lastPkt {
			// Stream ended short of the requested range.
			return 0, io.ErrUnexpectedEOF
		}
		if err := r.fillBuffer(0); err != nil {
			return 0, err
		}
	}

	n := copy(b, r.buf)
	if int64(n) > r.Length {
		n = int(r.Length)
	}
	r.buf = r.buf[n:]
	r.Offset += int64(n)
	r.Length -= int64(n)
	if r.Length <= 0 {
		r.dropConn()
	}
	return n, nil
}
