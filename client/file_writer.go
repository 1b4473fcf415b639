package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/peakfs/hdfsclient/blockio"
	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// FileWriter appends data to one file under the client's lease. Data flows
// through one block pipeline at a time; hitting the block boundary finalizes
// the block and allocates the next one from the namenode. Writes are not
// durable until Sync or Close returns.
type FileWriter struct {
	client      *Client
	path        string
	fileID      uint64
	blockSize   int64
	replication uint32

	size     int64
	current  *blockio.Writer
	previous *wire.ExtendedBlock
	err      error
	closed   bool
}

// Create creates a new file at p with the client's configured replication,
// block size, and default permissions, and opens it for writing.
func (c *Client) Create(ctx context.Context, p string) (*FileWriter, error) {
	return c.CreateFile(ctx, p, DefaultFilePerm, false)
}

// CreateFile creates p for writing with explicit permission bits, optionally
// overwriting an existing file.
func (c *Client) CreateFile(ctx context.Context, p string, perm uint32, overwrite bool) (*FileWriter, error) {
	status, err := c.nn.Create(ctx, p, perm, overwrite, uint32(c.cfg.Replication), uint64(c.cfg.BlockSize))
	if err != nil {
		return nil, err
	}

	w := &FileWriter{
		client:      c,
		path:        p,
		blockSize:   c.cfg.BlockSize,
		replication: uint32(c.cfg.Replication),
	}
	if status != nil {
		w.fileID = status.FileID
		if status.BlockSize > 0 {
			w.blockSize = int64(status.BlockSize)
		}
		if status.BlockReplication > 0 {
			w.replication = status.BlockReplication
		}
	}
	c.lease.register(p)
	return w, nil
}

// Append reopens p for writing at its current end. A partially filled last
// block is resumed in place; a full one leaves the writer to allocate fresh.
func (c *Client) Append(ctx context.Context, p string) (*FileWriter, error) {
	resp, err := c.nn.Append(ctx, p)
	if err != nil {
		return nil, err
	}

	w := &FileWriter{
		client:      c,
		path:        p,
		blockSize:   c.cfg.BlockSize,
		replication: uint32(c.cfg.Replication),
	}
	if resp.Status != nil {
		w.size = int64(resp.Status.Length)
		w.fileID = resp.Status.FileID
		if resp.Status.BlockSize > 0 {
			w.blockSize = int64(resp.Status.BlockSize)
		}
		if resp.Status.BlockReplication > 0 {
			w.replication = resp.Status.BlockReplication
		}
	}
	if resp.Block != nil {
		w.current = w.blockWriter(resp.Block, true)
	}
	c.lease.register(p)
	return w, nil
}

// Size returns the byte length of the file as written so far, including
// bytes not yet acknowledged.
func (w *FileWriter) Size() int64 { return w.size }

// Write implements io.Writer, spilling across block boundaries as needed.
func (w *FileWriter) Write(b []byte) (int, error) {
	if w.closed {
		return 0, common.ErrClosed
	}
	if err := w.check(); err != nil {
		return 0, err
	}

	total := 0
	for len(b) > 0 {
		if w.current == nil {
			if err := w.allocateBlock(); err != nil {
				return total, err
			}
		}
		n, err := w.current.Write(b)
		total += n
		w.size += int64(n)
		b = b[n:]
		if errors.Is(err, blockio.ErrEndOfBlock) {
			if err := w.finishBlock(); err != nil {
				return total, err
			}
			continue
		}
		if err != nil {
			w.err = err
			return total, err
		}
	}
	return total, nil
}

// Flush pushes buffered data into the pipeline and waits until every replica
// acknowledged it. Durability against datanode restarts still needs Sync.
func (w *FileWriter) Flush() error {
	if w.closed {
		return common.ErrClosed
	}
	if err := w.check(); err != nil {
		return err
	}
	if w.current == nil {
		return nil
	}
	if err := w.current.Flush(false); err != nil {
		w.err = err
		return err
	}
	return nil
}

// Sync flushes with a disk sync on every replica and records the flushed
// length at the namenode.
func (w *FileWriter) Sync(ctx context.Context) error {
	if w.closed {
		return common.ErrClosed
	}
	if err := w.check(); err != nil {
		return err
	}
	var last int64 = -1
	if w.current != nil {
		if err := w.current.Flush(true); err != nil {
			w.err = err
			return err
		}
		last = w.current.BytesAcked()
	}
	return w.client.nn.Fsync(ctx, w.path, last)
}

// Close finalizes the open block and completes the file at the namenode.
// The namenode reports completion false until the minimum replication is
// met, so completion is retried with backoff.
func (w *FileWriter) Close() error {
	if w.closed {
		return common.ErrClosed
	}
	w.closed = true
	defer w.client.lease.unregister(w.path)

	if w.err != nil {
		return w.err
	}
	if w.current != nil {
		if err := w.finishBlock(); err != nil {
			return err
		}
	}
	return w.complete()
}

func (w *FileWriter) check() error {
	if w.err != nil {
		return w.err
	}
	if w.client.lease.isExpired() {
		w.err = fmt.Errorf("%w: %s", common.ErrLeaseExpired, w.path)
		return w.err
	}
	return nil
}

func (w *FileWriter) blockWriter(lb *wire.LocatedBlock, resume bool) *blockio.Writer {
	cfg := w.client.cfg
	bw := &blockio.Writer{
		ClientName:         w.client.name,
		Block:              lb,
		BlockSize:          w.blockSize,
		MinReplication:     cfg.MinReplication,
		PacketSize:         cfg.PacketSize,
		BytesPerChecksum:   cfg.BytesPerChecksum,
		MaxPacketsInFlight: cfg.MaxPacketsInFlight,
		ConnectTimeout:     cfg.ConnectTimeout,
		DataTimeout:        cfg.DataTimeout,
		Namenode:           w.client.nn,
	}
	if resume {
		bw.Append = true
		bw.Offset = int64(lb.Block.NumBytes)
	}
	return bw
}

func (w *FileWriter) allocateBlock() error {
	lb, err := w.client.nn.AddBlock(context.Background(), w.path, w.previous, nil, w.fileID)
	if err != nil {
		w.err = err
		return err
	}
	w.current = w.blockWriter(lb, false)
	return nil
}

func (w *FileWriter) finishBlock() error {
	err := w.current.Close()
	if err != nil {
		w.err = err
		return err
	}
	w.previous = w.current.Block.Block
	w.current = nil
	return nil
}

func (w *FileWriter) complete() error {
	ctx := context.Background()
	backoff := common.Backoff{Base: w.client.cfg.BaseBackoff, Max: w.client.cfg.MaxBackoff}
	attempts := w.client.cfg.MaxRetries
	for attempt := 0; ; attempt++ {
		done, err := w.client.nn.Complete(ctx, w.path, w.previous, w.fileID)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt+1 >= attempts {
			return fmt.Errorf("complete %s: replication not satisfied after %d attempts", w.path, attempts)
		}
		if err := backoff.Sleep(ctx, attempt); err != nil {
			return err
		}
	}
}
