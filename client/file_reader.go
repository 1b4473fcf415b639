package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/peakfs/hdfsclient/blockio"
	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// FileReader streams a file's content block by block. It implements
// io.Reader, io.ReaderAt, io.Seeker, and io.Closer. Replica failover happens
// inside each block; when a whole block has gone unavailable the reader
// refreshes its cached locations from the namenode once before giving up.
type FileReader struct {
	client *Client
	path   string
	size   int64
	blocks []*wire.LocatedBlock

	offset    int64
	current   *blockio.Reader
	refreshed bool
	closed    bool
}

// Open opens p for reading.
func (c *Client) Open(ctx context.Context, p string) (*FileReader, error) {
	status, err := c.nn.GetFileInfo(ctx, p)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if status.FileType == wire.FileTypeDir {
		return nil, &fs.PathError{Op: "open", Path: p, Err: errors.New("is a directory")}
	}

	f := &FileReader{client: c, path: p, size: int64(status.Length)}
	if f.size > 0 {
		if err := f.fetchBlocks(ctx); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *FileReader) fetchBlocks(ctx context.Context) error {
	located, err := f.client.nn.GetBlockLocations(ctx, f.path, 0, uint64(f.size))
	if err != nil {
		return err
	}
	if located == nil {
		return &fs.PathError{Op: "open", Path: f.path, Err: fs.ErrNotExist}
	}
	f.blocks = located.Blocks
	return nil
}

// Size returns the file length observed at open time.
func (f *FileReader) Size() int64 { return f.size }

// Read implements io.Reader.
func (f *FileReader) Read(b []byte) (int, error) {
	if f.closed {
		return 0, common.ErrClosed
	}
	if f.offset >= f.size {
		return 0, io.EOF
	}

	for {
		if f.current == nil {
			if err := f.openBlock(); err != nil {
				return 0, err
			}
		}
		n, err := f.current.Read(b)
		if n > 0 {
			f.offset += int64(n)
			f.refreshed = false
			return n, nil
		}
		switch {
		case err == io.EOF:
			// Block exhausted; the next Read moves to the following block.
			f.dropCurrent()
			if f.offset >= f.size {
				return 0, io.EOF
			}
		case errors.Is(err, common.ErrBlockUnavailable) && !f.refreshed:
			// Every cached replica failed. The namenode may know better by
			// now; refresh locations once and retry from the same offset.
			f.refreshed = true
			f.dropCurrent()
			if rerr := f.fetchBlocks(context.Background()); rerr != nil {
				return 0, rerr
			}
		case err != nil:
			return 0, err
		}
	}
}

// ReadAt implements io.ReaderAt, independent of the seek position.
func (f *FileReader) ReadAt(b []byte, off int64) (int, error) {
	if f.closed {
		return 0, common.ErrClosed
	}
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	tmp := &FileReader{client: f.client, path: f.path, size: f.size, blocks: f.blocks, offset: off}
	defer tmp.Close()
	n, err := io.ReadFull(tmp, b)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return n, err
}

// Seek implements io.Seeker.
func (f *FileReader) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, common.ErrClosed
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.offset + offset
	case io.SeekEnd:
		target = f.size + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if target < 0 {
		return 0, errors.New("seek before start of file")
	}
	if target != f.offset {
		f.dropCurrent()
		f.offset = target
	}
	return target, nil
}

// Close releases the reader.
func (f *FileReader) Close() error {
	if f.closed {
		return common.ErrClosed
	}
	f.closed = true
	f.dropCurrent()
	return nil
}

func (f *FileReader) dropCurrent() {
	if f.current != nil {
		f.current.Close()
		f.current = nil
	}
}

// openBlock positions a block reader at the current file offset.
func (f *FileReader) openBlock() error {
	lb := f.blockFor(f.offset)
	if lb == nil {
		return fmt.Errorf("%w: no block covers offset %d of %s", common.ErrBlockUnavailable, f.offset, f.path)
	}
	within := f.offset - int64(lb.Offset)
	f.current = &blockio.Reader{
		ClientName:     f.client.name,
		Block:          lb,
		Offset:         within,
		Length:         int64(lb.Block.NumBytes) - within,
		ConnectTimeout: f.client.cfg.ConnectTimeout,
		DataTimeout:    f.client.cfg.DataTimeout,
	}
	return nil
}

func (f *FileReader) blockFor(off int64) *wire.LocatedBlock {
	for _, lb := range f.blocks {
		start := int64(lb.Offset)
		if off >= start && off < start+int64(lb.Block.NumBytes) {
			return lb
		}
	}
	return nil
}
