// Package client is the user-facing surface of the filesystem client: a
// Client handle for metadata operations plus FileReader and FileWriter
// sessions for streaming data. One Client carries one namenode identity and
// one background lease renewer shared by all of its writers.
package client

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/namenode"
	"github.com/peakfs/hdfsclient/wire"
)

// Permission bits used when the caller does not care.
const (
	DefaultFilePerm = 0o644
	DefaultDirPerm  = 0o755
)

// FileInfo is the metadata view of one file or directory.
type FileInfo struct {
	Name        string
	Path        string
	Size        int64
	Dir         bool
	Perm        uint32
	Owner       string
	Group       string
	ModTime     time.Time
	AccessTime  time.Time
	Replication uint32
	BlockSize   int64
}

func fileInfoFrom(dir string, status *wire.FileStatus) *FileInfo {
	name := string(status.Path)
	full := dir
	if name != "" {
		full = path.Join(dir, name)
	} else {
		name = path.Base(dir)
	}
	return &FileInfo{
		Name:        name,
		Path:        full,
		Size:        int64(status.Length),
		Dir:         status.FileType == wire.FileTypeDir,
		Perm:        permOf(status),
		Owner:       status.Owner,
		Group:       status.Group,
		ModTime:     time.UnixMilli(int64(status.ModificationTime)),
		AccessTime:  time.UnixMilli(int64(status.AccessTime)),
		Replication: status.BlockReplication,
		BlockSize:   int64(status.BlockSize),
	}
}

func permOf(status *wire.FileStatus) uint32 {
	if status.Permission == nil {
		return 0
	}
	return status.Permission.Perm
}

// Client is a handle on one filesystem. It is safe for concurrent use; the
// sessions it hands out are not.
type Client struct {
	cfg      common.Config
	name     string
	clientID []byte
	nn       *namenode.Client
	lease    *leaseRenewer

	mu       sync.Mutex
	defaults *wire.ServerDefaults
	closed   bool
}

// New builds a Client from cfg. No connection is made until the first
// operation.
func New(cfg common.Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	name := "hdfsclient_" + id.String()
	c := &Client{
		cfg:      cfg,
		name:     name,
		clientID: id[:],
		nn:       namenode.New(cfg, name, id[:]),
	}
	c.lease = newLeaseRenewer(c.nn, cfg.LeaseInterval, cfg.LeaseThreshold)
	return c, nil
}

// Close stops the lease renewer and drops the namenode connection. Open
// sessions become unusable.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return common.ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.lease.close()
	return c.nn.Close()
}

// Stat returns metadata for the file or directory at p, or fs.ErrNotExist.
func (c *Client) Stat(ctx context.Context, p string) (*FileInfo, error) {
	status, err := c.nn.GetFileInfo(ctx, p)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return fileInfoFrom(p, status), nil
}

// Exists reports whether p names an existing file or directory.
func (c *Client) Exists(ctx context.Context, p string) (bool, error) {
	_, err := c.Stat(ctx, p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns the children of directory p, following the namenode's paging
// until the listing is complete.
func (c *Client) List(ctx context.Context, p string) ([]*FileInfo, error) {
	var (
		infos []*FileInfo
		start []byte
	)
	for {
		listing, err := c.nn.GetListing(ctx, p, start)
		if err != nil {
			return nil, err
		}
		if listing == nil {
			return nil, &fs.PathError{Op: "list", Path: p, Err: fs.ErrNotExist}
		}
		for _, status := range listing.PartialListing {
			infos = append(infos, fileInfoFrom(p, status))
		}
		if listing.RemainingEntries == 0 || len(listing.PartialListing) == 0 {
			return infos, nil
		}
		start = listing.PartialListing[len(listing.PartialListing)-1].Path
	}
}

// Mkdir creates directory p, with parents when createParent is set.
func (c *Client) Mkdir(ctx context.Context, p string, perm uint32, createParent bool) error {
	ok, err := c.nn.Mkdirs(ctx, p, perm, createParent)
	if err != nil {
		return err
	}
	if !ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: errors.New("not created")}
	}
	return nil
}

// Delete removes p. Non-empty directories need recursive.
func (c *Client) Delete(ctx context.Context, p string, recursive bool) error {
	ok, err := c.nn.Delete(ctx, p, recursive)
	if err != nil {
		return err
	}
	if !ok {
		return &fs.PathError{Op: "delete", Path: p, Err: fs.ErrNotExist}
	}
	return nil
}

// Rename moves src to dst.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	ok, err := c.nn.Rename(ctx, src, dst)
	if err != nil {
		return err
	}
	if !ok {
		return &fs.PathError{Op: "rename", Path: src, Err: errors.New("not renamed")}
	}
	return nil
}

// Chmod sets the permission bits on p.
func (c *Client) Chmod(ctx context.Context, p string, perm uint32) error {
	return c.nn.SetPermission(ctx, p, perm)
}

// ServerDefaults returns the server-side defaults, fetched once and cached.
func (c *Client) ServerDefaults(ctx context.Context) (*wire.ServerDefaults, error) {
	c.mu.Lock()
	cached := c.defaults
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	defaults, err := c.nn.ServerDefaults(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.defaults = defaults
	c.mu.Unlock()
	return defaults, nil
}
