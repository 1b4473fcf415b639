// Package namenode issues metadata RPCs against the namenode, failing over
// across the configured HA rotation. One Client is shared by every session of
// a filesystem handle; calls are multiplexed over a single pooled connection
// per active address.
package namenode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/transport"
	"github.com/peakfs/hdfsclient/wire"
)

// Non-idempotent methods are replayed with a stable call id and a climbing
// retry count, so a retry after a timeout is recognized by the server's retry
// cache instead of failing a create that actually went through.
var nonIdempotent = map[string]bool{
	"create":   true,
	"append":   true,
	"addBlock": true,
}

// Client is the metadata client.
type Client struct {
	cfg        common.Config
	clientName string
	clientID   []byte

	mu      sync.Mutex
	conn    *transport.Conn
	current int
	nextID  int32
}

// New builds a namenode client. clientName identifies this filesystem client
// for lease purposes; clientID is the 16-byte id carried in every RPC header.
func New(cfg common.Config, clientName string, clientID []byte) *Client {
	return &Client{cfg: cfg, clientName: clientName, clientID: clientID}
}

// ClientName returns the lease identity of this client.
func (c *Client) ClientName() string {
	return c.clientName
}

// Close tears down the pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

func (c *Client) nextCallID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

// connection returns the live pooled connection, dialing the current rotation
// member if needed.
func (c *Client) connection(ctx context.Context) (*transport.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.conn.Alive() {
		return c.conn, nil
	}
	addr := c.cfg.Addresses[c.current]
	spn := c.cfg.ServicePrincipal
	if spn == "" {
		spn = "nn/" + common.HostOfEndpoint(addr)
	}
	conn, err := transport.Connect(ctx, transport.Options{
		Addr:             addr,
		User:             c.cfg.User,
		ClientID:         c.clientID,
		Auth:             c.cfg.Auth,
		Kerberos:         c.cfg.Kerberos,
		ServicePrincipal: spn,
		ConnectTimeout:   c.cfg.ConnectTimeout,
		IdleTimeout:      c.cfg.IdleTimeout,
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// failover drops the pooled connection and advances the rotation.
func (c *Client) failover(reason error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	from := c.cfg.Addresses[c.current]
	c.current = (c.current + 1) % len(c.cfg.Addresses)
	slog.Info("namenode failover", "from", from, "to", c.cfg.Addresses[c.current], "reason", reason)
}

// Execute runs one metadata RPC with retry and failover. A standby response
// advances the rotation exactly like a transport failure; retries are bounded
// and backed off per the configuration, and exhaustion surfaces as
// ErrNameNodeUnreachable.
func (c *Client) Execute(ctx context.Context, method string, req, resp wire.Message) error {
	replayed := nonIdempotent[method]
	stableID := c.nextCallID()

	backoff := common.Backoff{Base: c.cfg.BaseBackoff, Max: c.cfg.MaxBackoff}
	err := common.Retry(ctx, c.cfg.MaxRetries, backoff, func(attempt int) error {
		callID := stableID
		retryCount := int32(attempt)
		if !replayed {
			if attempt > 0 {
				callID = c.nextCallID()
			}
			retryCount = wire.InvalidRetryCount
		}

		conn, err := c.connection(ctx)
		if err != nil {
			c.failover(err)
			return err
		}

		callCtx := ctx
		if c.cfg.RPCTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.RPCTimeout)
			defer cancel()
		}
		err = conn.Call(callCtx, callID, retryCount, method, req, resp)
		if common.Retriable(err) {
			c.failover(err)
		}
		return err
	})
	if err != nil && common.Retriable(err) {
		return fmt.Errorf("%w: %s: %v", common.ErrNameNodeUnreachable, method, err)
	}
	return err
}

// Typed wrappers for the ClientProtocol methods this client issues.

func (c *Client) GetBlockLocations(ctx context.Context, src string, offset, length uint64) (*wire.LocatedBlocks, error) {
	resp := &wire.GetBlockLocationsResponse{}
	err := c.Execute(ctx, "getBlockLocations", &wire.GetBlockLocationsRequest{Src: src, Offset: offset, Length: length}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Locations, nil
}

func (c *Client) GetFileInfo(ctx context.Context, src string) (*wire.FileStatus, error) {
	resp := &wire.GetFileInfoResponse{}
	err := c.Execute(ctx, "getFileInfo", &wire.GetFileInfoRequest{Src: src}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

func (c *Client) GetListing(ctx context.Context, src string, startAfter []byte) (*wire.DirectoryListing, error) {
	resp := &wire.GetListingResponse{}
	err := c.Execute(ctx, "getListing", &wire.GetListingRequest{Src: src, StartAfter: startAfter}, resp)
	if err != nil {
		return nil, err
	}
	return resp.DirList, nil
}

func (c *Client) Create(ctx context.Context, src string, perm uint32, overwrite bool, replication uint32, blockSize uint64) (*wire.FileStatus, error) {
	flag := uint32(wire.CreateFlagCreate)
	if overwrite {
		flag |= wire.CreateFlagOverwrite
	}
	resp := &wire.CreateResponse{}
	err := c.Execute(ctx, "create", &wire.CreateRequest{
		Src:         src,
		Masked:      &wire.FsPermission{Perm: perm},
		ClientName:  c.clientName,
		CreateFlag:  flag,
		Replication: replication,
		BlockSize:   blockSize,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Status, nil
}

func (c *Client) Append(ctx context.Context, src string) (*wire.AppendResponse, error) {
	resp := &wire.AppendResponse{}
	err := c.Execute(ctx, "append", &wire.AppendRequest{Src: src, ClientName: c.clientName}, resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) AddBlock(ctx context.Context, src string, previous *wire.ExtendedBlock, exclude []*wire.DatanodeInfo, fileID uint64) (*wire.LocatedBlock, error) {
	resp := &wire.AddBlockResponse{}
	err := c.Execute(ctx, "addBlock", &wire.AddBlockRequest{
		Src:          src,
		ClientName:   c.clientName,
		Previous:     previous,
		ExcludeNodes: exclude,
		FileID:       fileID,
	}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Block, nil
}

func (c *Client) Complete(ctx context.Context, src string, last *wire.ExtendedBlock, fileID uint64) (bool, error) {
	resp := &wire.CompleteResponse{}
	err := c.Execute(ctx, "complete", &wire.CompleteRequest{Src: src, ClientName: c.clientName, Last: last, FileID: fileID}, resp)
	if err != nil {
		return false, err
	}
	return resp.Result, nil
}

func (c *Client) RenewLease(ctx context.Context) error {
	return c.Execute(ctx, "renewLease", &wire.RenewLeaseRequest{ClientName: c.clientName}, &wire.RenewLeaseResponse{})
}

func (c *Client) Delete(ctx context.Context, src string, recursive bool) (bool, error) {
	resp := &wire.DeleteResponse{}
	err := c.Execute(ctx, "delete", &wire.DeleteRequest{Src: src, Recursive: recursive}, resp)
	if err != nil {
		return false, err
	}
	return resp.Result, nil
}

func (c *Client) Rename(ctx context.Context, src, dst string) (bool, error) {
	resp := &wire.RenameResponse{}
	err := c.Execute(ctx, "rename", &wire.RenameRequest{Src: src, Dst: dst}, resp)
	if err != nil {
		return false, err
	}
	return resp.Result, nil
}

func (c *Client) Mkdirs(ctx context.Context, src string, perm uint32, createParent bool) (bool, error) {
	resp := &wire.MkdirsResponse{}
	err := c.Execute(ctx, "mkdirs", &wire.MkdirsRequest{Src: src, Masked: &wire.FsPermission{Perm: perm}, CreateParent: createParent}, resp)
	if err != nil {
		return false, err
	}
	return resp.Result, nil
}

func (c *Client) SetPermission(ctx context.Context, src string, perm uint32) error {
	return c.Execute(ctx, "setPermission", &wire.SetPermissionRequest{Src: src, Permission: &wire.FsPermission{Perm: perm}}, &wire.SetPermissionResponse{})
}

func (c *Client) UpdateBlockForPipeline(ctx context.Context, block *wire.ExtendedBlock) (*wire.LocatedBlock, error) {
	resp := &wire.UpdateBlockForPipelineResponse{}
	err := c.Execute(ctx, "updateBlockForPipeline", &wire.UpdateBlockForPipelineRequest{Block: block, ClientName: c.clientName}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Block, nil
}

func (c *Client) UpdatePipeline(ctx context.Context, oldBlock, newBlock *wire.ExtendedBlock, nodes []*wire.DatanodeID, storageIDs []string) error {
	return c.Execute(ctx, "updatePipeline", &wire.UpdatePipelineRequest{
		ClientName: c.clientName,
		OldBlock:   oldBlock,
		NewBlock:   newBlock,
		NewNodes:   nodes,
		StorageIDs: storageIDs,
	}, &wire.UpdatePipelineResponse{})
}

func (c *Client) Fsync(ctx context.Context, src string, lastBlockLength int64) error {
	return c.Execute(ctx, "fsync", &wire.FsyncRequest{Src: src, ClientName: c.clientName, LastBlockLength: lastBlockLength}, &wire.FsyncResponse{})
}

func (c *Client) ServerDefaults(ctx context.Context) (*wire.ServerDefaults, error) {
	resp := &wire.GetServerDefaultsResponse{}
	err := c.Execute(ctx, "getServerDefaults", &wire.GetServerDefaultsRequest{}, resp)
	if err != nil {
		return nil, err
	}
	return resp.Defaults, nil
}
