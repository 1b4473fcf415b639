// Package transport manages one authenticated RPC connection to a single
// remote endpoint. It frames requests, matches responses to calls by call id
// so multiple outstanding calls can share the connection, and reports every
// transport-level failure upward as common.ErrUnavailable without retrying:
// only the callers know whether an alternate endpoint exists.
package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	krb "github.com/jcmturner/gokrb5/v8/client"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// Frames larger than this are treated as stream corruption.
const maxFrameSize = 64 * 1024 * 1024

// Options configures one connection.
type Options struct {
	Addr             string
	User             string
	ClientID         []byte
	Auth             string
	Kerberos         *krb.Client
	ServicePrincipal string
	ConnectTimeout   time.Duration
	IdleTimeout      time.Duration

	// DialFunc overrides the dialer, for tests.
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
}

type callResult struct {
	header  *wire.RPCResponseHeader
	payload []byte
	err     error
}

// Conn is a single connection with multiplexed outstanding calls.
type Conn struct {
	opts    Options
	netConn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int32]chan callResult
	closed  bool
	idle    *time.Timer
}

// Connect dials the endpoint, performs the protocol handshake and the SASL
// negotiation the configuration asks for, and sends the connection context.
// A failed negotiation is permanent for this connection; there is no
// fallback to unauthenticated.
func Connect(ctx context.Context, opts Options) (*Conn, error) {
	dial := opts.DialFunc
	if dial == nil {
		dial = (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext
	}
	netConn, err := dial(ctx, "tcp", opts.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", common.ErrConnect, opts.Addr, err)
	}

	c := &Conn{
		opts:    opts,
		netConn: netConn,
		pending: make(map[int32]chan callResult),
	}

	authProtocol := byte(wire.AuthProtocolNone)
	if opts.Auth == common.AuthKerberos {
		authProtocol = wire.AuthProtocolSASL
	}
	if err := c.writeHandshake(authProtocol); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: handshake: %v", common.ErrConnect, err)
	}

	if authProtocol == wire.AuthProtocolSASL {
		if err := c.negotiateSASL(); err != nil {
			netConn.Close()
			return nil, fmt.Errorf("%w: sasl: %v", common.ErrConnect, err)
		}
	}

	if err := c.writeContext(); err != nil {
		netConn.Close()
		return nil, fmt.Errorf("%w: connection context: %v", common.ErrConnect, err)
	}

	if opts.IdleTimeout > 0 {
		c.idle = time.AfterFunc(opts.IdleTimeout, c.onIdle)
	}
	go c.readLoop()

	slog.Debug("connected", "endpoint", opts.Addr, "auth", opts.Auth)
	return c, nil
}

// The connection preamble: magic, version, service class, auth protocol.
func (c *Conn) writeHandshake(authProtocol byte) error {
	buf := make([]byte, 0, 7)
	buf = append(buf, wire.HandshakeMagic...)
	buf = append(buf, wire.RPCVersion, wire.ServiceClass, authProtocol)
	_, err := c.netConn.Write(buf)
	return err
}

func (c *Conn) writeContext() error {
	header := &wire.RPCRequestHeader{
		Kind:       wire.RPCKindProtobuf,
		Op:         wire.RPCOpFinalPacket,
		CallID:     wire.CallIDConnectionContext,
		ClientID:   c.opts.ClientID,
		RetryCount: wire.InvalidRetryCount,
	}
	ctxMsg := &wire.ConnectionContext{
		UserInfo: &wire.UserInformation{EffectiveUser: c.contextUser()},
		Protocol: wire.ProtocolClass,
	}
	return c.writeFrame(header, ctxMsg)
}

func (c *Conn) contextUser() string {
	if c.opts.Auth == common.AuthKerberos && c.opts.Kerberos != nil {
		return c.opts.Kerberos.Credentials.UserName()
	}
	return c.opts.User
}

// writeFrame writes one length-prefixed frame of varint-prefixed messages.
func (c *Conn) writeFrame(msgs ...wire.Message) error {
	var body []byte
	for _, m := range msgs {
		body = wire.AppendPrefixed(body, m)
	}
	frame := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	frame = append(frame, body...)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.netConn.Write(frame)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxFrameSize {
		return nil, wire.ErrInvalidFrame
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// Call issues one RPC and blocks until its response arrives, the context
// expires, or the connection dies. The caller supplies the call id so that
// a replayed non-idempotent call keeps its identity across attempts.
func (c *Conn) Call(ctx context.Context, callID, retryCount int32, method string, req, resp wire.Message) error {
	ch := make(chan callResult, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: connection closed", common.ErrUnavailable)
	}
	c.pending[callID] = ch
	c.touchLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, callID)
		c.mu.Unlock()
	}()

	header := &wire.RPCRequestHeader{
		Kind:       wire.RPCKindProtobuf,
		Op:         wire.RPCOpFinalPacket,
		CallID:     callID,
		ClientID:   c.opts.ClientID,
		RetryCount: retryCount,
	}
	reqHeader := &wire.RequestHeader{
		MethodName:      method,
		ProtocolName:    wire.ProtocolClass,
		ProtocolVersion: wire.ProtocolVersion,
	}
	if err := c.writeFrame(header, reqHeader, req); err != nil {
		c.fail(fmt.Errorf("%w: write %s: %v", common.ErrUnavailable, method, err))
		return fmt.Errorf("%w: write %s: %v", common.ErrUnavailable, method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		return c.interpret(res, method, resp)
	case <-ctx.Done():
		// Timeout converts to the same class as a transport error so the
		// caller's failover paths treat both alike.
		return fmt.Errorf("%w: %s on %s: %v", common.ErrUnavailable, method, c.opts.Addr, ctx.Err())
	}
}

func (c *Conn) interpret(res callResult, method string, resp wire.Message) error {
	switch res.header.Status {
	case wire.RPCStatusSuccess:
		if resp == nil {
			return nil
		}
		if _, err := wire.ConsumePrefixed(res.payload, resp); err != nil {
			return fmt.Errorf("%w: decode %s response: %v", common.ErrUnavailable, method, err)
		}
		return nil
	case wire.RPCStatusError:
		// A server-side exception reported by name. The call failed but the
		// connection is fine.
		return &common.RemoteError{Exception: res.header.Exception, Message: res.header.ErrorMessage}
	default:
		err := fmt.Errorf("%w: fatal rpc status from %s: %s", common.ErrUnavailable, c.opts.Addr, res.header.Exception)
		c.fail(err)
		return err
	}
}

func (c *Conn) readLoop() {
	for {
		frame, err := readFrame(c.netConn)
		if err != nil {
			c.fail(fmt.Errorf("%w: read from %s: %v", common.ErrUnavailable, c.opts.Addr, err))
			return
		}

		header := &wire.RPCResponseHeader{}
		payload, err := wire.ConsumePrefixed(frame, header)
		if err != nil {
			c.fail(fmt.Errorf("%w: malformed frame from %s: %v", common.ErrUnavailable, c.opts.Addr, err))
			return
		}

		c.mu.Lock()
		ch, ok := c.pending[int32(header.CallID)]
		c.touchLocked()
		c.mu.Unlock()
		if !ok {
			// Response for a caller that gave up (timeout). Drop it.
			slog.Debug("orphan rpc response", "endpoint", c.opts.Addr, "callID", header.CallID)
			continue
		}
		ch <- callResult{header: header, payload: payload}
	}
}

// fail closes the connection and delivers err to every outstanding call.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.idle != nil {
		c.idle.Stop()
	}
	pending := c.pending
	c.pending = make(map[int32]chan callResult)
	c.mu.Unlock()

	c.netConn.Close()
	for _, ch := range pending {
		// A caller that timed out may have left its delivered response
		// undrained; never block on its channel.
		select {
		case ch <- callResult{err: err}:
		default:
		}
	}
}

// Close shuts the connection down; outstanding calls fail with ErrClosed.
func (c *Conn) Close() error {
	c.fail(fmt.Errorf("%w: %v", common.ErrUnavailable, common.ErrClosed))
	return nil
}

// Alive reports whether the connection can still carry calls.
func (c *Conn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) touchLocked() {
	if c.idle != nil {
		c.idle.Reset(c.opts.IdleTimeout)
	}
}

func (c *Conn) onIdle() {
	c.mu.Lock()
	busy := len(c.pending) > 0
	c.mu.Unlock()
	if busy {
		c.mu.Lock()
		c.touchLocked()
		c.mu.Unlock()
		return
	}
	slog.Debug("closing idle connection", "endpoint", c.opts.Addr)
	c.fail(fmt.Errorf("%w: idle timeout", common.ErrUnavailable))
}
