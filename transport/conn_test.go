package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakfs/hdfsclient/common"
	"github.com/peakfs/hdfsclient/wire"
)

// parsedCall is one application call read off a test server connection.
type parsedCall struct {
	header  *wire.RPCRequestHeader
	method  string
	payload []byte
}

// readCall consumes frames until it sees an application call, skipping the
// connection context.
func readCall(t *testing.T, conn net.Conn) parsedCall {
	t.Helper()
	for {
		frame, err := readFrame(conn)
		require.NoError(t, err)

		header := &wire.RPCRequestHeader{}
		rest, err := wire.ConsumePrefixed(frame, header)
		require.NoError(t, err)
		if header.CallID == wire.CallIDConnectionContext {
			continue
		}

		reqHeader := &wire.RequestHeader{}
		rest, err = wire.ConsumePrefixed(rest, reqHeader)
		require.NoError(t, err)
		return parsedCall{header: header, method: reqHeader.MethodName, payload: rest}
	}
}

func writeResponse(t *testing.T, conn net.Conn, callID int32, exception, errMsg string, msg wire.Message) {
	t.Helper()
	status := int32(wire.RPCStatusSuccess)
	if exception != "" {
		status = wire.RPCStatusError
	}
	header := &wire.RPCResponseHeader{
		CallID:       uint32(callID),
		Status:       status,
		Exception:    exception,
		ErrorMessage: errMsg,
	}
	body := wire.AppendPrefixed(nil, header)
	if msg != nil && status == wire.RPCStatusSuccess {
		body = wire.AppendPrefixed(body, msg)
	}
	frame := make([]byte, 4, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	_, err := conn.Write(append(frame, body...))
	require.NoError(t, err)
}

// acceptOne accepts a single connection and validates the handshake preamble.
func acceptOne(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	preamble := make([]byte, 7)
	_, err = io.ReadFull(conn, preamble)
	require.NoError(t, err)
	assert.Equal(t, wire.HandshakeMagic, string(preamble[:4]))
	assert.Equal(t, byte(wire.RPCVersion), preamble[4])
	return conn
}

func dialTest(t *testing.T, addr string) *Conn {
	t.Helper()
	c, err := Connect(context.Background(), Options{
		Addr:     addr,
		User:     "tester",
		ClientID: []byte("0123456789abcdef"),
		Auth:     common.AuthSimple,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCallMatchesResponsesOutOfOrder(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn := acceptOne(t, ln)
		defer conn.Close()
		first := readCall(t, conn)
		second := readCall(t, conn)
		// Answer the later call first; the transport must route each
		// response to its own caller by call id.
		writeResponse(t, conn, second.header.CallID, "", "", &wire.RenewLeaseResponse{})
		writeResponse(t, conn, first.header.CallID, "", "", &wire.DeleteResponse{Result: true})
	}()

	c := dialTest(t, ln.Addr().String())

	type outcome struct {
		id  int
		err error
		ok  bool
	}
	results := make(chan outcome, 2)
	go func() {
		resp := &wire.DeleteResponse{}
		err := c.Call(context.Background(), 1, wire.InvalidRetryCount, "delete", &wire.DeleteRequest{Src: "/a"}, resp)
		results <- outcome{1, err, resp.Result}
	}()
	// Give call 1 a moment to hit the wire first.
	time.Sleep(20 * time.Millisecond)
	go func() {
		err := c.Call(context.Background(), 2, wire.InvalidRetryCount, "renewLease", &wire.RenewLeaseRequest{ClientName: "x"}, &wire.RenewLeaseResponse{})
		results <- outcome{2, err, false}
	}()

	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.err)
		if res.id == 1 {
			assert.True(t, res.ok)
		}
	}
}

func TestCallSurfacesRemoteException(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn := acceptOne(t, ln)
		t.Cleanup(func() { conn.Close() })
		call := readCall(t, conn)
		writeResponse(t, conn, call.header.CallID, common.ExceptionFileNotFound, "/missing", nil)
	}()

	c := dialTest(t, ln.Addr().String())
	err = c.Call(context.Background(), 1, wire.InvalidRetryCount, "getFileInfo", &wire.GetFileInfoRequest{Src: "/missing"}, &wire.GetFileInfoResponse{})

	var remote *common.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, common.ExceptionFileNotFound, remote.Exception)
	// A remote exception is a healthy connection; it must stay usable.
	assert.True(t, c.Alive())
}

func TestCallTimeoutConvertsToUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn := acceptOne(t, ln)
		// Swallow the call, never answer.
		readCall(t, conn)
		time.Sleep(time.Second)
		conn.Close()
	}()

	c := dialTest(t, ln.Addr().String())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = c.Call(ctx, 1, wire.InvalidRetryCount, "getFileInfo", &wire.GetFileInfoRequest{Src: "/x"}, &wire.GetFileInfoResponse{})
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestBrokenConnectionFailsPendingCalls(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn := acceptOne(t, ln)
		readCall(t, conn)
		conn.Close() // die mid-call
	}()

	c := dialTest(t, ln.Addr().String())
	err = c.Call(context.Background(), 1, wire.InvalidRetryCount, "getFileInfo", &wire.GetFileInfoRequest{Src: "/x"}, &wire.GetFileInfoResponse{})
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.False(t, c.Alive())

	// Calls after death fail immediately, not by hanging.
	err = c.Call(context.Background(), 2, wire.InvalidRetryCount, "getFileInfo", &wire.GetFileInfoRequest{Src: "/y"}, &wire.GetFileInfoResponse{})
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestConnectRefusedIsConnectError(t *testing.T) {
	// Grab a free port, then close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = Connect(context.Background(), Options{
		Addr:           addr,
		User:           "tester",
		ClientID:       []byte("0123456789abcdef"),
		Auth:           common.AuthSimple,
		ConnectTimeout: 500 * time.Millisecond,
	})
	assert.ErrorIs(t, err, common.ErrConnect)
}

func TestIdleConnectionCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn := acceptOne(t, ln)
		io.Copy(io.Discard, conn)
	}()

	c, err := Connect(context.Background(), Options{
		Addr:        ln.Addr().String(),
		User:        "tester",
		ClientID:    []byte("0123456789abcdef"),
		Auth:        common.AuthSimple,
		IdleTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return !c.Alive() }, time.Second, 10*time.Millisecond)
}

func TestFailSkipsAbandonedCall(t *testing.T) {
	clientEnd, serverEnd := net.Pipe()
	defer serverEnd.Close()

	// A caller that timed out after its response was delivered leaves a
	// full buffered channel behind in pending; fail must not block on it.
	ch := make(chan callResult, 1)
	ch <- callResult{payload: []byte{0x00}}
	c := &Conn{
		netConn: clientEnd,
		pending: map[int32]chan callResult{7: ch},
	}

	done := make(chan struct{})
	go func() {
		c.fail(common.ErrUnavailable)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("fail blocked delivering to an abandoned call")
	}
	assert.True(t, c.closed)
}
