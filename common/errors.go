package common

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all layers. Transient conditions are represented by
// ErrUnavailable so that every retry path keys off one sentinel; everything
// else is terminal for the operation that hit it.
var (
	// ErrConnect covers an unreachable endpoint or a failed authentication
	// handshake. Fatal for that connection attempt.
	ErrConnect = errors.New("connection failed")

	// ErrUnavailable is any transient transport-level failure: socket error,
	// malformed frame, expired authentication, caller timeout. The transport
	// never retries it; the callers that know about alternates do.
	ErrUnavailable = errors.New("endpoint unavailable")

	// ErrChecksum reports chunk data that failed CRC verification.
	ErrChecksum = errors.New("checksum mismatch")

	// ErrBlockUnavailable means every known replica of a block was tried and
	// failed.
	ErrBlockUnavailable = errors.New("no available replica for block")

	// ErrPipelineBroken means fewer healthy pipeline members remain than the
	// configured minimum replication.
	ErrPipelineBroken = errors.New("write pipeline broken")

	// ErrNameNodeUnreachable means every configured namenode address was
	// exhausted, retries included.
	ErrNameNodeUnreachable = errors.New("all namenodes unreachable")

	// ErrLeaseExpired marks a write session whose lease could not be renewed
	// past the failure threshold.
	ErrLeaseExpired = errors.New("lease expired")

	// ErrClosed is returned for operations on a closed session or client.
	ErrClosed = errors.New("already closed")
)

// RemoteError is a server-side exception reported by name over the RPC
// channel. It is surfaced to the caller as-is, never retried by the transport.
type RemoteError struct {
	Exception string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Exception
	}
	return fmt.Sprintf("%s: %s", e.Exception, e.Message)
}

// Exception class names the client gives special treatment.
const (
	ExceptionStandby           = "org.apache.hadoop.ipc.StandbyException"
	ExceptionFileNotFound      = "java.io.FileNotFoundException"
	ExceptionFileAlreadyExists = "org.apache.hadoop.fs.FileAlreadyExistsException"
	ExceptionAccessControl     = "org.apache.hadoop.security.AccessControlException"
	ExceptionLeaseExpired      = "org.apache.hadoop.hdfs.server.namenode.LeaseExpiredException"
)

// IsStandby reports whether err is the namenode telling us it is not the
// active member of the HA pair. Callers treat it exactly like ErrUnavailable.
func IsStandby(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Exception == ExceptionStandby
}

// Retriable reports whether err warrants trying an alternate endpoint. A
// failed connection attempt is fatal for that attempt but not for the
// operation, so it is retriable too.
func Retriable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrConnect) || IsStandby(err)
}
