package common

import (
	"errors"
	"time"

	krb "github.com/jcmturner/gokrb5/v8/client"
)

// Authentication modes for namenode connections.
const (
	AuthSimple   = "simple"
	AuthKerberos = "kerberos"
)

// Defaults applied by WithDefaults. Block and packet geometry follows the
// values the deployed servers ship with; retry and lease tunables are
// deployment-specific and only defaulted, never hardcoded elsewhere.
const (
	DefaultBlockSize          = 128 * 1024 * 1024
	DefaultReplication        = 3
	DefaultPacketSize         = 64 * 1024
	DefaultBytesPerChecksum   = 512
	DefaultMaxPacketsInFlight = 80
	DefaultMaxRetries         = 5
	DefaultBaseBackoff        = 200 * time.Millisecond
	DefaultMaxBackoff         = 10 * time.Second
	DefaultMinReplication     = 1
	DefaultConnectTimeout     = 5 * time.Second
	DefaultRPCTimeout         = 30 * time.Second
	DefaultDataTimeout        = 60 * time.Second
	DefaultIdleTimeout        = 60 * time.Second
	DefaultLeaseInterval      = 3 * time.Second
	DefaultLeaseThreshold     = 5
)

// Config carries everything the client core needs at construction time. It is
// treated as immutable once passed in; site-configuration parsing happens
// outside this module.
type Config struct {
	// Addresses lists the namenode endpoints (host:port). With more than one
	// entry the client fails over across them in a fixed rotation.
	Addresses []string

	// User is the effective user reported in the connection context when no
	// Kerberos identity is in play.
	User string

	// Auth selects AuthSimple or AuthKerberos.
	Auth string

	// Kerberos holds a logged-in Kerberos client when Auth is AuthKerberos.
	// Credential acquisition (keytab, ccache) is the caller's business.
	Kerberos *krb.Client

	// ServicePrincipal is the namenode SPN, e.g. "nn/host.example.com".
	// Ignored under AuthSimple.
	ServicePrincipal string

	BlockSize   int64
	Replication int

	PacketSize         int
	BytesPerChecksum   int
	MaxPacketsInFlight int

	// MaxRetries bounds attempts per metadata operation across the namenode
	// rotation. BaseBackoff doubles per attempt up to MaxBackoff.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// MinReplication is the smallest pipeline the writer will keep running
	// after recovery before giving up on the block.
	MinReplication int

	ConnectTimeout time.Duration
	RPCTimeout     time.Duration

	// DataTimeout bounds individual socket operations on datanode streams
	// so a stalled replica or pipeline member is failed over rather than
	// hanging the session.
	DataTimeout time.Duration

	IdleTimeout time.Duration

	LeaseInterval  time.Duration
	LeaseThreshold int
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.Auth == "" {
		c.Auth = AuthSimple
	}
	if c.User == "" {
		c.User = "hdfs"
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.Replication == 0 {
		c.Replication = DefaultReplication
	}
	if c.PacketSize == 0 {
		c.PacketSize = DefaultPacketSize
	}
	if c.BytesPerChecksum == 0 {
		c.BytesPerChecksum = DefaultBytesPerChecksum
	}
	if c.MaxPacketsInFlight == 0 {
		c.MaxPacketsInFlight = DefaultMaxPacketsInFlight
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseBackoff == 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.MinReplication == 0 {
		c.MinReplication = DefaultMinReplication
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.RPCTimeout == 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	if c.DataTimeout == 0 {
		c.DataTimeout = DefaultDataTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.LeaseInterval == 0 {
		c.LeaseInterval = DefaultLeaseInterval
	}
	if c.LeaseThreshold == 0 {
		c.LeaseThreshold = DefaultLeaseThreshold
	}
	return c
}

// Validate rejects configurations the client cannot start with.
func (c Config) Validate() error {
	if len(c.Addresses) == 0 {
		return errors.New("no namenode address configured")
	}
	for _, addr := range c.Addresses {
		if !IsValidEndpoint(addr) {
			return errors.New("invalid namenode endpoint: " + addr)
		}
	}
	if c.Auth == AuthKerberos && c.Kerberos == nil {
		return errors.New("kerberos auth selected but no kerberos client supplied")
	}
	if c.Auth != "" && c.Auth != AuthSimple && c.Auth != AuthKerberos {
		return errors.New("unknown auth mode: " + c.Auth)
	}
	if c.PacketSize < 0 || c.BytesPerChecksum < 0 {
		return errors.New("negative packet geometry")
	}
	return nil
}
