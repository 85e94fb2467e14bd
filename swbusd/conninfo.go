package swbusd

import (
	"github.com/google/uuid"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
)

// ConnType names the kind of fabric a connection rides on (spec §3).
type ConnType int

const (
	// ConnTypeCluster is a daemon-to-daemon connection within the same
	// region/cluster, the only scope this module dials itself.
	ConnTypeCluster ConnType = iota
	// ConnTypeRegion is a connection to a daemon in a different region,
	// reserved for a wider fleet topology than this module exercises.
	ConnTypeRegion
)

func (t ConnType) String() string {
	switch t {
	case ConnTypeCluster:
		return "cluster"
	case ConnTypeRegion:
		return "region"
	default:
		return "unknown"
	}
}

// ConnInfo is the immutable descriptor of a connection endpoint (spec §3).
// It is shared by the connection object, every next hop that points at the
// connection, and diagnostic exports - hence it is always handled by
// pointer and never mutated after construction.
type ConnInfo struct {
	id         string
	connType   ConnType
	remoteAddr string
	remoteSP   servicepath.ServicePath
	localSP    servicepath.ServicePath
}

// NewConnInfo builds a connection descriptor with a freshly generated id.
func NewConnInfo(connType ConnType, remoteAddr string, remoteSP, localSP servicepath.ServicePath) *ConnInfo {
	return &ConnInfo{
		id:         uuid.NewString(),
		connType:   connType,
		remoteAddr: remoteAddr,
		remoteSP:   remoteSP,
		localSP:    localSP,
	}
}

// ID is a unique-per-process identifier for diagnostics and route exports
// (spec §4.E export_routes' remote-endpoint-id column).
func (c *ConnInfo) ID() string { return c.id }

// Type returns the connection's scope.
func (c *ConnInfo) Type() ConnType { return c.connType }

// RemoteAddr returns the remote socket address, e.g. "10.0.0.3:23606".
func (c *ConnInfo) RemoteAddr() string { return c.remoteAddr }

// RemoteServicePath returns the service path of the peer daemon.
func (c *ConnInfo) RemoteServicePath() servicepath.ServicePath { return c.remoteSP }

// LocalServicePath returns the service path this end of the connection
// presents as.
func (c *ConnInfo) LocalServicePath() servicepath.ServicePath { return c.localSP }

// Equal compares connection descriptors by identity (id), matching the
// "routes whose next hop's conn_info equals the given descriptor" language
// of spec §4.E unregister_routes_for_conn.
func (c *ConnInfo) Equal(other *ConnInfo) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.id == other.id
}
