package swbusd

import (
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
)

// NextHopType distinguishes a local terminus from a remote forwarder
// (spec §3, §4.D).
type NextHopType int

const (
	NextHopLocal NextHopType = iota
	NextHopRemote
)

// NextHop is the resolved forwarding decision for a destination: either
// local termination or a specific remote connection (spec §3).
//
// A NextHop only ever strong-references a ConnProxy, never the owning
// Conn, which is how ownership cycles between Conn, Multiplexer and
// NextHop are avoided (spec §9).
type NextHop struct {
	nhType    NextHopType
	connInfo  *ConnInfo
	connProxy *ConnProxy
	hopCount  uint32
}

// NewLocalNextHop returns the local-terminus variant.
func NewLocalNextHop() NextHop {
	return NextHop{nhType: NextHopLocal}
}

// NewRemoteNextHop returns a remote-forwarder variant bound to a
// connection's proxy, with hopCount as its advertised distance.
func NewRemoteNextHop(connInfo *ConnInfo, connProxy *ConnProxy, hopCount uint32) NextHop {
	return NextHop{
		nhType:    NextHopRemote,
		connInfo:  connInfo,
		connProxy: connProxy,
		hopCount:  hopCount,
	}
}

// Type reports whether this next hop is local or remote.
func (nh NextHop) Type() NextHopType { return nh.nhType }

// ConnInfo returns the descriptor of the connection this next hop forwards
// over, or nil for a local next hop.
func (nh NextHop) ConnInfo() *ConnInfo { return nh.connInfo }

// HopCount is the advertised distance, used by the multiplexer to
// tie-break equal-prefix-length routes.
func (nh NextHop) HopCount() uint32 { return nh.hopCount }

// QueueMessage resolves msg according to this next hop's semantics
// (spec §4.D):
//
//   - Local, addressed to a specific local service (non-empty service
//     type): synthesize and return a NoRoute response.
//   - Local, addressed to the daemon itself: handle PingRequest and the
//     SwbusdGetRoutes management request inline; reject other management
//     requests with InvalidArgs; silently drop anything else.
//   - Remote: decrement TTL, returning an Unreachable response on
//     expiry, otherwise enqueue onto the connection proxy.
//
// Return contract: a non-nil *swbusmsg.Message means the caller must route
// it; a nil message with nil error means the message was already handled
// or intentionally dropped; a non-nil error means the next hop itself
// failed (closed queue, full queue under a fail policy).
func (nh NextHop) QueueMessage(mux *Multiplexer, msg swbusmsg.Message) (*swbusmsg.Message, error) {
	switch nh.nhType {
	case NextHopLocal:
		return nh.processLocal(mux, msg)
	case NextHopRemote:
		return nh.processRemote(mux, msg)
	default:
		panic("swbusd: next hop has no type")
	}
}

func (nh NextHop) processLocal(mux *Multiplexer, msg swbusmsg.Message) (*swbusmsg.Message, error) {
	dest := msg.Header.Destination
	if !dest.IsDaemon() {
		// The route resolved to this daemon's generic local terminus, but
		// the destination names a specific service - meaning no handler
		// exists for it (see EdgeRuntime.dispatch, which intercepts
		// handler-registered destinations before Multiplexer.Route and
		// the next hop are ever consulted).
		resp := swbusmsg.NewResponse(msg, nil, swbuserr.NoRoute, "Route not found", mux.GenerateMessageID(), nil)
		return &resp, nil
	}

	switch {
	case msg.Body.PingRequest != nil:
		resp := swbusmsg.NewResponse(msg, nil, swbuserr.Ok, "", mux.GenerateMessageID(), nil)
		return &resp, nil

	case msg.Body.ManagementRequest != nil:
		return nh.processManagementRequest(mux, msg, msg.Body.ManagementRequest)

	default:
		// Drop all other messages. This guards against message loops
		// re-entering the daemon (spec §4.D).
		return nil, nil
	}
}

func (nh NextHop) processManagementRequest(mux *Multiplexer, msg swbusmsg.Message, req *swbusmsg.ManagementRequest) (*swbusmsg.Message, error) {
	switch req.RequestType {
	case swbusmsg.SwbusdGetRoutes:
		routes := mux.ExportRoutes(nil)
		resp := swbusmsg.NewResponse(msg, nil, swbuserr.Ok, "", mux.GenerateMessageID(), &swbusmsg.ResponseBody{
			RouteQueryResult: &routes,
		})
		return &resp, nil
	default:
		resp := swbusmsg.NewResponse(msg, nil, swbuserr.InvalidArgs, "invalid management request type", mux.GenerateMessageID(), nil)
		return &resp, nil
	}
}

func (nh NextHop) processRemote(mux *Multiplexer, msg swbusmsg.Message) (*swbusmsg.Message, error) {
	msg.Header.TTL--
	if msg.Header.TTL == 0 {
		mySP := mux.MyServicePath()
		resp := swbusmsg.NewResponse(msg, &mySP, swbuserr.Unreachable, "TTL expired", mux.GenerateMessageID(), nil)
		return &resp, nil
	}

	if err := nh.connProxy.TryQueue(msg); err != nil {
		return nil, swbuserr.NewInfraError(err)
	}
	return nil, nil
}
