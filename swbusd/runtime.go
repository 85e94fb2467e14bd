// Package swbusd implements the message multiplexer and edge runtime: the
// routing table, the per-connection next-hop abstraction, and the
// local/remote forwarding state machine (spec §4.C-F). This is the core
// the rest of a swbus deployment - actors, the simple client façade, and
// process bootstrap - consumes through a narrow interface.
package swbusd

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusconfig"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
)

// DefaultMailboxSize is SWBUS_RECV_QUEUE_SIZE (spec §5).
const DefaultMailboxSize = 4096

type handlerEntry struct {
	mailbox chan swbusmsg.Message
	public  bool
	sp      servicepath.ServicePath
}

// EdgeRuntime owns the multiplexer, the connections, and the handler
// registry; it dispatches inbound messages to per-address handler
// mailboxes and exposes Send for outbound traffic (spec §4.F).
type EdgeRuntime struct {
	mux *Multiplexer
	env *swbusconfig.RuntimeEnv
	log *logrus.Entry
	met *Metrics

	mailboxSize int

	handlersMu sync.RWMutex
	handlers   map[string]*handlerEntry

	connsMu   sync.Mutex
	conns     map[string]*Conn
	connOrder []string
}

// NewEdgeRuntime constructs a runtime around mux. env is written once here
// and read lock-free thereafter by every component holding a reference to
// the runtime (spec §5 shared-resource discipline; spec §9's redesign of
// the original's type-erased any-container into a typed, explicit handle).
func NewEdgeRuntime(mux *Multiplexer, env *swbusconfig.RuntimeEnv, log *logrus.Entry, reg prometheus.Registerer) *EdgeRuntime {
	rt := &EdgeRuntime{
		mux:         mux,
		env:         env,
		log:         log,
		met:         NewMetrics(reg),
		mailboxSize: DefaultMailboxSize,
		handlers:    make(map[string]*handlerEntry),
		conns:       make(map[string]*Conn),
	}
	rt.met.setRoutesInstalled(mux.RouteCount())
	return rt
}

// Mux returns the runtime's multiplexer.
func (rt *EdgeRuntime) Mux() *Multiplexer { return rt.mux }

// RuntimeEnv returns the per-process environment set at construction.
func (rt *EdgeRuntime) RuntimeEnv() *swbusconfig.RuntimeEnv { return rt.env }

// AddHandler registers a public handler mailbox for sp, visible in
// ExportHandlers (spec §4.F add_handler).
func (rt *EdgeRuntime) AddHandler(sp servicepath.ServicePath) (<-chan swbusmsg.Message, error) {
	return rt.addHandler(sp, true)
}

// AddPrivateHandler registers a handler mailbox invisible to
// ExportHandlers - used for sinks and actor-creators (spec §4.F
// add_private_handler).
func (rt *EdgeRuntime) AddPrivateHandler(sp servicepath.ServicePath) (<-chan swbusmsg.Message, error) {
	return rt.addHandler(sp, false)
}

func (rt *EdgeRuntime) addHandler(sp servicepath.ServicePath, public bool) (<-chan swbusmsg.Message, error) {
	key := sp.String()

	rt.handlersMu.Lock()
	defer rt.handlersMu.Unlock()

	if _, exists := rt.handlers[key]; exists {
		return nil, errors.Errorf("swbusd: handler already registered for %s", key)
	}
	mailbox := make(chan swbusmsg.Message, rt.mailboxSize)
	rt.handlers[key] = &handlerEntry{mailbox: mailbox, public: public, sp: sp}
	rt.met.incHandlersLive()
	return mailbox, nil
}

// RemoveHandler unregisters sp's handler, if any. Pending mailbox contents
// are simply abandoned to the garbage collector, mirroring the teacher's
// hub.go, which drops a topic's queued messages on unreg without flushing.
func (rt *EdgeRuntime) RemoveHandler(sp servicepath.ServicePath) {
	rt.handlersMu.Lock()
	_, existed := rt.handlers[sp.String()]
	delete(rt.handlers, sp.String())
	rt.handlersMu.Unlock()

	if existed {
		rt.met.decHandlersLive()
		rt.met.deleteMailboxDepth(sp)
	}
}

// ExportHandlers lists the service paths of public handlers only.
func (rt *EdgeRuntime) ExportHandlers() []servicepath.ServicePath {
	rt.handlersMu.RLock()
	defer rt.handlersMu.RUnlock()

	out := make([]servicepath.ServicePath, 0, len(rt.handlers))
	for _, e := range rt.handlers {
		if e.public {
			out = append(out, e.sp)
		}
	}
	return out
}

// Connect dials a peer daemon, installs a Remote next hop for it, and
// starts its reader/writer tasks.
func (rt *EdgeRuntime) Connect(peer swbusconfig.PeerConfig, mySP servicepath.ServicePath) error {
	transport, err := DialTCP(peer.Addr)
	if err != nil {
		return swbuserr.NewInfraError(err)
	}
	connInfo := NewConnInfo(ConnTypeCluster, peer.Addr, peer.Path, mySP)
	conn := NewConn(connInfo, transport, rt.log)

	rt.connsMu.Lock()
	rt.conns[connInfo.ID()] = conn
	rt.connOrder = append(rt.connOrder, connInfo.ID())
	rt.connsMu.Unlock()

	conn.Start(rt.dispatchInbound)
	rt.mux.RegisterRoute(peer.Path, NewRemoteNextHop(connInfo, conn.NewProxy(), peer.HopCount), swbusconfig.RouteScopeCluster)
	rt.met.setRoutesInstalled(rt.mux.RouteCount())
	return nil
}

// RegisterInboundConn tracks and starts a connection accepted by a
// listener, without installing any route for it. Nothing in this module
// installs a route for an accepted connection later either: messages it
// delivers are dispatched normally, but traffic reaches a peer only over
// routes installed by Connect.
func (rt *EdgeRuntime) RegisterInboundConn(connInfo *ConnInfo, transport Transport) *Conn {
	conn := NewConn(connInfo, transport, rt.log)

	rt.connsMu.Lock()
	rt.conns[connInfo.ID()] = conn
	rt.connOrder = append(rt.connOrder, connInfo.ID())
	rt.connsMu.Unlock()

	conn.Start(rt.dispatchInbound)
	return conn
}

// Send resolves msg's destination and routes it (spec §4.F send). It
// returns an error only for an unrecoverable infrastructure failure; input
// and routing errors are always resolved into a Response instead (spec §7).
func (rt *EdgeRuntime) Send(msg swbusmsg.Message) error {
	return rt.dispatch(msg, false)
}

// dispatchInbound is the callback a Conn's reader task invokes for every
// frame it decodes (spec §4.F "Inbound dispatch").
func (rt *EdgeRuntime) dispatchInbound(fromConn *ConnInfo, msg swbusmsg.Message) {
	if err := rt.dispatch(msg, true); err != nil {
		rt.log.WithError(err).WithField("from_conn", fromConn.ID()).Warn("swbusd: failed to process inbound message")
	}
}

// dispatch implements the shared routing core for both Send (locally
// originated) and inbound wire delivery. When fromWire is true,
// infrastructure errors are absorbed into a synthesized ResourceExhausted
// response instead of being returned, per spec §7: "When an infrastructure
// error occurs while handling an inbound message, the daemon attempts to
// synthesize a ResourceExhausted response; if that itself fails, the
// message is dropped and logged."
func (rt *EdgeRuntime) dispatch(msg swbusmsg.Message, fromWire bool) error {
	if handled, err := rt.deliverToHandler(msg); handled {
		return err
	}

	nh, _ := rt.mux.Route(msg.Header.Destination)
	resp, err := nh.QueueMessage(rt.mux, msg)
	if err != nil {
		rt.met.observeRouted(nh.Type(), "error")
		if errors.Is(err, swbuserr.QueueFull) {
			rt.met.observeQueueFullDrop()
		}
		if fromWire {
			return rt.synthesizeResourceExhausted(msg, err)
		}
		return err
	}

	rt.met.observeRouted(nh.Type(), "ok")
	if resp == nil {
		return nil
	}
	if msg.Body.Response != nil {
		// Responses never beget responses (spec §7): drop.
		return nil
	}
	return rt.dispatch(*resp, false)
}

// deliverToHandler places msg on the exactly-matching local handler's
// mailbox, if one is registered, handling mailbox overflow per spec §4.F:
// synthesize ResourceExhausted back to the sender and drop the inbound
// copy.
func (rt *EdgeRuntime) deliverToHandler(msg swbusmsg.Message) (handled bool, err error) {
	rt.handlersMu.RLock()
	entry, ok := rt.handlers[msg.Header.Destination.String()]
	rt.handlersMu.RUnlock()
	if !ok {
		return false, nil
	}

	select {
	case entry.mailbox <- msg:
		rt.met.observeMailboxDepth(entry.sp, len(entry.mailbox))
		return true, nil
	default:
		rt.met.observeQueueFullDrop()
		if msg.Body.Response != nil {
			// Responses never beget responses: drop silently.
			return true, nil
		}
		return true, rt.synthesizeResourceExhausted(msg, swbuserr.QueueFull)
	}
}

func (rt *EdgeRuntime) synthesizeResourceExhausted(msg swbusmsg.Message, cause error) error {
	resp := swbusmsg.NewResponse(msg, nil, swbuserr.ResourceExhausted, cause.Error(), rt.mux.GenerateMessageID(), nil)
	if err := rt.dispatch(resp, false); err != nil {
		rt.log.WithError(err).Error("swbusd: failed to synthesize ResourceExhausted response, dropping message")
	}
	return nil
}

// Shutdown closes connections in reverse registration order, aggregating
// per-connection close failures (spec §5 cancellation: "connections are
// closed in reverse registration order; in-flight messages on send queues
// are dropped with no response synthesized").
func (rt *EdgeRuntime) Shutdown() error {
	rt.connsMu.Lock()
	order := append([]string(nil), rt.connOrder...)
	rt.connOrder = nil
	rt.connsMu.Unlock()

	var result *multierror.Error
	for i := len(order) - 1; i >= 0; i-- {
		rt.connsMu.Lock()
		conn, ok := rt.conns[order[i]]
		delete(rt.conns, order[i])
		rt.connsMu.Unlock()
		if !ok {
			continue
		}
		rt.mux.UnregisterRoutesForConn(conn.Info())
		rt.met.setRoutesInstalled(rt.mux.RouteCount())
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "swbusd: closing connection %s", conn.Info().ID()))
		}
	}
	return result.ErrorOrNil()
}
