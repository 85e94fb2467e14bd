package swbusd

import (
	"sync"

	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusconfig"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
)

// routeEntry is one row of the route table: a next hop plus the bookkeeping
// the selection invariant (spec §3 Route Table) needs for tie-breaking.
type routeEntry struct {
	key      servicepath.ServicePath
	nextHop  NextHop
	scope    swbusconfig.RouteScope
	installN uint64
}

// Multiplexer is the routing fabric: the route table, the message-id
// generator, the daemon's own service path, and the set of routes this
// process announces as its own (spec §4.E).
type Multiplexer struct {
	mu       sync.RWMutex
	routes   []routeEntry
	installN uint64

	myServicePath servicepath.ServicePath
	myRoutes      []swbusconfig.RouteConfig

	idGen *swbusmsg.IDGenerator
}

// NewMultiplexer constructs an empty multiplexer for a daemon at
// myServicePath.
func NewMultiplexer(myServicePath servicepath.ServicePath) *Multiplexer {
	return &Multiplexer{
		idGen: swbusmsg.NewIDGenerator(),
		myServicePath: myServicePath,
	}
}

// MyServicePath returns the daemon's own service path.
func (m *Multiplexer) MyServicePath() servicepath.ServicePath {
	return m.myServicePath
}

// GenerateMessageID returns a strictly increasing per-process id
// (spec §4.E generate_message_id, §8 id monotonicity).
func (m *Multiplexer) GenerateMessageID() uint64 {
	return m.idGen.Generate()
}

// RegisterRoute installs a route. If a route for the identical key already
// exists, the entry with the smaller hop count wins; on a tie the existing
// route is kept (spec §4.E register_route).
func (m *Multiplexer) RegisterRoute(key servicepath.ServicePath, nextHop NextHop, scope swbusconfig.RouteScope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.routes {
		if e.key == key {
			if nextHop.HopCount() < e.nextHop.HopCount() {
				m.routes[i].nextHop = nextHop
				m.routes[i].scope = scope
			}
			return
		}
	}

	m.installN++
	m.routes = append(m.routes, routeEntry{key: key, nextHop: nextHop, scope: scope, installN: m.installN})
}

// UnregisterRoutesForConn atomically removes all routes whose next hop's
// connection descriptor equals connInfo (spec §4.E
// unregister_routes_for_conn, §8 "connection teardown purges routes").
func (m *Multiplexer) UnregisterRoutesForConn(connInfo *ConnInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.routes[:0]
	for _, e := range m.routes {
		if e.nextHop.Type() == NextHopRemote && e.nextHop.ConnInfo().Equal(connInfo) {
			continue
		}
		kept = append(kept, e)
	}
	m.routes = kept
}

// SetMyRoutes sets the set of service paths announced as local: each
// announced route installs a local next hop for its key (spec §4.E
// set_my_routes).
func (m *Multiplexer) SetMyRoutes(routes []swbusconfig.RouteConfig) {
	m.mu.Lock()
	m.myRoutes = routes
	m.mu.Unlock()

	for _, rc := range routes {
		m.RegisterRoute(rc.Key, NewLocalNextHop(), rc.Scope)
	}
}

// RouteCount returns the current number of installed routes, used by the
// runtime to keep the routes-installed gauge in sync with mutations it
// triggers (Connect, Shutdown).
func (m *Multiplexer) RouteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

// Route resolves msg's destination to a next hop by longest-prefix match,
// tie-broken by smallest hop count then earliest installation order
// (spec §4.E route, §8 route determinism). The second return value
// reports whether the selected route is this daemon's own local route.
//
// If no route matches, returns a synthetic local next hop whose only
// effect is to produce a NoRoute response (spec §4.E).
func (m *Multiplexer) Route(dest servicepath.ServicePath) (NextHop, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *routeEntry
	for i := range m.routes {
		e := &m.routes[i]
		if !dest.PrefixMatch(e.key) {
			continue
		}
		if best == nil || better(e, best) {
			best = e
		}
	}

	if best == nil {
		return NewLocalNextHop(), true
	}
	return best.nextHop, best.nextHop.Type() == NextHopLocal
}

// better reports whether candidate should replace current as the best
// match: longer prefix wins, then smaller hop count, then earlier
// installation.
func better(candidate, current *routeEntry) bool {
	cs, us := candidate.key.SpecificityLen(), current.key.SpecificityLen()
	if cs != us {
		return cs > us
	}
	if candidate.nextHop.HopCount() != current.nextHop.HopCount() {
		return candidate.nextHop.HopCount() < current.nextHop.HopCount()
	}
	return candidate.installN < current.installN
}

// ExportRoutes snapshots the route table as spec §4.E export_routes
// describes, optionally filtered to entries whose key is matched by
// filter's prefix.
func (m *Multiplexer) ExportRoutes(filter *servicepath.ServicePath) swbusmsg.RouteQueryResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out swbusmsg.RouteQueryResult
	for _, e := range m.routes {
		if filter != nil && !e.key.PrefixMatch(*filter) {
			continue
		}
		entry := swbusmsg.RouteEntry{
			Key:            e.key,
			NextHopIsLocal: e.nextHop.Type() == NextHopLocal,
			HopCount:       e.nextHop.HopCount(),
		}
		if e.nextHop.Type() == NextHopRemote {
			entry.RemoteEndpoint = e.nextHop.ConnInfo().ID()
		}
		out.Routes = append(out.Routes, entry)
	}
	return out
}
