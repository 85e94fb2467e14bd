// Package swbusconfig holds the process-external configuration consumed by
// the core through Multiplexer.SetMyRoutes, and the typed runtime
// environment a process threads through its EdgeRuntime (spec §3, §9).
//
// Config follows the same JSON-tagged struct shape the teacher uses for
// clusterConfig/clusterNodeConfig (server/cluster.go).
package swbusconfig

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
)

// RouteScope is opaque to the core: it is accepted from configuration and
// propagated verbatim into route exports (spec §6).
type RouteScope string

// Scopes seen in the DPU fleet's configuration; the core does not
// interpret these, it only stores and re-exports them.
const (
	RouteScopeCluster RouteScope = "cluster"
	RouteScopeNode    RouteScope = "node"
	RouteScopeLocal   RouteScope = "local"
)

// RouteConfig is one entry of the routes a process announces as its own
// (spec §6: "Routes announced by the process are taken from an external
// configuration source keyed by a slot id").
type RouteConfig struct {
	Key   servicepath.ServicePath `json:"key"`
	Scope RouteScope              `json:"scope"`
}

// PeerConfig names a remote daemon this process should dial to establish a
// Remote next hop, the Go analogue of the teacher's clusterNodeConfig.
type PeerConfig struct {
	Name     string                  `json:"name"`
	Addr     string                  `json:"addr"`
	HopCount uint32                  `json:"hop_count"`
	Path     servicepath.ServicePath `json:"path"`
}

// Config is the full external configuration for one swbusd process.
type Config struct {
	SlotID     uint32                  `json:"slot_id"`
	DaemonPath servicepath.ServicePath `json:"daemon_path"`
	ListenOn   string                  `json:"listen_on"`
	NPUIPv4    string                  `json:"npu_ipv4,omitempty"`
	NPUIPv6    string                  `json:"npu_ipv6,omitempty"`
	MyRoutes   []RouteConfig           `json:"my_routes"`
	Peers      []PeerConfig            `json:"peers"`

	// SinkPaths names addresses this process should permanently drain with
	// a NewSink client (spec §9 supplemented actor-creator/sink pattern):
	// service types the process hosts but has not yet instantiated an
	// actor for. Never includes DaemonPath itself - the daemon's own bare
	// address is answered by the multiplexer's local next hop, not a sink.
	SinkPaths []servicepath.ServicePath `json:"sink_paths,omitempty"`
}

// ParseConfig parses the JSON rendering of Config.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "swbusconfig: failed to parse config")
	}
	return cfg, nil
}

// RuntimeEnv is the typed, explicit per-process environment handle
// threaded through EdgeRuntime construction (spec §3, §9's redesign of the
// original's type-erased any-container).
type RuntimeEnv struct {
	SlotID  uint32
	NPUIPv4 string
	NPUIPv6 string
}
