package swbusd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusconfig"
)

func TestRouteDeterminism(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	mux := NewMultiplexer(daemon)
	mux.SetMyRoutes([]swbusconfig.RouteConfig{{Key: daemon, Scope: swbusconfig.RouteScopeCluster}})

	dst := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/local-mgmt/0")
	nh1, local1 := mux.Route(dst)
	nh2, local2 := mux.Route(dst)

	if local1 != local2 || nh1.Type() != nh2.Type() || nh1.HopCount() != nh2.HopCount() {
		t.Errorf("route resolution not deterministic: (%v,%v) vs (%v,%v)", nh1, local1, nh2, local2)
	}
}

func TestRegisterRouteSmallerHopCountWins(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	mux := NewMultiplexer(daemon)

	target := servicepath.MustParse("region-a.cluster-b.10.0.0.9-dpu0")
	connA := NewConnInfo(ConnTypeCluster, "10.0.0.2:1", target, daemon)
	connB := NewConnInfo(ConnTypeCluster, "10.0.0.3:1", target, daemon)

	mux.RegisterRoute(target, NewRemoteNextHop(connA, &ConnProxy{}, 5), swbusconfig.RouteScopeCluster)
	mux.RegisterRoute(target, NewRemoteNextHop(connB, &ConnProxy{}, 2), swbusconfig.RouteScopeCluster)

	nh, _ := mux.Route(target)
	if nh.HopCount() != 2 {
		t.Errorf("expected smaller hop count (2) to win, got %d", nh.HopCount())
	}

	// Tie: existing (hop count 2, connB) should be kept over a later equal-cost entry.
	connC := NewConnInfo(ConnTypeCluster, "10.0.0.4:1", target, daemon)
	mux.RegisterRoute(target, NewRemoteNextHop(connC, &ConnProxy{}, 2), swbusconfig.RouteScopeCluster)
	nh2, _ := mux.Route(target)
	if !nh2.ConnInfo().Equal(connB) {
		t.Errorf("expected tie to keep the existing route (connB), got %s", nh2.ConnInfo().ID())
	}
}

func TestUnregisterRoutesForConnPurgesOnlyThatConn(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	mux := NewMultiplexer(daemon)

	targetA := servicepath.MustParse("region-a.cluster-b.10.0.0.9-dpu0")
	targetB := servicepath.MustParse("region-a.cluster-c.10.0.0.9-dpu0")
	connGone := NewConnInfo(ConnTypeCluster, "10.0.0.2:1", targetA, daemon)
	connStays := NewConnInfo(ConnTypeCluster, "10.0.0.3:1", targetB, daemon)

	mux.RegisterRoute(targetA, NewRemoteNextHop(connGone, &ConnProxy{}, 1), swbusconfig.RouteScopeCluster)
	mux.RegisterRoute(targetB, NewRemoteNextHop(connStays, &ConnProxy{}, 1), swbusconfig.RouteScopeCluster)

	mux.UnregisterRoutesForConn(connGone)

	if nh, _ := mux.Route(targetA); nh.Type() != NextHopLocal {
		t.Errorf("expected route to torn-down connection to fall back to the synthetic local next hop, got %+v", nh)
	}
	if nh, _ := mux.Route(targetB); nh.Type() != NextHopRemote || !nh.ConnInfo().Equal(connStays) {
		t.Errorf("expected route to unrelated connection to survive, got %+v", nh)
	}
}

// TestExportRoutesSnapshot mirrors spec §8 scenario 6.
func TestExportRoutesSnapshot(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	mux := NewMultiplexer(daemon)

	localA := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/svc-a/0")
	localB := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/svc-b/0")
	mux.SetMyRoutes([]swbusconfig.RouteConfig{
		{Key: localA, Scope: swbusconfig.RouteScopeLocal},
		{Key: localB, Scope: swbusconfig.RouteScopeLocal},
	})

	remoteTarget := servicepath.MustParse("region-a.cluster-b.10.0.0.9-dpu0")
	connInfo := NewConnInfo(ConnTypeCluster, "10.0.0.9:1", remoteTarget, daemon)
	mux.RegisterRoute(remoteTarget, NewRemoteNextHop(connInfo, &ConnProxy{}, 3), swbusconfig.RouteScopeCluster)

	result := mux.ExportRoutes(nil)
	require.Len(t, result.Routes, 3)

	var sawRemote bool
	for _, r := range result.Routes {
		if r.Key == remoteTarget {
			sawRemote = true
			require.False(t, r.NextHopIsLocal)
			require.EqualValues(t, 3, r.HopCount)
			require.Equal(t, connInfo.ID(), r.RemoteEndpoint)
		}
	}
	require.True(t, sawRemote, "expected the remote route to appear in the snapshot")
}

func TestGenerateMessageIDMonotonic(t *testing.T) {
	mux := NewMultiplexer(servicepath.MustParse("a.b.c"))
	prev := mux.GenerateMessageID()
	for i := 0; i < 50; i++ {
		next := mux.GenerateMessageID()
		if next <= prev {
			t.Fatalf("ids not monotonic: %d then %d", prev, next)
		}
		prev = next
	}
}
