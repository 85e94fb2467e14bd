package swbusedge

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusconfig"
	"github.com/sonic-net/sonic-swbus-go/swbusd"
	"github.com/sonic-net/sonic-swbus-go/swbusmsg"
	"github.com/sonic-net/sonic-swbus-go/swbuserr"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func testRuntime(t *testing.T, daemon servicepath.ServicePath) *swbusd.EdgeRuntime {
	t.Helper()
	mux := swbusd.NewMultiplexer(daemon)
	mux.SetMyRoutes([]swbusconfig.RouteConfig{{Key: daemon, Scope: swbusconfig.RouteScopeCluster}})
	return swbusd.NewEdgeRuntime(mux, &swbusconfig.RuntimeEnv{}, testLogger(), prometheus.NewRegistry())
}

func mustRecv(t *testing.T, c *SimpleSwbusEdgeClient) IncomingMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := c.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	return msg
}

// TestPingAutoAnsweredWithoutSurfacingToRecv mirrors spec §8 scenario 1 at
// the simple-client layer: a ping addressed to a registered client answers
// inline and never reaches that client's own Recv.
func TestPingAutoAnsweredWithoutSurfacingToRecv(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	callerSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/caller/0")
	caller, err := New(rt, callerSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	svcSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/testsvc/0")
	svc, err := New(rt, svcSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := caller.Send(OutgoingMessage{Destination: svcSP, Body: swbusmsg.Body{PingRequest: &swbusmsg.PingRequest{}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	resp := mustRecv(t, caller)
	if resp.Body.Response == nil || resp.Body.Response.ErrorCode != swbuserr.Ok {
		t.Errorf("expected Ok ping response, got %+v", resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := svc.Recv(ctx); err == nil {
		t.Error("expected the ping never to surface on the ping target's own Recv")
	}
}

func TestDataRequestDeliveredToRecv(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	callerSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/caller/0")
	caller, err := New(rt, callerSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	svcSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/testsvc/0")
	svc, err := New(rt, svcSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := caller.Send(OutgoingMessage{Destination: svcSP, Body: swbusmsg.Body{DataRequest: &swbusmsg.DataRequest{Payload: []byte("ping")}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := mustRecv(t, svc)
	if got.Body.DataRequest == nil || string(got.Body.DataRequest.Payload) != "ping" {
		t.Errorf("unexpected delivered message: %+v", got)
	}
	if got.Header.Source != callerSP {
		t.Errorf("expected source %v, got %v", callerSP, got.Header.Source)
	}
}

// TestSinkAnswersNoRoute mirrors spec §8 scenario 5: a sink client answers
// every data request it receives with NoRoute and never surfaces it.
func TestSinkAnswersNoRoute(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	callerSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/caller/0")
	caller, err := New(rt, callerSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	sinkSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/gone-actor/0")
	if _, err := NewSink(rt, sinkSP, testLogger()); err != nil {
		t.Fatal(err)
	}

	if _, err := caller.Send(OutgoingMessage{Destination: sinkSP, Body: swbusmsg.Body{DataRequest: &swbusmsg.DataRequest{Payload: []byte("x")}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	resp := mustRecv(t, caller)
	if resp.Body.Response == nil || resp.Body.Response.ErrorCode != swbuserr.NoRoute {
		t.Errorf("expected NoRoute from sink, got %+v", resp)
	}
}

// TestManagementRequestWithKnownTypeSurfacedToRecv mirrors
// crates/swbus-edge/src/simple_client.rs: a ManagementRequest whose type
// parses is handed to the registered handler to answer itself, rather than
// being auto-rejected.
func TestManagementRequestWithKnownTypeSurfacedToRecv(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	callerSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/caller/0")
	caller, err := New(rt, callerSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	svcSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/testsvc/0")
	svc, err := New(rt, svcSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := caller.Send(OutgoingMessage{Destination: svcSP, Body: swbusmsg.Body{ManagementRequest: &swbusmsg.ManagementRequest{RequestType: swbusmsg.SwbusdGetRoutes}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := mustRecv(t, svc)
	if got.Body.ManagementRequest == nil || got.Body.ManagementRequest.RequestType != swbusmsg.SwbusdGetRoutes {
		t.Errorf("expected management request surfaced to handler, got %+v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := caller.Recv(ctx); err == nil {
		t.Error("expected no auto-response for a management request with a known type")
	}
}

// TestManagementRequestWithUnknownTypeIgnored mirrors spec §4.G: an
// unparseable management request type is logged and ignored, with no
// reply and no delivery to Recv.
func TestManagementRequestWithUnknownTypeIgnored(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	callerSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/caller/0")
	caller, err := New(rt, callerSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	svcSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/testsvc/0")
	svc, err := New(rt, svcSP, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := caller.Send(OutgoingMessage{Destination: svcSP, Body: swbusmsg.Body{ManagementRequest: &swbusmsg.ManagementRequest{RequestType: swbusmsg.ManagementRequestUnknown}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := svc.Recv(ctx); err == nil {
		t.Error("expected an unparseable management request never to surface to Recv")
	}
	if _, err := caller.Recv(ctx); err == nil {
		t.Error("expected no reply for an unparseable management request")
	}
}

func TestPrivateHandlerNotExported(t *testing.T) {
	daemon := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0")
	rt := testRuntime(t, daemon)

	privSP := servicepath.MustParse("region-a.cluster-a.10.0.0.1-dpu0/actor-creator/0")
	if _, err := NewPrivate(rt, privSP, testLogger()); err != nil {
		t.Fatal(err)
	}

	for _, sp := range rt.ExportHandlers() {
		if sp == privSP {
			t.Fatal("private handler must not appear in ExportHandlers")
		}
	}
}
