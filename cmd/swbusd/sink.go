package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusd"
	"github.com/sonic-net/sonic-swbus-go/swbusedge"
)

// runSink permanently drains sp, answering every data request with NoRoute.
// It mirrors hamgrd/main.rs's actor-creator sink: a process that hosts a
// service type only instantiates the real actor lazily, and until then
// traffic addressed to it must still get a correlated response rather than
// vanish. Runs until ctx is canceled.
func runSink(ctx context.Context, rt *swbusd.EdgeRuntime, sp servicepath.ServicePath, log *logrus.Entry) {
	client, err := swbusedge.NewSink(rt, sp, log)
	if err != nil {
		log.WithError(err).WithField("sink_path", sp.String()).Error("swbusd: failed to start sink")
		return
	}
	defer client.Close()

	log.WithField("sink_path", sp.String()).Info("swbusd: sink draining")
	for {
		if _, err := client.Recv(ctx); err != nil {
			return
		}
	}
}
