// Command swbusd is the control-plane message bus daemon: it loads a
// process configuration, starts the multiplexer and edge runtime, accepts
// cluster connections, and dials configured peers.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sonic-net/sonic-swbus-go/servicepath"
	"github.com/sonic-net/sonic-swbus-go/swbusconfig"
	"github.com/sonic-net/sonic-swbus-go/swbusd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("swbusd: exiting")
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listenOn   string
		slotID     uint32
	)

	cmd := &cobra.Command{
		Use:   "swbusd",
		Short: "swbus control-plane message bus daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, listenOn, slotID)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the process configuration file (required)")
	cmd.Flags().StringVar(&listenOn, "listen", "", "override the configured listen address")
	cmd.Flags().Uint32Var(&slotID, "slot-id", 0, "override the configured dpu slot id (0 = use config value)")
	cmd.MarkFlagRequired("config")

	return cmd
}

func run(configPath, listenOverride string, slotIDOverride uint32) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "swbusd: reading config file")
	}
	cfg, err := swbusconfig.ParseConfig(data)
	if err != nil {
		return err
	}
	if listenOverride != "" {
		cfg.ListenOn = listenOverride
	}
	if slotIDOverride != 0 {
		cfg.SlotID = slotIDOverride
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logger).WithFields(logrus.Fields{
		"slot_id":     cfg.SlotID,
		"daemon_path": cfg.DaemonPath.String(),
	})

	mux := swbusd.NewMultiplexer(cfg.DaemonPath)
	mux.SetMyRoutes(cfg.MyRoutes)

	env := &swbusconfig.RuntimeEnv{SlotID: cfg.SlotID, NPUIPv4: cfg.NPUIPv4, NPUIPv6: cfg.NPUIPv6}
	rt := swbusd.NewEdgeRuntime(mux, env, log, prometheus.NewRegistry())

	for _, peer := range cfg.Peers {
		if err := rt.Connect(peer, cfg.DaemonPath); err != nil {
			log.WithError(err).WithField("peer", peer.Name).Warn("swbusd: failed to connect to peer, will not retry")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	for _, sp := range cfg.SinkPaths {
		go runSink(ctx, rt, sp, log)
	}

	ln, err := net.Listen("tcp", cfg.ListenOn)
	if err != nil {
		return errors.Wrapf(err, "swbusd: listen on %s", cfg.ListenOn)
	}
	log.WithField("listen_on", cfg.ListenOn).Info("swbusd: accepting connections")

	stopping := make(chan struct{})
	acceptDone := make(chan struct{})
	go acceptLoop(ln, rt, cfg.DaemonPath, log, stopping, acceptDone)

	<-ctx.Done()
	log.Info("swbusd: shutdown signal received")
	close(stopping)
	ln.Close()
	<-acceptDone

	if err := rt.Shutdown(); err != nil {
		log.WithError(err).Error("swbusd: errors during connection shutdown")
	}
	return nil
}

// acceptLoop accepts inbound cluster connections until ln is closed. Each
// accepted connection is tracked by the runtime but is not assigned a
// route, and its remote service path is left empty; only the peers dialed
// from cfg.Peers get routes.
func acceptLoop(ln net.Listener, rt *swbusd.EdgeRuntime, daemonPath servicepath.ServicePath, log *logrus.Entry, stopping <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-stopping:
			default:
				log.WithError(err).Info("swbusd: accept loop stopping")
			}
			return
		}

		connInfo := swbusd.NewConnInfo(swbusd.ConnTypeCluster, conn.RemoteAddr().String(), servicepath.ServicePath{}, daemonPath)
		transport := swbusd.NewTCPTransport(conn)
		rt.RegisterInboundConn(connInfo, transport)
		log.WithField("remote_addr", conn.RemoteAddr().String()).Info("swbusd: accepted connection")
	}
}
