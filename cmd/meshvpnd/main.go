package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/irctrakz/meshvpn/pkg/config"
	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/logging"
	"github.com/irctrakz/meshvpn/pkg/receive"
	"github.com/irctrakz/meshvpn/pkg/relay"
	"github.com/irctrakz/meshvpn/pkg/transport"
	"github.com/irctrakz/meshvpn/pkg/tun"
)

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := config.LoadFromFile(*configPath, cfg); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	config.LoadFromEnv(cfg)

	// DEBUG env overrides the configured level
	dval := strings.ToLower(strings.TrimSpace(os.Getenv("DEBUG")))
	if dval == "1" || dval == "true" || dval == "yes" || dval == "on" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyLogging(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// Tunnel interface: the output target for locally-destined frames.
	var tunnel core.TunnelDevice
	if cfg.Tunnel.Mock {
		tunnel = tun.NewMockTunnel(cfg.Tunnel.Name, cfg.Device.MTU)
	} else {
		tunnel = tun.NewTunnel(cfg.Tunnel.Name, cfg.Device.MTU)
	}
	if err := tunnel.Start(); err != nil {
		log.Fatalf("tunnel: %v", err)
	}
	defer tunnel.Stop()

	// Relay router and receive device.
	router := relay.NewRouter(cfg.Device.MTU)
	dev, err := receive.NewDevice(
		cfg.Device.MTU,
		tunnel,
		router,
		cfg.Relay.FlowBufferSize,
		time.Duration(cfg.Relay.FlowInactivitySeconds)*time.Second,
	)
	if err != nil {
		log.Fatalf("device: %v", err)
	}
	if cfg.Device.SelfID != nil {
		dev.SetSelfID(core.PeerID(*cfg.Device.SelfID))
	}

	// Peers and transport sessions.
	tr := transport.NewTransport(cfg.Transport, dev)
	peers := make([]*receive.Peer, 0, len(cfg.Transport.Peers))
	for _, pc := range cfg.Transport.Peers {
		peer := dev.NewPeer(core.PeerID(pc.ID), nil, pc.RelayCapable)
		if _, err := tr.AddPeer(peer, pc.Endpoint); err != nil {
			log.Fatalf("peer %d: %v", pc.ID, err)
		}
		peers = append(peers, peer)
	}

	if err := tr.Start(); err != nil {
		log.Fatalf("transport: %v", err)
	}

	logging.Infof("meshvpnd up: %d peers, MTU %d", len(peers), cfg.Device.MTU)

	if strings.TrimSpace(os.Getenv("METRICS_INTERVAL")) != "" {
		go runMetricsReporter(dev, router, tr, tunnel)
	}

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	// Teardown in reverse dependency order: transport sessions first,
	// then peers, then the device.
	tr.Stop()
	for _, p := range peers {
		p.Close()
	}
	dev.Close()
}
