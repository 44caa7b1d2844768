package main

import (
	"os"
	"strings"
	"time"

	"github.com/irctrakz/meshvpn/pkg/core"
	"github.com/irctrakz/meshvpn/pkg/logging"
	"github.com/irctrakz/meshvpn/pkg/receive"
	"github.com/irctrakz/meshvpn/pkg/relay"
	"github.com/irctrakz/meshvpn/pkg/transport"
	"github.com/sirupsen/logrus"
)

// runMetricsReporter periodically dumps counters from all layers.
// Interval comes from METRICS_INTERVAL (a time.ParseDuration string,
// default 30s).
func runMetricsReporter(dev *receive.Device, router *relay.Router, tr *transport.Transport, tunnel core.TunnelDevice) {
	iv := strings.TrimSpace(os.Getenv("METRICS_INTERVAL"))
	d, err := time.ParseDuration(iv)
	if err != nil || d <= 0 {
		d = 30 * time.Second
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		dumpMetrics(dev, router, tr, tunnel)
		<-ticker.C
	}
}

func dumpMetrics(dev *receive.Device, router *relay.Router, tr *transport.Transport, tunnel core.TunnelDevice) {
	dm := dev.Metrics()
	rm := router.Metrics()
	tm := tr.Metrics()
	um := tunnel.Metrics()

	logging.WithFields(logrus.Fields{
		"frames_received": dm.FramesReceived,
		"frames_local":    dm.FramesLocal,
		"frames_relayed":  dm.FramesRelayed,
		"frames_noroute":  dm.FramesNoRoute,
		"frames_dropped":  dm.FramesDropped,
	}).Info("device metrics")

	logging.WithFields(logrus.Fields{
		"buffered": rm.FramesBuffered,
		"flushed":  rm.FramesFlushed,
		"dropped":  rm.FramesDropped,
		"flows":    rm.FlowsCreated,
		"expired":  rm.FlowsExpired,
	}).Info("relay metrics")

	logging.WithFields(logrus.Fields{
		"rx":            tm.DatagramsReceived,
		"tx":            tm.DatagramsSent,
		"rx_bytes":      tm.BytesReceived,
		"tx_bytes":      tm.BytesSent,
		"unknown_drops": tm.UnknownDropped,
		"keepalives":    tm.KeepalivesSent,
	}).Info("transport metrics")

	logging.WithFields(logrus.Fields{
		"frames": um.FramesWritten,
		"bytes":  um.BytesWritten,
		"errors": um.Errors,
	}).Info("tunnel metrics")
}
