// Package promexport wires a monitor.Monitor's event stream into
// Prometheus metrics via github.com/prometheus/client_golang, giving
// ZLink's monitor events a concrete consumer.
package promexport

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ulala-x/zlink/monitor"
)

// Exporter maintains a counter per event kind and a gauge tracking
// currently-connected peers, fed by one monitor's event stream.
type Exporter struct {
	events    *prometheus.CounterVec
	connected prometheus.Gauge
}

// New registers the exporter's metrics against reg (pass
// prometheus.DefaultRegisterer for the global registry) labeled by socket.
func New(reg prometheus.Registerer, socketLabel string) (*Exporter, error) {
	e := &Exporter{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zlink",
			Subsystem: "socket",
			Name:      "events_total",
			Help:      "Count of socket monitor events by kind.",
			ConstLabels: prometheus.Labels{"socket": socketLabel},
		}, []string{"event"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zlink",
			Subsystem:   "socket",
			Name:        "connected_peers",
			Help:        "Number of peers currently in CONNECTION_READY state.",
			ConstLabels: prometheus.Labels{"socket": socketLabel},
		}),
	}
	if err := reg.Register(e.events); err != nil {
		return nil, err
	}
	if err := reg.Register(e.connected); err != nil {
		return nil, err
	}
	return e, nil
}

// Run drains mon's subscription until ctx is cancelled or the monitor
// stops, updating metrics as events arrive. Intended to run in its own
// goroutine.
func (e *Exporter) Run(ctx context.Context, mon *monitor.Monitor) {
	ch := mon.Subscribe(64)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			e.events.WithLabelValues(ev.EventID.String()).Inc()
			switch ev.EventID {
			case monitor.ConnectionReady, monitor.Accepted, monitor.Connected:
				e.connected.Inc()
			case monitor.Disconnected, monitor.Closed:
				e.connected.Dec()
			}
		}
	}
}
