// ABOUTME: Prometheus metrics for the time server
// ABOUTME: Counts accepted connections and served time requests
package timeserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	connsAcceptedN = "dozclock_timeserver_connections_accepted_total"
	connsAcceptedH = "The total number of client connections that completed the handshake"
	reqsServedN    = "dozclock_timeserver_time_requests_served_total"
	reqsServedH    = "The total number of client/time requests answered"
	clientsN       = "dozclock_timeserver_clients"
	clientsH       = "The number of currently connected clients"
)

type serverMetrics struct {
	connsAccepted prometheus.Counter
	reqsServed    prometheus.Counter
	clients       prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	f := promauto.With(reg)
	return &serverMetrics{
		connsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: connsAcceptedN,
			Help: connsAcceptedH,
		}),
		reqsServed: f.NewCounter(prometheus.CounterOpts{
			Name: reqsServedN,
			Help: reqsServedH,
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: clientsN,
			Help: clientsH,
		}),
	}
}
