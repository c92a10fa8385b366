// ABOUTME: Time server package
// ABOUTME: WebSocket time authority for dozclock clocks
// Package timeserver answers dozclock time requests over WebSocket.
//
// A server stamps every client/time request with its own wall clock in Unix
// microseconds on receive and on send, so the client can compute offset and
// round-trip time. Servers can advertise themselves over mDNS and expose
// Prometheus counters on /metrics.
//
// Example:
//
//	srv, err := timeserver.NewServer(timeserver.Config{Name: "shelf", EnableMDNS: true}, log)
//	if err != nil {
//		return err
//	}
//	go srv.Start()
//	defer srv.Stop()
package timeserver
