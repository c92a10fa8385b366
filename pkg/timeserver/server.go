// ABOUTME: WebSocket time server for dozclock clocks
// ABOUTME: Handles handshake, time requests, client tracking and mDNS advertisement
package timeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/discovery"
	"github.com/Dozenal-Clock/dozclock-go/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// DefaultPort is the port a time server listens on unless configured.
const DefaultPort = 8928

// Config configures a time server
type Config struct {
	// Port to listen on (default: 8928)
	Port int

	// Name of the server for identification
	Name string

	// EnableMDNS enables mDNS service advertisement
	EnableMDNS bool

	// Clock is the authoritative wall clock (default: time.Now)
	Clock func() time.Time

	// Registry receives the server's metrics (default: a private registry)
	Registry *prometheus.Registry
}

// Server represents a dozclock time server
type Server struct {
	config   Config
	serverID string
	log      *zap.Logger

	upgrader websocket.Upgrader

	httpServer *http.Server
	mux        *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex

	mdnsManager *discovery.Manager
	metrics     *serverMetrics

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// client represents a connected clock (internal)
type client struct {
	ID        string
	Name      string
	Conn      *websocket.Conn
	Device    protocol.DeviceInfo
	Requests  int64
	Connected time.Time
	sendChan  chan interface{}
	closed    bool
	mu        sync.RWMutex
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID        string
	Name      string
	Product   string
	Requests  int64
	Connected time.Time
}

// NewServer creates a new time server
func NewServer(config Config, log *zap.Logger) (*Server, error) {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Port < 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", config.Port)
	}
	if config.Name == "" {
		config.Name = "dozclock time server"
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		log:      log,
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clocks live on the local network and send no Origin worth checking.
				return true
			},
		},
		clients:  make(map[string]*client),
		metrics:  newServerMetrics(config.Registry),
		stopChan: make(chan struct{}),
	}

	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{}))

	return s, nil
}

// ID returns the server's random identifier.
func (s *Server) ID() string { return s.serverID }

// Handler returns the HTTP handler serving the WebSocket and metrics endpoints.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info("time server starting", zap.String("name", s.config.Name), zap.String("id", s.serverID))

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
		}, s.log)

		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warn("failed to start mDNS advertisement", zap.Error(err))
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Info("WebSocket server listening", zap.String("addr", addr))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-s.stopChan:
		s.log.Info("time server shutting down")
	case err := <-errChan:
		s.log.Error("HTTP server error", zap.Error(err))
		return err
	}

	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	s.closeClients()
	s.wg.Wait()
	s.log.Info("time server stopped cleanly")

	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Clients returns information about all connected clients
func (s *Server) Clients() []ClientInfo {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	clients := make([]ClientInfo, 0, len(s.clients))
	for _, c := range s.clients {
		c.mu.RLock()
		clients = append(clients, ClientInfo{
			ID:        c.ID,
			Name:      c.Name,
			Product:   c.Device.ProductName,
			Requests:  c.Requests,
			Connected: c.Connected,
		})
		c.mu.RUnlock()
	}

	return clients
}

// nowMicros reads the authoritative clock in Unix microseconds.
func (s *Server) nowMicros() int64 {
	return s.config.Clock().UnixMicro()
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade error", zap.Error(err))
		return
	}

	s.log.Debug("new WebSocket connection", zap.String("remote", r.RemoteAddr))
	s.handleConnection(conn)
}

// handleConnection manages a client connection
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.log.Debug("rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		s.log.Debug("error reading hello", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("error unmarshaling message", zap.Error(err))
		return
	}
	if msg.Type != protocol.TypeClientHello {
		s.log.Debug("expected client/hello", zap.String("got", msg.Type))
		return
	}

	var hello protocol.ClientHello
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		s.log.Debug("bad client/hello", zap.Error(err))
		return
	}
	if hello.ClientID == "" || hello.Name == "" {
		s.log.Debug("client hello missing required fields")
		return
	}

	c := &client{
		ID:        hello.ClientID,
		Name:      hello.Name,
		Conn:      conn,
		Connected: s.config.Clock(),
		sendChan:  make(chan interface{}, 16),
	}
	if hello.DeviceInfo != nil {
		c.Device = *hello.DeviceInfo
	}

	s.clientsMu.Lock()
	if _, exists := s.clients[hello.ClientID]; exists {
		s.clientsMu.Unlock()
		s.log.Info("client ID already connected, rejecting duplicate", zap.String("id", hello.ClientID))
		return
	}
	s.clients[c.ID] = c
	s.clientsMu.Unlock()

	s.metrics.connsAccepted.Inc()
	s.metrics.clients.Inc()
	s.log.Info("client connected", zap.String("name", c.Name), zap.String("id", c.ID))

	defer func() {
		s.removeClient(c)
		s.log.Info("client disconnected", zap.String("name", c.Name))
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	s.sendMessage(c, protocol.TypeServerHello, protocol.ServerHello{
		ServerID:    s.serverID,
		Name:        s.config.Name,
		Version:     protocol.Version,
		ActiveRoles: s.activateRoles(hello.SupportedRoles),
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("WebSocket error", zap.Error(err))
			}
			return
		}
		recv := s.nowMicros()

		if done := s.handleClientMessage(c, data, recv); done {
			return
		}
	}
}

// activateRoles returns the subset of requested roles this server serves.
func (s *Server) activateRoles(requested []string) []string {
	var active []string
	for _, r := range requested {
		if r == protocol.RoleTime {
			active = append(active, r)
		}
	}
	return active
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	const writeDeadline = 10 * time.Second

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				return
			}
			data, err := json.Marshal(s.stampTransmit(msg))
			if err != nil {
				continue
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

// stampTransmit fills in the transmit timestamp of a time reply as late as
// possible, after it has waited in the send buffer.
func (s *Server) stampTransmit(msg interface{}) interface{} {
	m, ok := msg.(protocol.Message)
	if !ok {
		return msg
	}
	if st, ok := m.Payload.(protocol.ServerTime); ok {
		st.ServerTransmitted = s.nowMicros()
		m.Payload = st
	}
	return m
}

// handleClientMessage processes messages from clients. It reports whether
// the client said goodbye.
func (s *Server) handleClientMessage(c *client, data []byte, recv int64) bool {
	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("error unmarshaling message", zap.Error(err))
		return false
	}

	switch msg.Type {
	case protocol.TypeClientTime:
		s.handleTimeSync(c, msg, recv)
	case protocol.TypeClientGoodbye:
		var goodbye protocol.ClientGoodbye
		if err := protocol.DecodePayload(msg, &goodbye); err == nil {
			s.log.Debug("client goodbye", zap.String("name", c.Name), zap.String("reason", goodbye.Reason))
		}
		return true
	default:
		s.log.Debug("unknown message type", zap.String("type", msg.Type))
	}
	return false
}

// handleTimeSync responds to time synchronization requests
func (s *Server) handleTimeSync(c *client, msg protocol.Message, recv int64) {
	var clientTime protocol.ClientTime
	if err := protocol.DecodePayload(msg, &clientTime); err != nil {
		return
	}

	c.mu.Lock()
	c.Requests++
	c.mu.Unlock()

	s.metrics.reqsServed.Inc()

	s.sendMessage(c, protocol.TypeServerTime, protocol.ServerTime{
		ClientTransmitted: clientTime.ClientTransmitted,
		ServerReceived:    recv,
	})
}

// sendMessage queues a JSON message for the client writer.
func (s *Server) sendMessage(c *client, msgType string, payload interface{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.sendChan <- protocol.Message{Type: msgType, Payload: payload}:
	default:
		s.log.Debug("client send buffer full, dropping message", zap.String("name", c.Name), zap.String("type", msgType))
	}
}

// removeClient removes a client
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if s.clients[c.ID] == c {
		delete(s.clients, c.ID)
		s.metrics.clients.Dec()
	}

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
	c.mu.Unlock()
}

// closeClients closes every client connection so handlers return.
func (s *Server) closeClients() {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, c := range s.clients {
		c.Conn.Close()
	}
}
