// ABOUTME: WebSocket client for dozclock time protocol
// ABOUTME: Handles connection, handshake, and time exchange routing
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultHandshakeTimeout = 5 * time.Second

// ErrNotConnected is returned when sending on a closed client.
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	ServerAddr       string
	ClientID         string
	Name             string
	DeviceInfo       DeviceInfo
	HandshakeTimeout time.Duration
}

// Client represents a WebSocket client
type Client struct {
	config  Config
	log     *zap.Logger
	conn    *websocket.Conn
	mu      sync.RWMutex
	writeMu sync.Mutex

	// Message channels
	TimeSyncResp chan ServerTime

	// State
	connected   bool
	serverHello ServerHello
	ctx         context.Context
	cancel      context.CancelFunc

	// now returns the client clock in Unix microseconds.
	now func() int64
}

// NewClient creates a new WebSocket client
func NewClient(config Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config:       config,
		log:          log,
		TimeSyncResp: make(chan ServerTime, 10),
		ctx:          ctx,
		cancel:       cancel,
		now:          func() int64 { return time.Now().UnixMicro() },
	}
}

// Connect establishes WebSocket connection and performs handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: Path}
	c.log.Debug("connecting", zap.String("url", u.String()))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()

	return nil
}

// handshake performs the protocol handshake
func (c *Client) handshake(ctx context.Context) error {
	hello := ClientHello{
		ClientID:       c.config.ClientID,
		Name:           c.config.Name,
		Version:        Version,
		SupportedRoles: []string{RoleTime},
		DeviceInfo:     &c.config.DeviceInfo,
	}

	if err := c.sendJSON(Message{Type: TypeClientHello, Payload: hello}); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	deadline := time.Now().Add(c.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var serverMsg Message
	if err := json.Unmarshal(data, &serverMsg); err != nil {
		return fmt.Errorf("failed to parse server/hello: %w", err)
	}
	if serverMsg.Type != TypeServerHello {
		return fmt.Errorf("expected %s, got %s", TypeServerHello, serverMsg.Type)
	}

	var sh ServerHello
	if err := DecodePayload(serverMsg, &sh); err != nil {
		return err
	}

	c.mu.Lock()
	c.serverHello = sh
	c.mu.Unlock()

	c.log.Debug("handshake complete", zap.String("server", sh.Name), zap.String("server_id", sh.ServerID))
	return nil
}

// sendJSON sends a JSON message
func (c *Client) sendJSON(msg Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// readMessages reads and routes incoming messages
func (c *Client) readMessages() {
	defer c.Close()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read error", zap.Error(err))
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.log.Debug("ignoring non-text message", zap.Int("type", messageType))
			continue
		}
		c.handleJSONMessage(data)
	}
}

// handleJSONMessage routes JSON messages
func (c *Client) handleJSONMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Debug("failed to parse JSON message", zap.Error(err))
		return
	}

	switch msg.Type {
	case TypeServerTime:
		var timeMsg ServerTime
		if err := DecodePayload(msg, &timeMsg); err != nil {
			c.log.Debug("bad server/time", zap.Error(err))
			return
		}
		select {
		case c.TimeSyncResp <- timeMsg:
		case <-c.ctx.Done():
		}

	default:
		c.log.Debug("unknown message type", zap.String("type", msg.Type))
	}
}

// SendTimeSync sends a client/time message
func (c *Client) SendTimeSync(t1 int64) error {
	return c.sendJSON(Message{
		Type:    TypeClientTime,
		Payload: ClientTime{ClientTransmitted: t1},
	})
}

// ExchangeTime performs one client/time round trip and returns the four
// timestamps: client send, server receive, server send, client receive.
func (c *Client) ExchangeTime(ctx context.Context) (t1, t2, t3, t4 int64, err error) {
	t1 = c.now()
	if err = c.SendTimeSync(t1); err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to send client/time: %w", err)
	}

	for {
		select {
		case resp := <-c.TimeSyncResp:
			t4 = c.now()
			if resp.ClientTransmitted != t1 {
				// Late answer to an earlier, abandoned request.
				continue
			}
			return t1, resp.ServerReceived, resp.ServerTransmitted, t4, nil
		case <-ctx.Done():
			return 0, 0, 0, 0, ctx.Err()
		case <-c.ctx.Done():
			return 0, 0, 0, 0, ErrNotConnected
		}
	}
}

// SendGoodbye sends a client/goodbye message before disconnecting
func (c *Client) SendGoodbye(reason string) error {
	return c.sendJSON(Message{
		Type:    TypeClientGoodbye,
		Payload: ClientGoodbye{Reason: reason},
	})
}

// ServerHello returns the server's handshake reply.
func (c *Client) ServerHello() ServerHello {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverHello
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		c.conn.Close()
		c.log.Debug("connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
