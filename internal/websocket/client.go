package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"aquaexport/internal/infrastructure"
	"aquaexport/pkg/contracts/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

// Client is a middleman between the websocket connection and the hub
type Client struct {
	hub  *Hub
	conn Connection

	// Buffered channel of outbound messages, closed by the hub
	send chan []byte

	id          string
	traceID     string
	remoteAddr  string
	connectedAt time.Time
	logger      *slog.Logger

	mu    sync.RWMutex
	runID string
}

// NewClient creates a client subscribed to runID, or to every run when
// runID is empty.
func NewClient(hub *Hub, conn Connection, traceID, runID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, clientBuffer),
		id:          id,
		traceID:     traceID,
		remoteAddr:  conn.RemoteAddr(),
		connectedAt: time.Now(),
		logger: infrastructure.WithComponent(logger, "websocket.client").With(
			slog.String("client_id", id)),
		runID: runID,
	}
}

// ID returns the client id
func (c *Client) ID() string { return c.id }

// Subscribe limits delivery to one run. An empty id subscribes to all runs.
func (c *Client) Subscribe(runID string) {
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()
}

func (c *Client) subscription() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

func (c *Client) wants(runID string) bool {
	sub := c.subscription()
	return sub == "" || runID == "" || sub == runID
}

func (c *Client) logContext() context.Context {
	ctx := context.Background()
	if c.traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, c.traceID)
	}
	return ctx
}

// ReadPump handles client messages until the connection fails
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WarnContext(c.logContext(), "unexpected websocket close",
					slog.String("error", err.Error()))
			}
			return
		}
		c.handle(bytes.TrimSpace(message))
	}
}

func (c *Client) handle(message []byte) {
	var msg events.ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.DebugContext(c.logContext(), "ignoring malformed client message",
			slog.String("error", err.Error()))
		return
	}

	switch msg.Type {
	case events.MessageTypeHeartbeat:
		c.logger.Debug("heartbeat received")
	case events.MessageTypeSubscription:
		c.Subscribe(msg.RunID)
		payload, err := encode(events.MessageTypeSubscription, c.traceID, map[string]string{"run_id": msg.RunID})
		if err == nil {
			c.hub.Reply(c, payload)
		}
	default:
		c.logger.DebugContext(c.logContext(), "unknown client message", slog.String("type", string(msg.Type)))
	}
}

// WritePump writes hub messages and pings to the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.ErrorContext(c.logContext(), "write websocket message",
					slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.DebugContext(c.logContext(), "ping failed",
					slog.String("error", err.Error()))
				return
			}
		}
	}
}
