package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"aquaexport/internal/infrastructure"
	"aquaexport/internal/operations"
	"aquaexport/pkg/contracts/events"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 256
)

// outbound is a serialized message and the run it belongs to.
// An empty runID reaches every client.
type outbound struct {
	runID   string
	payload []byte
}

type directMessage struct {
	client  *Client
	payload []byte
}

// Hub fans run progress out to connected websocket clients. Only the Run
// goroutine mutates the client set and closes client send channels.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *hubMetrics

	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a hub. A nil meter records nothing.
func NewHub(logger *slog.Logger, meter metric.Meter) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = infrastructure.WithComponent(logger, "websocket.hub")

	metrics, err := newHubMetrics(meter)
	if err != nil {
		logger.Warn("websocket metrics disabled", slog.String("error", err.Error()))
		metrics, _ = newHubMetrics(nil)
	}

	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBuffer),
		direct:     make(chan directMessage, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		metrics:    metrics,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the hub loop in the background. It is idempotent.
func (h *Hub) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}
	h.running = true
	go h.Run()
}

// Stop disconnects every client and waits for the hub loop to exit
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}

// Run is the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)
	ctx := context.Background()

	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.remove(ctx, client, "hub stopped")
			}
			h.logger.Info("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.metrics.connected(ctx, 1)

			h.logger.InfoContext(client.logContext(), "client registered",
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr),
				slog.Int("total_clients", count))

			if payload, err := encode(events.MessageTypeConnect, "", map[string]interface{}{
				"status":    "connected",
				"client_id": client.id,
				"run_id":    client.subscription(),
			}); err == nil {
				h.enqueue(ctx, client, payload)
			}

		case client := <-h.unregister:
			h.remove(ctx, client, "closed")

		case msg := <-h.direct:
			if h.clients[msg.client] {
				h.enqueue(ctx, msg.client, msg.payload)
			}

		case msg := <-h.broadcast:
			var sent int64
			for client := range h.clients {
				if !client.wants(msg.runID) {
					continue
				}
				if h.enqueue(ctx, client, msg.payload) {
					sent++
				}
			}
			h.metrics.sent(ctx, sent)
		}
	}
}

// enqueue hands payload to the client's writer, disconnecting clients whose
// buffer is full.
func (h *Hub) enqueue(ctx context.Context, client *Client, payload []byte) bool {
	select {
	case client.send <- payload:
		return true
	default:
		h.metrics.dropped(ctx)
		h.remove(ctx, client, "send buffer full")
		return false
	}
}

func (h *Hub) remove(ctx context.Context, client *Client, reason string) {
	h.mu.Lock()
	if !h.clients[client] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.connected(ctx, -1)

	h.logger.InfoContext(client.logContext(), "client unregistered",
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", time.Since(client.connectedAt)),
		slog.Int("total_clients", count))
}

// Register adds a client. It reports false when the hub is not running.
func (h *Hub) Register(client *Client) bool {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return false
	}
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Reply sends payload to a single client
func (h *Hub) Reply(client *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: client, payload: payload}:
	default:
		h.metrics.dropped(context.Background())
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every client subscribed to runID. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) Broadcast(ctx context.Context, runID string, msgType events.MessageType, data interface{}) {
	payload, err := encode(msgType, infrastructure.GetTraceID(ctx), data)
	if err != nil {
		h.logger.ErrorContext(ctx, "marshal websocket message",
			slog.String("type", string(msgType)),
			slog.String("error", err.Error()))
		return
	}

	select {
	case h.broadcast <- outbound{runID: runID, payload: payload}:
	default:
		h.metrics.dropped(ctx)
		h.logger.WarnContext(ctx, "broadcast queue full, message dropped",
			slog.String("type", string(msgType)),
			slog.String("run_id", runID))
	}
}

// OnProgress forwards run progress to subscribed clients
func (h *Hub) OnProgress(ctx context.Context, event operations.ProgressEvent) {
	h.Broadcast(ctx, event.RunID, messageType(event.Type), event)
}

var _ operations.Listener = (*Hub)(nil)

func messageType(t operations.EventType) events.MessageType {
	switch t {
	case operations.EventCellProgress:
		return events.MessageTypeRunProgress
	case operations.EventWorkbook:
		return events.MessageTypeRunWorkbook
	default:
		return events.MessageTypeRunStatus
	}
}

func encode(msgType events.MessageType, traceID string, data interface{}) ([]byte, error) {
	return json.Marshal(events.WebSocketMessage{
		BaseMessage: events.BaseMessage{
			ID:        uuid.New().String(),
			Type:      msgType,
			Timestamp: time.Now().UTC(),
			TraceID:   traceID,
		},
		Data: data,
	})
}
