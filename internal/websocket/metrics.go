package websocket

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// hubMetrics holds the websocket instruments
type hubMetrics struct {
	connectionsActive metric.Int64UpDownCounter
	messagesSent      metric.Int64Counter
	messagesDropped   metric.Int64Counter
}

func newHubMetrics(meter metric.Meter) (*hubMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("websocket")
	}
	active, err := meter.Int64UpDownCounter("websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"))
	if err != nil {
		return nil, err
	}
	sent, err := meter.Int64Counter("websocket_messages_sent_total",
		metric.WithDescription("Messages queued to WebSocket clients"))
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("websocket_messages_dropped_total",
		metric.WithDescription("Messages dropped because the hub or a client buffer was full"))
	if err != nil {
		return nil, err
	}
	return &hubMetrics{connectionsActive: active, messagesSent: sent, messagesDropped: dropped}, nil
}

func (m *hubMetrics) connected(ctx context.Context, delta int64) {
	m.connectionsActive.Add(ctx, delta)
}

func (m *hubMetrics) sent(ctx context.Context, n int64) {
	if n > 0 {
		m.messagesSent.Add(ctx, n)
	}
}

func (m *hubMetrics) dropped(ctx context.Context) {
	m.messagesDropped.Add(ctx, 1)
}
