package websocket

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"aquaexport/internal/infrastructure"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to hub. The
// optional run_id query parameter subscribes the client to a single run.
func ServeWS(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			logger.WarnContext(ctx, "websocket upgrade failed", slog.String("error", err.Error()))
			return
		}

		client := NewClient(hub, NewConnectionWrapper(conn), infrastructure.GetTraceID(ctx), r.URL.Query().Get("run_id"), logger)
		if !hub.Register(client) {
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "hub stopped"))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
