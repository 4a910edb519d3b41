package diagserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func encodeMsgpack(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

type webSocketHandler struct {
	bcast  *broadcaster
	logger *slog.Logger
}

func newWebSocketHandler(bcast *broadcaster, logger *slog.Logger) *webSocketHandler {
	return &webSocketHandler{bcast: bcast, logger: logger}
}

func (h *webSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("diagnostics websocket upgrade failed", "error", err)
		return
	}

	client := h.bcast.addClient(conn)
	h.logger.Debug("diagnostics websocket connected", "client_id", client.id)

	go h.readPump(client)
}

// readPump does nothing but detect client disconnects: /debug/ws is a
// one-way feed, so any inbound message (including the close frame) just
// triggers cleanup.
func (h *webSocketHandler) readPump(client *wsClient) {
	defer func() {
		h.bcast.removeClient(client.id)
		client.conn.Close()
		h.logger.Debug("diagnostics websocket disconnected", "client_id", client.id)
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			break
		}
	}
}
