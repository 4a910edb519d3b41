package diagserver

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// stateChangeEvent is the payload pushed to every /debug/ws subscriber
// whenever a stream's connectionState changes.
type stateChangeEvent struct {
	WindowID uint32    `msgpack:"windowId"`
	State    string    `msgpack:"state"`
	Reason   string    `msgpack:"reason,omitempty"`
	At       time.Time `msgpack:"at"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// broadcaster is a single-consumer serial queue fanning state-change
// events out to every connected diagnostics WebSocket client, the same
// register/dispatch shape as the teacher's websocket.Manager but
// generalized from per-room chat fanout to an unconditional broadcast.
type broadcaster struct {
	logger *slog.Logger

	queue     chan func()
	queueDone chan struct{}
	stop      chan struct{}
	stopOnce  sync.Once

	clients map[string]*wsClient
}

func newBroadcaster(logger *slog.Logger) *broadcaster {
	b := &broadcaster{
		logger:    logger,
		queue:     make(chan func(), 64),
		queueDone: make(chan struct{}),
		stop:      make(chan struct{}),
		clients:   make(map[string]*wsClient),
	}
	go b.run()
	return b
}

func (b *broadcaster) run() {
	defer close(b.queueDone)
	for {
		select {
		case fn := <-b.queue:
			fn()
		case <-b.stop:
			return
		}
	}
}

func (b *broadcaster) enqueue(fn func()) {
	select {
	case b.queue <- fn:
	case <-b.stop:
	}
}

func (b *broadcaster) addClient(conn *websocket.Conn) *wsClient {
	idBytes := make([]byte, 8)
	rand.Read(idBytes)
	c := &wsClient{id: hex.EncodeToString(idBytes), conn: conn}
	b.enqueue(func() { b.clients[c.id] = c })
	return c
}

func (b *broadcaster) removeClient(id string) {
	b.enqueue(func() { delete(b.clients, id) })
}

// publish encodes event and fans it out to every connected client. The
// encode happens inline (msgpack marshal is cheap and allocation-only);
// only the per-client send is serialized onto the queue.
func (b *broadcaster) publish(event stateChangeEvent) {
	data, err := encodeMsgpack(event)
	if err != nil {
		b.logger.Warn("failed to encode diagnostics state-change event", "error", err)
		return
	}
	b.enqueue(func() {
		for _, c := range b.clients {
			if err := c.send(data); err != nil {
				b.logger.Debug("diagnostics ws send failed", "client_id", c.id, "error", err)
			}
		}
	})
}

func (b *broadcaster) close() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.queueDone
}
