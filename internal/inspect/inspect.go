// Package inspect provides a websocket debug event feed so a connected
// inspector can observe Medium/Gateway/LNS activity (join accepted,
// uplink decoded, session state) while a devsim run is in progress.
// This is ambient observability, not simulated radio networking — it
// never participates in a LoRaWAN exchange itself.
package inspect

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventType names the kind of activity an Event reports.
type EventType string

const (
	EventJoinAccepted      EventType = "join_accepted"
	EventJoinRejected      EventType = "join_rejected"
	EventUplinkDecoded     EventType = "uplink_decoded"
	EventDownlinkSent      EventType = "downlink_sent"
	EventSessionState      EventType = "session_state"
	EventChannelNotDefined EventType = "channel_not_defined"
)

// Event is one JSON-encoded line pushed to every connected inspector.
type Event struct {
	Type EventType   `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans Events out to every connected websocket client.
type Hub struct {
	mu        sync.Mutex
	clients   map[*websocket.Conn]chan Event
	nowFunc   func() time.Time
	bufferLen int
}

// NewHub returns an empty Hub. bufferLen sizes each client's outbound
// queue; a slow client whose queue is full misses each new event rather
// than blocking the publisher.
func NewHub(bufferLen int) *Hub {
	if bufferLen <= 0 {
		bufferLen = 64
	}
	return &Hub{
		clients:   make(map[*websocket.Conn]chan Event),
		nowFunc:   time.Now,
		bufferLen: bufferLen,
	}
}

// Publish queues ev for delivery to every currently-connected client.
func (h *Hub) Publish(typ EventType, data interface{}) {
	ev := Event{Type: typ, Time: h.nowFunc(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			log.Printf("inspect: client %s falling behind, dropping event", conn.RemoteAddr())
		}
	}
}

// ServeHTTP upgrades the request to a websocket connection and streams
// Events to it until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("inspect: upgrade failed: %v", err)
		return
	}

	ch := make(chan Event, h.bufferLen)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	go h.drainPings(conn)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// drainPings discards inbound frames (the protocol is publish-only) and
// exits once the connection errors or closes, unblocking ServeHTTP's
// deferred cleanup.
func (h *Hub) drainPings(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			if ch, ok := h.clients[conn]; ok {
				close(ch)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Count returns the number of currently-connected inspectors.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
