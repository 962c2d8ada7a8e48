package web

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds how long a frame write to one subscriber may take.
const writeWait = 10 * time.Second

// sendBuffer is the per-subscriber outbound queue; slow subscribers drop
// frames rather than stall the broadcast.
const sendBuffer = 16

// hub fans broadcast frames out to every connected subscriber.
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

// add registers conn and returns its outbound queue.
func (h *hub) add(conn *websocket.Conn) chan []byte {
	send := make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[conn] = send
	h.mu.Unlock()
	return send
}

// remove unregisters conn and closes its queue.
func (h *hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if send, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(send)
	}
	h.mu.Unlock()
}

// sendTo queues frame for one subscriber. A subscriber that was already
// removed (or whose queue is full) drops the frame; the queue is only
// touched under the mutex so it cannot race a concurrent close.
func (h *hub) sendTo(conn *websocket.Conn, frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	send, ok := h.clients[conn]
	if !ok {
		return false
	}
	select {
	case send <- frame:
		return true
	default:
		return false
	}
}

// broadcast queues frame for every subscriber, dropping it for those
// whose queue is full.
func (h *hub) broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, send := range h.clients {
		select {
		case send <- frame:
		default:
		}
	}
}

// closeAll disconnects every subscriber.
func (h *hub) closeAll() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn, send := range h.clients {
		conns = append(conns, conn)
		close(send)
	}
	h.clients = make(map[*websocket.Conn]chan []byte)
	h.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// count reports the number of connected subscribers.
func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// writePump drains send onto conn until the queue closes or a write
// fails.
func writePump(conn *websocket.Conn, send chan []byte) {
	for frame := range send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}
