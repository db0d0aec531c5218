package logs

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Sink receives observable per-session events. Sessions get a Sink injected
// rather than sharing a global connection list, so fakes can capture events
// in tests.
type Sink interface {
	Event(level, message string)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Event(string, string) {}

type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Broadcaster fans events out to attached WebSocket clients (the operator UI)
// and mirrors them to the process log. Safe for concurrent use.
type Broadcaster struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[*websocket.Conn]struct{})}
}

// Attach registers a client connection until it fails or is detached.
func (b *Broadcaster) Attach(conn *websocket.Conn) {
	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()
}

// Detach removes a client connection.
func (b *Broadcaster) Detach(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}

// Event implements Sink. Connections that fail to write are dropped.
func (b *Broadcaster) Event(level, message string) {
	log.Printf("[%s] %s", level, message)

	entry, err := json.Marshal(logEntry{
		Timestamp: time.Now().Format("15:04:05"),
		Level:     level,
		Message:   message,
	})
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		if err := conn.WriteMessage(websocket.TextMessage, entry); err != nil {
			delete(b.conns, conn)
			_ = conn.Close()
		}
	}
}
