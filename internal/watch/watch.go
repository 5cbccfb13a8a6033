// Package watch broadcasts pipeline progress over WebSocket so a
// --watch client can render a live view of which stage each function
// is in. Adapted from the teacher's WebSocket server: narrowed from a
// general accept/send/receive connection registry down to one
// fire-and-forget broadcaster that implements pipeline.Reporter.
package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fuelprobe/internal/pipeline"
)

// Event is one progress notification, serialized as JSON to every
// connected client.
type Event struct {
	Name      string `json:"name"`
	Done      bool   `json:"done"`
	ElapsedMS int64  `json:"elapsed_ms,omitempty"`
	Time      string `json:"time"`
}

// Broadcaster accepts WebSocket clients on an HTTP server and fans out
// every reported Event to all of them. It satisfies pipeline.Reporter.
type Broadcaster struct {
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

type client struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewBroadcaster constructs a Broadcaster listening at addr. Connect it
// to a pipeline run with Serve, then pass it as the pipeline.Reporter.
func NewBroadcaster(addr string) *Broadcaster {
	b := &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/watch", b.handleConnect)
	b.server = &http.Server{Addr: addr, Handler: mux}
	return b
}

// Serve starts accepting connections; it returns once the listener
// fails or Close is called, mirroring net/http.Server.ListenAndServe.
func (b *Broadcaster) Serve() error {
	return b.server.ListenAndServe()
}

// Close stops the HTTP server and drops every connected client.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	for id, c := range b.clients {
		c.mu.Lock()
		c.closed = true
		c.conn.Close()
		c.mu.Unlock()
		delete(b.clients, id)
	}
	b.mu.Unlock()

	return b.server.Close()
}

func (b *Broadcaster) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.mu.Lock()
	b.nextID++
	id := fmt.Sprintf("watcher_%d", b.nextID)
	b.clients[id] = &client{conn: conn}
	b.mu.Unlock()

	// Clients only ever receive; drain and discard anything they send
	// so the connection's read side doesn't stall the write side.
	go func() {
		defer b.drop(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()
	if ok {
		c.mu.Lock()
		c.closed = true
		c.conn.Close()
		c.mu.Unlock()
	}
}

// Stage implements pipeline.Reporter, broadcasting that name has
// started to every connected client as a JSON Event.
func (b *Broadcaster) Stage(name string) {
	b.broadcast(Event{Name: name, Time: time.Now().Format(time.RFC3339Nano)})
}

// Done implements pipeline.Reporter, broadcasting that name finished
// after elapsed.
func (b *Broadcaster) Done(name string, elapsed time.Duration) {
	b.broadcast(Event{Name: name, Done: true, ElapsedMS: elapsed.Milliseconds(), Time: time.Now().Format(time.RFC3339Nano)})
}

func (b *Broadcaster) broadcast(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	for _, c := range targets {
		c.mu.Lock()
		if !c.closed {
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.closed = true
			}
		}
		c.mu.Unlock()
	}
}

var _ pipeline.Reporter = (*Broadcaster)(nil)
