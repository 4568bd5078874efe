// Package monitor streams machine snapshots to websocket clients, so
// that a running scheduler can be watched from a browser.
package monitor

import (
	"encoding/json"
	"errors"
	"github.com/gorilla/websocket"
	"github.com/thelolagemann/devsched/internal/machine"
	"github.com/thelolagemann/devsched/pkg/log"
	"net/http"
	"sync"
	"time"
)

// ErrStopped is returned when publishing to a hub that has been stopped.
var ErrStopped = errors.New("monitor: hub stopped")

// message types
const (
	TypeSnapshot = "snapshot"
	TypeClients  = "clients"
)

// Message is the envelope of every message sent to a client.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID         uint8  `json:"id"`
	RemoteAddr string `json:"remoteAddr"`
	Latency    uint16 `json:"latency"` // ms
}

// Hub fans snapshots out to its clients. The machine never blocks on a
// hub: when a client falls behind it is dropped.
type Hub struct {
	clients map[*Client]bool

	broadcast            chan []byte
	register, unregister chan *Client
	done                 chan struct{}
	stopOnce             sync.Once

	infoInterval time.Duration
	log          log.Logger

	mu        sync.Mutex
	currentID uint8
	latest    []byte
	count     int
}

// HubOpt configures a Hub.
type HubOpt func(h *Hub)

// WithLogger sets the logger of the hub.
func WithLogger(l log.Logger) HubOpt {
	return func(h *Hub) {
		h.log = l
	}
}

// WithInfoInterval sets how often client information is broadcast.
// An interval of 0 disables it.
func WithInfoInterval(d time.Duration) HubOpt {
	return func(h *Hub) {
		h.infoInterval = d
	}
}

// NewHub returns a hub ready to Run.
func NewHub(opts ...HubOpt) *Hub {
	h := &Hub{
		clients:      make(map[*Client]bool),
		broadcast:    make(chan []byte, 16),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		infoInterval: time.Second,
		log:          log.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish encodes the snapshot and queues it for every client. It never
// blocks; if the hub is congested the snapshot is dropped, though it is
// still kept as the latest one handed to new clients.
func (h *Hub) Publish(snap machine.Snapshot) error {
	msg, err := encode(TypeSnapshot, snap)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latest = msg
	h.mu.Unlock()

	select {
	case <-h.done:
		return ErrStopped
	default:
	}

	select {
	case h.broadcast <- msg:
	default:
		h.log.Debugf("monitor: dropped snapshot of frame %d", snap.Frame)
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Run handles registration and broadcasting until Stop is called.
func (h *Hub) Run() {
	var tick <-chan time.Time
	if h.infoInterval > 0 {
		t := time.NewTicker(h.infoInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-h.done:
			for c := range h.clients {
				close(c.Send)
				delete(h.clients, c)
			}
			h.setCount(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.log.Infof("monitor: client %d connected from %s", c.ID, c.RemoteAddr)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				close(c.Send)
				delete(h.clients, c)
				h.setCount(len(h.clients))
				h.log.Infof("monitor: client %d disconnected", c.ID)
			}
		case msg := <-h.broadcast:
			h.send(msg)
		case <-tick:
			info := make([]ClientInfo, 0, len(h.clients))
			for c := range h.clients {
				info = append(info, c.info())
			}
			msg, err := encode(TypeClients, info)
			if err != nil {
				h.log.Errorf("monitor: %v", err)
				continue
			}
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg []byte) {
	for c := range h.clients {
		select {
		case c.Send <- msg:
		default:
			close(c.Send)
			delete(h.clients, c)
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Stop closes every client and ends Run. It is safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeHTTP upgrades the request to a websocket connection and registers
// the client. The latest snapshot, if any, is sent straight away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("monitor: upgrading %s: %v", r.RemoteAddr, err)
		return
	}

	c := h.newClient(conn, r)
	h.mu.Lock()
	latest := h.latest
	h.mu.Unlock()
	if latest != nil {
		c.Send <- latest
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.ReadPump()
	go c.WritePump()
}

// newClient creates a new client for the hub.
func (h *Hub) newClient(conn *websocket.Conn, r *http.Request) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.currentID++
	return &Client{
		hub:         h,
		conn:        conn,
		Send:        make(chan []byte, 256),
		ID:          h.currentID,
		RemoteAddr:  r.RemoteAddr,
		connectedAt: time.Now(),
	}
}

// ListenAndServe serves the hub on addr until the server fails.
func (h *Hub) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/", h)
	return http.ListenAndServe(addr, mux)
}

func encode(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: kind, Data: data})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 4,
	WriteBufferSize: 1024 * 16,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
