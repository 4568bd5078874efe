package monitor

import (
	"github.com/gorilla/websocket"
	"net"
	"sync"
	"time"
)

const writeWait = 5 * time.Second

// Client is a websocket connection registered to a Hub.
type Client struct {
	mu   sync.RWMutex
	hub  *Hub
	conn *websocket.Conn
	Send chan []byte

	ID          uint8
	RemoteAddr  string
	avgLatency  uint16
	connectedAt time.Time
}

func (c *Client) info() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{ID: c.ID, RemoteAddr: c.RemoteAddr, Latency: c.avgLatency}
}

// ReadPump discards everything the client sends and unregisters it once
// the connection is closed.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return // connection closed
		}
	}
}

// WritePump writes queued messages to the connection until the hub
// closes the Send channel.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.Send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}

		// update average latency
		if tcp, ok := c.conn.UnderlyingConn().(*net.TCPConn); ok {
			if rtt, err := roundTrip(tcp); err == nil {
				c.mu.Lock()
				c.avgLatency = (c.avgLatency*9 + uint16(rtt/time.Millisecond)) / 10
				c.mu.Unlock()
			}
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
