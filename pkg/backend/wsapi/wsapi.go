// Package wsapi is a thin JSON-over-websocket client for the backend's
// provisioning and active sockets, grounded on the mcccl client's
// gorilla/websocket usage (SetReadDeadline/SetPongHandler/NextWriter),
// pared down to a plain send/receive pair instead of an RFID state
// machine.
package wsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Conn is one websocket connection to the backend, with a receive
// goroutine pushing decoded frames onto Messages().
type Conn struct {
	conn     *websocket.Conn
	messages chan []byte
}

// Connect dials url and starts the background reader/pinger.
func Connect(ctx context.Context, url string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect websocket: %w", err)
	}

	c := &Conn{
		conn:     conn,
		messages: make(chan []byte, 16),
	}
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *Conn) readLoop() {
	defer close(c.messages)
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.messages <- payload
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

// Send JSON-marshals v and writes it as a single text frame.
func (c *Conn) Send(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return fmt.Errorf("failed to open writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		w.Close()
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return w.Close()
}

// Messages returns the channel of incoming raw text frames. It is
// closed when the connection drops, normally or not.
func (c *Conn) Messages() <-chan []byte {
	return c.messages
}

// Close sends a close frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	return c.conn.Close()
}
