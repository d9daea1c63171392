package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	outboundBuffer = 64
)

// outboundFrame is one queued server-to-client websocket message.
type outboundFrame struct {
	binary  bool
	payload []byte
}

// wsConn serializes all writes to one websocket connection. Events and
// audio funnel through a single queue, so the client receives them in
// exactly the order the session emitted them.
type wsConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	out       chan outboundFrame
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{
		conn:   conn,
		logger: logger,
		out:    make(chan outboundFrame, outboundBuffer),
		done:   make(chan struct{}),
	}
}

// SendEvent queues one JSON event. A marshal failure is a programming
// error, not a client problem, so it is logged and the event dropped.
func (c *wsConn) SendEvent(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("event marshal failed", "error", err)
		return
	}
	c.enqueue(outboundFrame{payload: payload})
}

// SendBinary queues one audio clip as a single binary frame.
func (c *wsConn) SendBinary(data []byte) {
	c.enqueue(outboundFrame{binary: true, payload: data})
}

// enqueue blocks while the queue is full; a dead connection releases
// the caller through done.
func (c *wsConn) enqueue(frame outboundFrame) {
	select {
	case c.out <- frame:
	case <-c.done:
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump is the only goroutine that writes to the socket. It drains
// the queue and keeps the connection alive with pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.out:
			messageType := websocket.TextMessage
			if frame.binary {
				messageType = websocket.BinaryMessage
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(messageType, frame.payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
