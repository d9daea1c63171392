package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/avendahl/podium/internal/protocol"
	"github.com/avendahl/podium/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, opts Options) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			opts.Logger.Error("ws upgrade failed", "error", err)
			return
		}

		serveSession(conn, opts)
	})
}

// serveSession runs one client connection to completion: a write pump,
// the session loop, and this goroutine as the read pump.
func serveSession(conn *websocket.Conn, opts Options) {
	cfg := opts.Session
	cfg.SessionID = uuid.NewString()
	logger := opts.Logger.With("session_id", cfg.SessionID)

	opts.Instruments.SessionOpened()
	defer opts.Instruments.SessionClosed()

	ws := newWSConn(conn, logger)
	go ws.writePump()
	defer ws.close()

	sess := session.New(opts.BaseContext, cfg, opts.Collaborators, ws)
	defer sess.Close()
	go sess.Run()

	readLoop(conn, ws, sess, opts)
	logger.Debug("connection closed")
}

// readLoop pulls client frames off the socket until it dies. Control
// messages go to the session as typed values; media frames are rate
// limited here so a flooding client cannot starve the session loop.
func readLoop(conn *websocket.Conn, ws *wsConn, sess *session.Session, opts Options) {
	limit, burst := rate.Inf, 0
	if opts.MediaFramesPerSecond > 0 {
		limit = rate.Limit(opts.MediaFramesPerSecond)
		burst = opts.MediaFramesPerSecond
	}
	limiter := rate.NewLimiter(limit, burst)

	if opts.MediaFrameMaxBytes > 0 {
		conn.SetReadLimit(int64(opts.MediaFrameMaxBytes) + 1)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.TextMessage:
			msg, err := protocol.DecodeClientMessage(data)
			if err != nil {
				ws.SendEvent(protocol.ErrorEvent{
					Event:       protocol.NewEvent("error", time.Time{}),
					Message:     err.Error(),
					Recoverable: true,
				})
				continue
			}
			sess.Enqueue(msg)

		case websocket.BinaryMessage:
			if !limiter.Allow() {
				opts.Instruments.FrameDropped("rate_limit")
				continue
			}
			frame, err := protocol.DecodeMediaFrame(data)
			if err != nil {
				opts.Instruments.FrameDropped("malformed")
				continue
			}
			sess.Enqueue(frame)
		}
	}
}
