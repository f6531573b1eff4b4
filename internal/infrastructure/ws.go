package infra

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// WSConn websocket connection safe for concurrent writers
type WSConn struct {
	*websocket.Conn
	mu sync.Mutex
}

// WriteJSON serialized JSON write with deadline
func (wc *WSConn) WriteJSON(v interface{}) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	_ = wc.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.Conn.WriteJSON(v)
}

// WriteMessage serialized write with deadline
func (wc *WSConn) WriteMessage(messageType int, data []byte) error {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	_ = wc.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wc.Conn.WriteMessage(messageType, data)
}

// Websocket upgrader with heartbeat probe
type Websocket struct {
	upgrader websocket.Upgrader
}

// NewWebsocket create a Websocket accepting any origin
func NewWebsocket() *Websocket {
	return &Websocket{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 3 * time.Second,
		},
	}
}

// WithHeartbeat wrap handler function with heartbeat probe.
//
// handler runs on the request goroutine and owns the read side, the connection is closed
// once it returns. A peer that stops answering pings fails the pending read.
func (ws *Websocket) WithHeartbeat(handler func(c echo.Context, conn *WSConn) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, err := ws.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// upgrader already replied
			return nil
		}
		conn := &WSConn{Conn: raw}
		done := make(chan struct{})
		defer func() {
			close(done)
			conn.Close()
		}()

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go heartbeatRoutine(conn, done)

		return handler(c, conn)
	}
}

func heartbeatRoutine(conn *WSConn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
