// SPDX-License-Identifier: MIT
package facade

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	applog "ultrasonic/internal/log"
)

// upgrader is shared across connections; CheckOrigin is permissive because
// this façade has no browser-session cookies to protect — every request is
// authenticated the same way the REST surface is, i.e. not at all: neither
// surface checks credentials.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocketStream is the supplemental alt transport: identical
// WireFrame JSON payloads to the SSE stream, carried over a persistent
// WebSocket connection for consumers that prefer duplex framing over
// text/event-stream. Grounded on the teacher's
// internal/transport/websocket.go client registration/broadcast loop,
// narrowed here to one connection per subscription rather than a shared
// client set, since each WebSocket client already gets its own
// broadcast.Subscription from the manager.
func (s *Server) handleWebSocketStream(c echo.Context) error {
	id := c.Param("id")
	sub, err := s.mgr.Subscribe(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	defer s.mgr.Unsubscribe(id, sub.ID())

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "websocket upgrade failed")
	}
	defer conn.Close()

	// Drain and discard inbound messages so the connection's read side
	// stays serviced; a client that closes the socket surfaces as a read
	// error here, which is this handler's only disconnect signal.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case wf, open := <-sub.Frames():
			if !open {
				return nil
			}
			if err := conn.WriteJSON(wf); err != nil {
				applog.Debugf("facade: websocket write to %s: %v", id, err)
				return nil
			}
		}
	}
}
