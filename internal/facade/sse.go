// SPDX-License-Identifier: MIT
package facade

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"ultrasonic/internal/broadcast"
)

// handleSSEStream implements spec.md §6's primary transport: one
// text/event-stream connection per device, one "data:" event per WireFrame
// emitted from the broadcaster, flushed immediately rather than buffered.
func (s *Server) handleSSEStream(c echo.Context) error {
	id := c.Param("id")
	sub, err := s.mgr.Subscribe(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	defer s.mgr.Unsubscribe(id, sub.ID())
	return s.streamSSE(c, sub)
}

// handleDefaultSSEStream is the legacy single-stream surface's SSE
// transport: it subscribes to the implied device (a started pipeline, or
// the registry's first known device started on demand) instead of one named
// by path parameter.
func (s *Server) handleDefaultSSEStream(c echo.Context) error {
	id, sub, err := s.mgr.SubscribeDefault()
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	defer s.mgr.Unsubscribe(id, sub.ID())
	return s.streamSSE(c, sub)
}

func (s *Server) streamSSE(c echo.Context, sub *broadcast.Subscription) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming unsupported")
	}

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case wf, open := <-sub.Frames():
			if !open {
				return nil
			}
			payload, err := json.Marshal(wf)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", payload); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
