// SPDX-License-Identifier: MIT

// Package facade implements spec.md §6's external interface: an Echo-based
// HTTP server exposing the device-registry and pipeline-control surface as
// JSON REST endpoints, an SSE stream per device for the primary transport,
// and a supplemental WebSocket endpoint carrying the identical WireFrame
// payloads for consumers that prefer a persistent duplex connection. It is
// grounded on the teacher pack's rustyguts-bken server
// (server/internal/httpapi/server.go): same Echo-app-plus-middleware
// construction, same Run(ctx, addr) blocking-with-graceful-shutdown shape.
package facade

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	applog "ultrasonic/internal/log"
	"ultrasonic/internal/manager"
)

// Server is the control and streaming façade's Echo application.
type Server struct {
	echo *echo.Echo
	mgr  *manager.DeviceManager
}

// New constructs an Echo app with every route spec.md §6 names registered.
func New(mgr *manager.DeviceManager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, mgr: mgr}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			if req.URL.Path == "/health" {
				return nil
			}
			applog.Debugf("http %s %s -> %d (%s)", req.Method, req.URL.Path, c.Response().Status, time.Since(start))
			return nil
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	s.echo.GET("/api/devices", s.handleListDevices)
	s.echo.POST("/api/devices/refresh", s.handleRefreshDevices)

	s.echo.POST("/api/devices/:id/start", s.handleStartDevice)
	s.echo.POST("/api/devices/:id/stop", s.handleStopDevice)
	s.echo.POST("/api/devices/:id/restart", s.handleRestartDevice)
	s.echo.POST("/api/devices/:id/remove", s.handleRemoveDevice)
	s.echo.GET("/api/devices/:id/status", s.handleDeviceStatus)
	s.echo.PATCH("/api/devices/:id/stream-config", s.handleUpdateStreamConfig)
	s.echo.PATCH("/api/devices/:id/audio-config", s.handleUpdateAudioConfig)

	s.echo.POST("/api/devices/batch-start", s.handleBatchStartDevices)
	s.echo.POST("/api/devices/batch-stop", s.handleBatchStopDevices)

	s.echo.GET("/api/system/status", s.handleSystemStatus)
	s.echo.POST("/api/system/stop-all", s.handleStopAll)
	s.echo.POST("/api/system/cleanup", s.handleCleanup)

	// Legacy single-stream surface: a started pipeline, or the registry's
	// first known device (by stable ID) if none is started.
	s.echo.POST("/api/default/start", s.handleStartDefault)
	s.echo.POST("/api/default/stop", s.handleStopDefault)
	s.echo.GET("/api/default/stream", s.handleDefaultSSEStream)

	s.echo.GET("/api/stream/:id", s.handleSSEStream)
	s.echo.GET("/ws/:id", s.handleWebSocketStream)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Run starts the façade and blocks until ctx is cancelled or the server
// fails to start, then shuts down gracefully within a bounded grace
// period.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		applog.Infof("facade: shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutCtx); err != nil {
			applog.Warnf("facade: graceful shutdown: %v", err)
		}
		return nil
	}
}
