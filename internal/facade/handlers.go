// SPDX-License-Identifier: MIT
package facade

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ultrasonic/internal/config"
	"ultrasonic/internal/pipeline"
	"ultrasonic/internal/registry"
)

type deviceResponse struct {
	StableID          string  `json:"stable_id"`
	SystemIndex       int     `json:"system_index"`
	Name              string  `json:"name"`
	HostApiName       string  `json:"host_api_name"`
	MaxInputChannels  int     `json:"max_input_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	IsInput           bool    `json:"is_input"`
	FirstSeen         string  `json:"first_seen"`
	LastSeen          string  `json:"last_seen"`
}

func toDeviceResponse(d registry.DeviceDescriptor) deviceResponse {
	return deviceResponse{
		StableID:          d.StableID,
		SystemIndex:       d.SystemIndex,
		Name:              d.Name,
		HostApiName:       d.HostApiName,
		MaxInputChannels:  d.MaxInputChannels,
		DefaultSampleRate: d.DefaultSampleRate,
		IsInput:           d.IsInput,
		FirstSeen:         d.FirstSeen.Format("2006-01-02T15:04:05Z07:00"),
		LastSeen:          d.LastSeen.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (s *Server) handleListDevices(c echo.Context) error {
	devices := s.mgr.ListDevices()
	out := make([]deviceResponse, len(devices))
	for i, d := range devices {
		out[i] = toDeviceResponse(d)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRefreshDevices(c echo.Context) error {
	devices, err := s.mgr.RefreshDevices()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]deviceResponse, len(devices))
	for i, d := range devices {
		out[i] = toDeviceResponse(d)
	}
	return c.JSON(http.StatusOK, out)
}

func statusResponse(st pipeline.Status) map[string]any {
	return map[string]any{
		"stable_id":        st.StableID,
		"state":            st.State.String(),
		"last_error":       st.LastError,
		"audio_config":     st.AudioConfig,
		"stream_config":    st.StreamConfig,
		"subscriber_count": st.SubscriberCount,
		"observed_fps":     st.ObservedFps,
		"total_frames":     st.TotalFrames,
		"total_dropped":    st.TotalDropped,
		"overruns":         st.Overruns,
		"restart_count":    st.RestartCount,
		"uptime_ms":        st.UptimeMs,
	}
}

func (s *Server) handleStartDevice(c echo.Context) error {
	id := c.Param("id")
	var body struct {
		Audio  *config.AudioConfig  `json:"audio,omitempty"`
		Stream *config.StreamConfig `json:"stream,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if body.Audio != nil || body.Stream != nil {
		def := config.Default()
		audioCfg := def.Audio
		streamCfg := def.Stream
		if body.Audio != nil {
			audioCfg = *body.Audio
		}
		if body.Stream != nil {
			streamCfg = *body.Stream
		}
		if err := audioCfg.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := streamCfg.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if err := s.mgr.StartDevice(id, audioCfg, streamCfg); err != nil {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
	} else if err := s.mgr.StartDeviceDefault(id); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleStopDevice(c echo.Context) error {
	if err := s.mgr.StopDevice(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleRestartDevice(c echo.Context) error {
	id := c.Param("id")
	def := config.Default()
	if err := s.mgr.RestartDevice(id, def.Audio, def.Stream); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleDeviceStatus(c echo.Context) error {
	st, err := s.mgr.GetStatus(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, statusResponse(st))
}

func (s *Server) handleSystemStatus(c echo.Context) error {
	snap := s.mgr.SystemStatus()
	return c.JSON(http.StatusOK, map[string]any{
		"running_count": snap.RunningCount,
		"total_count":   snap.TotalCount,
		"cpu_pct":       snap.CpuPct,
		"uptime_ms":     snap.UptimeMs,
	})
}

func (s *Server) handleRemoveDevice(c echo.Context) error {
	id := c.Param("id")
	force := c.QueryParam("force") == "true"
	if err := s.mgr.RemoveDevice(id, force); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func batchErrorResponse(errs map[string]error) map[string]string {
	out := make(map[string]string, len(errs))
	for id, err := range errs {
		out[id] = err.Error()
	}
	return out
}

func (s *Server) handleBatchStartDevices(c echo.Context) error {
	var body batchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	errs := s.mgr.BatchStartDevices(body.IDs)
	return c.JSON(http.StatusOK, map[string]any{"errors": batchErrorResponse(errs)})
}

func (s *Server) handleBatchStopDevices(c echo.Context) error {
	var body batchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	errs := s.mgr.BatchStopDevices(body.IDs)
	return c.JSON(http.StatusOK, map[string]any{"errors": batchErrorResponse(errs)})
}

func (s *Server) handleStopAll(c echo.Context) error {
	s.mgr.StopAll()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleCleanup(c echo.Context) error {
	removed := s.mgr.CleanupStaleDevices()
	out := make([]deviceResponse, len(removed))
	for i, d := range removed {
		out[i] = toDeviceResponse(d)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleStartDefault(c echo.Context) error {
	if err := s.mgr.StartDefault(); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleStopDefault(c echo.Context) error {
	if err := s.mgr.StopDefault(); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleUpdateStreamConfig(c echo.Context) error {
	id := c.Param("id")
	var cfg config.StreamConfig
	if err := c.Bind(&cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.mgr.UpdateStreamConfig(id, cfg); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleUpdateAudioConfig(c echo.Context) error {
	id := c.Param("id")
	var body struct {
		WindowKind      string  `json:"window_kind"`
		OverlapFraction float64 `json:"overlap_fraction"`
		ThresholdDb     float64 `json:"threshold_db"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.mgr.UpdateAudioHotParams(id, body.WindowKind, body.OverlapFraction, body.ThresholdDb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
