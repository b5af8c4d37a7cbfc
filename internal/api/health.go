package api

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/facilityops/watchpost/internal/logger"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const hostStatsTimeout = 2 * time.Second

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string     `json:"status"`
	Uptime string     `json:"uptime"`
	Host   *HostStats `json:"host,omitempty"`
}

// HostStats is a snapshot of the machine running the service. Fields the
// platform cannot report stay zero.
type HostStats struct {
	OS             string  `json:"os"`
	Arch           string  `json:"arch"`
	Goroutines     int     `json:"goroutines"`
	UptimeSeconds  uint64  `json:"uptime_seconds"`
	MemTotal       uint64  `json:"mem_total"`
	MemUsedPercent float64 `json:"mem_used_percent"`
	Load1          float64 `json:"load1"`
}

func collectHostStats(ctx context.Context, log logger.Logger) *HostStats {
	ctx, cancel := context.WithTimeout(ctx, hostStatsTimeout)
	defer cancel()

	stats := &HostStats{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		stats.UptimeSeconds = uptime
	} else {
		log.Debug("host uptime unavailable", logger.Error(err))
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemTotal = vm.Total
		stats.MemUsedPercent = vm.UsedPercent
	} else {
		log.Debug("memory stats unavailable", logger.Error(err))
	}
	// load averages are not available on windows
	if avg, err := load.AvgWithContext(ctx); err == nil {
		stats.Load1 = avg.Load1
	}
	return stats
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
		Host:   collectHostStats(c.Request().Context(), s.log),
	})
}
