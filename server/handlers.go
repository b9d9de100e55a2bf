package server

// This file contains the health and usage endpoints:
// - Health checks with version and process stats (HandleHealth)
// - Aggregate usage and per-model breakdown (HandleUsageStats)
// - Daily usage time series for charting (HandleUsageTimeSeries)

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/promptpipe/promptpipe/version"
)

// HandleHealth serves the health check endpoint with version info,
// database reachability, and process memory usage
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	s.mu.RLock()
	clientCount := len(s.clients)
	s.mu.RUnlock()

	status := "ok"
	if err := s.db.Ping(); err != nil {
		status = "degraded"
		s.logger.Warnw("Health check database ping failed", "error", err)
	}

	health := map[string]interface{}{
		"status":         status,
		"version":        versionInfo.Version,
		"commit":         versionInfo.CommitHash,
		"build_time":     versionInfo.BuildTime,
		"go_version":     versionInfo.GoVersion,
		"clients":        clientCount,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}

	// RSS is best-effort; health stays ok without it
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			health["rss_bytes"] = memInfo.RSS
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// HandleUsageStats serves aggregate usage over a day window plus the
// per-model breakdown. Days defaults to 7, capped at one year.
func (s *Server) HandleUsageStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	days := clampDays(parseIntParam(r, "days", 7))
	since := time.Now().AddDate(0, 0, -days)

	stats, err := s.usage.GetUsageStats(since)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get usage stats", http.StatusInternalServerError)
		return
	}

	breakdown, err := s.usage.GetModelBreakdown(since)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to get model breakdown", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"stats":  stats,
		"models": breakdown,
	})
}

// HandleUsageTimeSeries serves per-day usage data for charting
func (s *Server) HandleUsageTimeSeries(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	days := clampDays(parseIntParam(r, "days", 7))

	data, err := s.usage.GetTimeSeriesData(days)
	if err != nil {
		writeWrappedError(w, s.logger, err, "failed to fetch time-series data", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// clampDays bounds a day-window parameter to [1, 365]
func clampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > 365 {
		return 365 // Cap at one year
	}
	return days
}
