package bridge

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/warden-dev/warden/internal/domain/plugin"
)

// Health is the body of /healthz.
type Health struct {
	Status     string        `json:"status"`
	Uptime     string        `json:"uptime"`
	Clients    int           `json:"clients"`
	Plugins    PluginCounts  `json:"plugins"`
	Process    *ProcessStats `json:"process,omitempty"`
	Goroutines int           `json:"goroutines"`
}

// PluginCounts groups the roster by status.
type PluginCounts struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
	Failed   int `json:"failed"`
}

// ProcessStats are resource figures for this process.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
}

// Health reports the bridge and host status.
func (s *Server) Health() Health {
	h := Health{
		Status:     "ok",
		Uptime:     time.Since(s.started).Round(time.Second).String(),
		Clients:    s.ClientCount(),
		Goroutines: runtime.NumGoroutine(),
	}

	for _, st := range s.host.GetAll() {
		h.Plugins.Total++
		switch st.Status() {
		case plugin.StatusEnabled:
			h.Plugins.Enabled++
		case plugin.StatusFailed:
			h.Plugins.Failed++
		default:
			h.Plugins.Disabled++
		}
	}

	stats, err := processStats()
	if err != nil {
		s.logger.Debug("process stats unavailable", "error", err)
	} else {
		h.Process = stats
	}
	return h
}

func processStats() (*ProcessStats, error) {
	pid := int32(os.Getpid()) //nolint:gosec // G115: pids fit in int32
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return nil, err
	}
	return &ProcessStats{PID: pid, RSSBytes: mem.RSS, CPUPercent: cpu}, nil
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Health()); err != nil {
		s.logger.Debug("failed to write health", "error", err)
	}
}
