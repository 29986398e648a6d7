package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"sync"
	"time"

	"chat-relay/runtime"

	"github.com/shirou/gopsutil/process"
)

// HealthStats is the latest self-process snapshot, served by the health
// endpoint and logged periodically.
type HealthStats struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float32   `json:"memoryPercent"`
	Goroutines    int       `json:"goroutines"`
	Connections   int       `json:"connections"`
	CollectedAt   time.Time `json:"collectedAt"`
}

// HealthMonitoringWorker samples the relay's own process on a ticker.
type HealthMonitoringWorker struct {
	mu             sync.RWMutex
	log            *slog.Logger
	registry       *runtime.ConnectionRegistry
	metricInterval time.Duration
	latest         HealthStats
}

func NewHealthMonitoringWorker(log *slog.Logger, registry *runtime.ConnectionRegistry,
	metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, registry: registry, metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			stats := HealthStats{
				CPUPercent:    cpu,
				MemoryPercent: ram,
				Goroutines:    goruntime.NumGoroutine(),
				Connections:   w.registry.Count(),
				CollectedAt:   time.Now().UTC(),
			}
			w.mu.Lock()
			w.latest = stats
			w.mu.Unlock()
			w.log.Debug("Health snapshot",
				"cpu", cpu, "ram", ram,
				"goroutines", stats.Goroutines,
				"connections", stats.Connections)
		}
	}
}

func (w *HealthMonitoringWorker) Snapshot() HealthStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}
