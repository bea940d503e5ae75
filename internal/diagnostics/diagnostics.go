// Package diagnostics snapshots host health for the listener status
// operation.
package diagnostics

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Snapshot is a point-in-time view of the engine process host.
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
}

// Collector gathers host snapshots.
type Collector struct {
	started time.Time
	logger  zerolog.Logger
}

// NewCollector creates a collector anchored at process start.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		started: time.Now(),
		logger:  logger.With().Str("component", "diagnostics").Logger(),
	}
}

// Collect returns the current host snapshot. Probe failures degrade to
// zero values rather than failing the status operation.
func (c *Collector) Collect() Snapshot {
	snapshot := Snapshot{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
	}

	cpuPercentages, err := cpu.Percent(0, false)
	if err != nil || len(cpuPercentages) == 0 {
		c.logger.Warn().Err(err).Msg("Failed to get CPU usage")
	} else {
		snapshot.CPUPercent = cpuPercentages[0]
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to get memory usage")
	} else {
		snapshot.MemoryPercent = memInfo.UsedPercent
	}

	return snapshot
}
