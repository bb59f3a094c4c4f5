// Package diag periodically samples host CPU and memory usage and logs it
// at Debug level, supplementing the original's never-implemented "load"
// reporting (referenced but never filled in by p1stream.h's comments).
// Grounded on LanternOps-breeze's collectors.MetricsCollector, trimmed to
// the two gauges a capture host actually cares about: whether composition
// and encoding have headroom.
package diag

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Sample is one reading.
type Sample struct {
	CPUPercent float64
	RAMPercent float64
	RAMUsedMB  uint64
}

// Sampler periodically collects a Sample and logs it. It is driven by a
// plain ticker, not a cron expression, since host diagnostics have no
// calendar semantics.
type Sampler struct {
	logger   *slog.Logger
	interval time.Duration
}

// New constructs a Sampler. interval defaults to 10 seconds if <= 0.
func New(logger *slog.Logger, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{logger: logger, interval: interval}
}

// Serve samples on every tick until ctx is cancelled, suture.Service-shaped so
// it can be added directly to the Context's supervision tree.
func (s *Sampler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sample, err := collect()
			if err != nil {
				s.logger.Debug("diagnostics sample failed", "error", err)
				continue
			}
			s.logger.Debug("diagnostics sample",
				"cpu_percent", sample.CPUPercent,
				"ram_percent", sample.RAMPercent,
				"ram_used_mb", sample.RAMUsedMB,
			)
		}
	}
}

func collect() (Sample, error) {
	var sample Sample

	percents, err := cpu.Percent(0, false)
	if err != nil {
		return sample, err
	}
	if len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	vmem, err := mem.VirtualMemory()
	if err != nil {
		return sample, err
	}
	sample.RAMPercent = vmem.UsedPercent
	sample.RAMUsedMB = vmem.Used / 1024 / 1024

	return sample, nil
}
