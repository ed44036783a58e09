package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// OnHealth registers f to be called with every health-probe tick once the
// child is running. f must not block.
func (h *Handle) OnHealth(f func(HealthReport)) {
	h.healthSubMu.Lock()
	defer h.healthSubMu.Unlock()
	h.healthSubs = append(h.healthSubs, f)
}

func (h *Handle) healthLoop(cfg SpawnConfig) {
	defer close(h.healthStopped)

	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	proc, procErr := process.NewProcess(int32(h.pid))

	for {
		select {
		case <-h.stopHealth:
			return
		case <-h.done:
			return
		case <-ticker.C:
			report := h.sample(proc, procErr, cfg)
			h.emitHealth(report)
		}
	}
}

func (h *Handle) sample(proc *process.Process, procErr error, cfg SpawnConfig) HealthReport {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	report := HealthReport{Status: h.Info().Status}

	if procErr == nil && proc != nil {
		if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
			report.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
			report.MemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	report.HealthyHTTP = h.waitHealthy(ctx, cfg) == nil

	if cfg.MaxCPUPercent > 0 && report.CPUPercent > cfg.MaxCPUPercent {
		report.Issues = append(report.Issues, fmt.Sprintf("cpu %.1f%% exceeds threshold %.1f%%", report.CPUPercent, cfg.MaxCPUPercent))
	}
	if cfg.MaxMemoryMB > 0 && report.MemoryMB > cfg.MaxMemoryMB {
		report.Issues = append(report.Issues, fmt.Sprintf("memory %.1fMB exceeds threshold %.1fMB", report.MemoryMB, cfg.MaxMemoryMB))
	}
	if !report.HealthyHTTP {
		report.Issues = append(report.Issues, "health endpoint unreachable or unhealthy")
	}

	return report
}

func (h *Handle) emitHealth(report HealthReport) {
	h.healthSubMu.Lock()
	subs := make([]func(HealthReport), len(h.healthSubs))
	copy(subs, h.healthSubs)
	h.healthSubMu.Unlock()
	for _, f := range subs {
		f(report)
	}
}
