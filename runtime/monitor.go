package runtime

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitorWorker logs process health (CPU, RSS, goroutines, GC count)
// on a fixed interval.
type MonitorWorker struct {
	interval time.Duration
	log      *slog.Logger
}

func NewMonitorWorker(interval time.Duration, log *slog.Logger) *MonitorWorker {
	return &MonitorWorker{interval: interval, log: log}
}

func (w *MonitorWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping monitor")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Debug("Error while finding process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Debug("Error while finding process ram usage", "err", err)
				continue
			}

			var stats goruntime.MemStats
			goruntime.ReadMemStats(&stats)

			w.log.Info("process health",
				"cpu_percent", cpu,
				"ram_percent", ram,
				"alloc_mb", stats.Alloc/1024/1024,
				"num_gc", stats.NumGC,
				"goroutines", goruntime.NumGoroutine())
		}
	}
}
