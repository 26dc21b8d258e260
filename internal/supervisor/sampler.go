package supervisor

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const sampleInterval = 1 * time.Second

// runSampler polls the child's OS process once a second, updating the
// handle's resource-usage snapshot (spec §4.6.3). It returns when the
// process disappears or ctx is cancelled.
func (h *ServerHandle) runSampler(ctx context.Context, pid int32, startedAt time.Time) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return
	}

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			running, err := proc.IsRunningWithContext(ctx)
			if err != nil || !running {
				return
			}
			h.updateUsage(ctx, proc, startedAt)
		}
	}
}

func (h *ServerHandle) updateUsage(ctx context.Context, proc *process.Process, startedAt time.Time) {
	cpuPct, _ := proc.CPUPercentWithContext(ctx)

	var memBytes uint64
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		memBytes = mem.RSS
	}

	var readBytes, writeBytes uint64
	if io, err := proc.IOCountersWithContext(ctx); err == nil && io != nil {
		readBytes = io.ReadBytes
		writeBytes = io.WriteBytes
	}

	h.playersMu.RLock()
	count := len(h.players)
	h.playersMu.RUnlock()

	h.usageMu.Lock()
	h.usage.CPUPercent = cpuPct
	h.usage.MemoryBytes = memBytes
	h.usage.DiskReadBytes = readBytes
	h.usage.DiskWriteBytes = writeBytes
	h.usage.UptimeSeconds = time.Since(startedAt).Seconds()
	h.usage.PlayersOnline = count
	h.usageMu.Unlock()
}
