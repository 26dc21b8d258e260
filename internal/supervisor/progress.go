package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
)

const progressBarCells = 20

// ProgressEvent is published on the progress broadcast for every download
// progress callback (spec §4.6.5), regardless of whether this call also
// produced a log line.
type ProgressEvent struct {
	InstanceID string
	Current    int64
	Total      int64
	Message    string
}

// downloadProgressThrottle mirrors the Supervisor's per-handle throttle
// state for handleDownloadProgress. lastPercent is a real atomic integer,
// not a mutex-guarded value, per spec §5's concurrency-hazard note: the
// fast path (every chunk of every download) must stay lock-free.
type downloadProgressThrottle struct {
	lastPercent int64
	lastMB      int64
}

// handleDownloadProgress logs a throttled progress indicator and always
// emits a ProgressEvent. When total is known, it throttles on 5% steps of a
// twenty-cell ASCII bar; when total is unknown (total == 0) it throttles on
// 5-MB steps but logs the accumulated total in whole megabytes — the
// mismatched throttle/log units are preserved exactly as specified rather
// than "fixed", since later consumers may depend on the 5 MB cadence.
func (h *ServerHandle) handleDownloadProgress(cur, total int64, msg string) {
	if total > 0 {
		pct := cur * 100 / total
		last := atomic.LoadInt64(&h.progressThrottle.lastPercent)
		if pct >= 100 || pct-last >= 5 {
			if atomic.CompareAndSwapInt64(&h.progressThrottle.lastPercent, last, pct) {
				h.logger.LogChildProcess(context.Background(), h.config.InstanceID, "download_progress", map[string]interface{}{
					"bar":     renderProgressBar(pct),
					"percent": pct,
					"message": msg,
				})
			}
		}
	} else {
		const fiveMB = 5 * 1024 * 1024
		curMB := cur / fiveMB
		last := atomic.LoadInt64(&h.progressThrottle.lastMB)
		if curMB > last {
			if atomic.CompareAndSwapInt64(&h.progressThrottle.lastMB, last, curMB) {
				h.logger.LogChildProcess(context.Background(), h.config.InstanceID, "download_progress", map[string]interface{}{
					"megabytes": cur / (1024 * 1024),
					"message":   msg,
				})
			}
		}
	}

	h.progressBus.Publish(ProgressEvent{
		InstanceID: h.config.InstanceID,
		Current:    cur,
		Total:      total,
		Message:    msg,
	})
}

func renderProgressBar(pct int64) string {
	filled := int(pct) * progressBarCells / 100
	if filled > progressBarCells {
		filled = progressBarCells
	}
	bar := make([]byte, progressBarCells)
	for i := range bar {
		if i < filled {
			bar[i] = '#'
		} else {
			bar[i] = '-'
		}
	}
	return fmt.Sprintf("[%s] %d%%", bar, pct)
}
