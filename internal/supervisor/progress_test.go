package supervisor

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/serverforge/serverforge/infrastructure/logging"
)

func newTestHandle(t *testing.T) *ServerHandle {
	t.Helper()
	cfg := Config{InstanceID: uuid.New().String(), StopCommand: "stop", StopTimeoutSec: 60}
	return newServerHandle(uuid.MustParse(cfg.InstanceID), cfg, nil, nil, logging.New("test", "error", "text"), nil)
}

func TestHandleDownloadProgress_EmitsEventRegardlessOfThrottle(t *testing.T) {
	h := newTestHandle(t)
	ch := h.SubscribeProgress()

	h.handleDownloadProgress(10, 100, "downloading")

	select {
	case ev := <-ch:
		assert.Equal(t, int64(10), ev.Current)
		assert.Equal(t, int64(100), ev.Total)
	default:
		t.Fatal("expected a progress event")
	}
}

func TestHandleDownloadProgress_PercentThrottleAdvancesInFivePercentSteps(t *testing.T) {
	h := newTestHandle(t)
	h.handleDownloadProgress(4, 100, "x") // 4% — below first 5% step
	assert.Equal(t, int64(0), h.progressThrottle.lastPercent)

	h.handleDownloadProgress(5, 100, "x")
	assert.Equal(t, int64(5), h.progressThrottle.lastPercent)
}

func TestHandleDownloadProgress_UnknownTotalThrottlesOnFiveMBSteps(t *testing.T) {
	h := newTestHandle(t)
	const mb = 1024 * 1024

	h.handleDownloadProgress(4*mb, 0, "x")
	assert.Equal(t, int64(0), h.progressThrottle.lastMB)

	h.handleDownloadProgress(5*mb, 0, "x")
	assert.Equal(t, int64(1), h.progressThrottle.lastMB)
}

func TestRenderProgressBar_FillsProportionally(t *testing.T) {
	bar := renderProgressBar(50)
	assert.Contains(t, bar, "##########----------")
}
