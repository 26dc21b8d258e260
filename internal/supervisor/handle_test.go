package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/internal/domain"
)

type fakeRegistry struct {
	inst domain.Instance
}

func (f *fakeRegistry) GetByID(ctx context.Context, id uuid.UUID) (domain.Instance, error) {
	return f.inst, nil
}

func (f *fakeRegistry) UpdateLastRun(ctx context.Context, id uuid.UUID) error {
	return nil
}

type noopArtifacts struct{}

func (noopArtifacts) EnsureArtifacts(ctx context.Context, inst domain.Instance, onProgress func(cur, total int64, msg string), onLog func(line string)) error {
	return nil
}

// writeScript creates an executable shell script in dir that echoes a ready
// line, waits for a "stop" line on stdin, then exits 0.
func writeScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "server.sh")
	script := `#!/bin/sh
echo 'Done (1.234s)! For help, type "help"'
while read -r line; do
  if [ "$line" = "stop" ]; then
    echo "stopping"
    exit 0
  fi
done
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSupervisor(t *testing.T) (*Supervisor, domain.Instance) {
	t.Helper()
	dir := t.TempDir()
	scriptPath := writeScript(t, dir)

	settings := domain.DefaultInstanceSettings()
	settings.LaunchMethod = domain.LaunchBatFile
	settings.ScriptFile = scriptPath
	settings.StopTimeoutSec = 5

	inst := domain.Instance{
		ID:       uuid.New(),
		Name:     "test",
		Path:     dir,
		Settings: settings,
	}

	sup := New(&fakeRegistry{inst: inst}, noopArtifacts{}, logging.New("test", "error", "text"), nil)
	return sup, inst
}

func TestServerHandle_StartTransitionsToRunningOnReadyLine(t *testing.T) {
	sup, inst := newTestSupervisor(t)
	h, err := sup.GetOrCreate(context.Background(), inst.ID)
	require.NoError(t, err)

	logs := h.SubscribeLogs()
	h.Start(context.Background())

	select {
	case <-logs:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ready log line")
	}

	assert.Eventually(t, func() bool {
		return h.Status() == domain.StatusRunning
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, h.Stop(context.Background()))
	assert.Equal(t, domain.StatusStopped, h.Status())
}

func TestServerHandle_SendCommandWithoutRunningChildReturnsError(t *testing.T) {
	sup, inst := newTestSupervisor(t)
	h, err := sup.GetOrCreate(context.Background(), inst.ID)
	require.NoError(t, err)

	err = h.SendCommand("say hi")
	assert.Error(t, err)
}

func TestServerHandle_UpdateConfigSwapsStoredConfig(t *testing.T) {
	sup, inst := newTestSupervisor(t)
	h, err := sup.GetOrCreate(context.Background(), inst.ID)
	require.NoError(t, err)

	newCfg := h.getConfig()
	newCfg.StopTimeoutSec = 99
	h.UpdateConfig(newCfg)

	assert.Equal(t, 99, h.getConfig().StopTimeoutSec)
}

func TestSupervisor_GetOrCreateIsIdempotent(t *testing.T) {
	sup, inst := newTestSupervisor(t)
	h1, err := sup.GetOrCreate(context.Background(), inst.ID)
	require.NoError(t, err)
	h2, err := sup.GetOrCreate(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Same(t, h1, h2)
}
