package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serverforge/serverforge/internal/domain"
)

type fakeProvider struct {
	name      string
	installed int
	failWith  error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	return []string{"1.0"}, nil
}

func (f *fakeProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	f.installed++
	if f.failWith != nil {
		return f.failWith
	}
	onLog("installing " + f.name)
	onProgress(1, 1, "done")
	return os.WriteFile(filepath.Join(req.Dir, "server.jar"), []byte("jar"), 0o644)
}

func newTestPipeline(providers ...Provider) *Pipeline {
	return &Pipeline{registry: NewRegistry(providers...)}
}

func TestPipeline_EnsureArtifactsInstallsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	fp := &fakeProvider{name: "vanilla"}
	p := newTestPipeline(fp)

	inst := domain.Instance{
		Path:     dir,
		Version:  "1.20.1",
		Settings: domain.DefaultInstanceSettings(),
	}

	var loggedLines []string
	var progressCalls int
	err := p.EnsureArtifacts(context.Background(), inst, func(cur, total int64, msg string) {
		progressCalls++
	}, func(line string) {
		loggedLines = append(loggedLines, line)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, fp.installed)
	assert.Equal(t, 1, progressCalls)
	assert.Contains(t, loggedLines, "installing vanilla")
}

func TestPipeline_EnsureArtifactsSkipsWhenAlreadyInstalled(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.jar"), []byte("jar"), 0o644))

	fp := &fakeProvider{name: "vanilla"}
	p := newTestPipeline(fp)

	inst := domain.Instance{
		Path:     dir,
		Version:  "1.20.1",
		Settings: domain.DefaultInstanceSettings(),
	}

	err := p.EnsureArtifacts(context.Background(), inst, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, fp.installed)
}

func TestPipeline_EnsureArtifactsUnknownLoaderReturnsError(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline()

	inst := domain.Instance{
		Path:      dir,
		Version:   "1.20.1",
		ModLoader: "bedrock",
		Settings:  domain.DefaultInstanceSettings(),
	}

	err := p.EnsureArtifacts(context.Background(), inst, nil, nil)
	assert.Error(t, err)
}

func TestPipeline_AlreadyInstalledDetectsBatFileScript(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "start.sh")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/bin/sh\n"), 0o755))

	p := newTestPipeline()
	settings := domain.DefaultInstanceSettings()
	settings.LaunchMethod = domain.LaunchBatFile
	settings.ScriptFile = scriptPath

	inst := domain.Instance{Path: dir, Settings: settings}
	assert.True(t, p.alreadyInstalled(inst))
}

func TestPipeline_AlreadyInstalledDetectsModernForgeRunScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"), 0o755))

	p := newTestPipeline()
	inst := domain.Instance{
		Path:      dir,
		Version:   "1.20.1",
		ModLoader: "forge",
		Settings:  domain.DefaultInstanceSettings(),
	}
	if isWindowsRuntime {
		t.Skip("run.sh check only applies on non-Windows")
	}
	assert.True(t, p.alreadyInstalled(inst))
}
