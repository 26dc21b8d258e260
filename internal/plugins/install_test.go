package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketplaceProvider struct {
	name     string
	versions []ProjectVersion
}

func (f *fakeMarketplaceProvider) Name() string { return f.name }

func (f *fakeMarketplaceProvider) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]ProjectVersion, error) {
	return f.versions, nil
}

func (f *fakeMarketplaceProvider) DownloadVersion(ctx context.Context, version ProjectVersion, destDir string) (string, error) {
	filename := version.ID + ".jar"
	return filename, os.WriteFile(filepath.Join(destDir, filename), []byte("jar"), 0o644)
}

func TestEngine_InstallDownloadsFirstVersionAndRecordsProvenance(t *testing.T) {
	instanceDir := t.TempDir()
	fp := &fakeMarketplaceProvider{name: "modrinth", versions: []ProjectVersion{
		{ID: "v2", ProjectID: "sodium"},
		{ID: "v1", ProjectID: "sodium"},
	}}
	e := NewEngine(KindMod, NewProviderRegistry(fp))

	filename, err := e.Install(context.Background(), instanceDir, "modrinth", "sodium", "", "1.20.1", "fabric")
	require.NoError(t, err)
	assert.Equal(t, "v2.jar", filename)
	assert.FileExists(t, filepath.Join(instanceDir, "mods", "v2.jar"))

	side := loadSidecar(filepath.Join(instanceDir, "mods", ".mod_metadata_cache.json"))
	src, ok := side.Sources["v2.jar"]
	require.True(t, ok)
	assert.Equal(t, "sodium", src.ProjectID)
	assert.Equal(t, "v2", src.CurrentVersionID)
}

func TestEngine_InstallHonorsRequestedVersionID(t *testing.T) {
	instanceDir := t.TempDir()
	fp := &fakeMarketplaceProvider{name: "modrinth", versions: []ProjectVersion{
		{ID: "v2", ProjectID: "sodium"},
		{ID: "v1", ProjectID: "sodium"},
	}}
	e := NewEngine(KindMod, NewProviderRegistry(fp))

	filename, err := e.Install(context.Background(), instanceDir, "modrinth", "sodium", "v1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "v1.jar", filename)
}

func TestEngine_InstallUnknownVersionIDReturnsError(t *testing.T) {
	instanceDir := t.TempDir()
	fp := &fakeMarketplaceProvider{name: "modrinth", versions: []ProjectVersion{{ID: "v1"}}}
	e := NewEngine(KindMod, NewProviderRegistry(fp))

	_, err := e.Install(context.Background(), instanceDir, "modrinth", "sodium", "missing", "", "")
	assert.Error(t, err)
}

func TestEngine_InstallUnknownProviderReturnsError(t *testing.T) {
	e := NewEngine(KindMod, NewProviderRegistry())
	_, err := e.Install(context.Background(), t.TempDir(), "modrinth", "sodium", "", "", "")
	assert.Error(t, err)
}
