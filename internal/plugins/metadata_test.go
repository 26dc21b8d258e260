package plugins

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestJar(t *testing.T, dir, name string, files map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for entryName, content := range files {
		w, err := zw.Create(entryName)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestExtractMetadata_Fabric(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "sodium.jar", map[string]string{
		"fabric.mod.json": `{"name":"Sodium","version":"0.5.3","description":"Rendering engine","authors":["jellysquid3"]}`,
	})

	item, err := extractMetadata(path, "sodium.jar", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "Sodium", item.Name)
	assert.Equal(t, "0.5.3", item.Version)
	assert.Equal(t, "Fabric", item.Loader)
	assert.Equal(t, "jellysquid3", item.Author)
	assert.True(t, item.Enabled)
}

func TestExtractMetadata_Quilt(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "qsl.jar", map[string]string{
		"quilt.mod.json": `{"quilt_loader":{"metadata":{"name":"QSL","version":"7.0.0","contributors":{"QuiltMC":"lead"}}}}`,
	})

	item, err := extractMetadata(path, "qsl.jar", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "QSL", item.Name)
	assert.Equal(t, "Quilt", item.Loader)
	assert.Equal(t, "QuiltMC", item.Author)
}

func TestExtractMetadata_ForgeModsToml(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "jei.jar", map[string]string{
		"META-INF/mods.toml": "[[mods]]\ndisplayName=\"JEI\"\nversion=\"15.2.0\"\nauthors=\"mezz\"\n",
	})

	item, err := extractMetadata(path, "jei.jar", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "JEI", item.Name)
	assert.Equal(t, "Forge", item.Loader)
	assert.Equal(t, "mezz", item.Author)
}

func TestExtractMetadata_LegacyMcModInfo(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "old.jar", map[string]string{
		"mcmod.info": `[{"name":"OldMod","version":"1.0","authorList":["dev1","dev2"]}]`,
	})

	item, err := extractMetadata(path, "old.jar", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "OldMod", item.Name)
	assert.Equal(t, "dev1, dev2", item.Author)
}

func TestExtractMetadata_PluginYml(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "essentials.jar", map[string]string{
		"plugin.yml": "name: Essentials\nversion: 2.20.1\nauthor: EssentialsX Team\n",
	})

	item, err := extractMetadata(path, "essentials.jar", KindPlugin)
	require.NoError(t, err)
	assert.Equal(t, "Essentials", item.Name)
	assert.Equal(t, "2.20.1", item.Version)
	assert.Equal(t, "EssentialsX Team", item.Author)
}

func TestExtractMetadata_NoRecognizedFileFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "mystery.jar", map[string]string{
		"some/other/file.txt": "nothing useful here",
	})

	item, err := extractMetadata(path, "mystery.jar", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "mystery", item.Name)
}

func TestExtractMetadata_DisabledJarStripsDisabledSuffixFromFallbackName(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "mystery.jar.disabled", map[string]string{})

	item, err := extractMetadata(path, "mystery.jar.disabled", KindMod)
	require.NoError(t, err)
	assert.Equal(t, "mystery", item.Name)
	assert.False(t, item.Enabled)
}

func TestExtractMetadata_IconBase64Encoded(t *testing.T) {
	dir := t.TempDir()
	path := writeTestJar(t, dir, "icon.jar", map[string]string{
		"fabric.mod.json": `{"name":"IconMod","version":"1.0","icon":"assets/icon.png"}`,
		"assets/icon.png": "fake-png-bytes",
	})

	item, err := extractMetadata(path, "icon.jar", KindMod)
	require.NoError(t, err)
	assert.NotEmpty(t, item.IconBase64)
}
