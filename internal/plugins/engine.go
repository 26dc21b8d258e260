package plugins

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// Engine implements the Plugin/Mod Engine's listing, enable/disable, and
// uninstall operations (spec §4.8) for one instance directory's mods/ or
// plugins/ subdirectory. Install and CheckUpdates live in install.go and
// update.go, since they additionally depend on a ProviderRegistry.
type Engine struct {
	kind      Kind
	providers *ProviderRegistry
}

func NewEngine(kind Kind, providers *ProviderRegistry) *Engine {
	return &Engine{kind: kind, providers: providers}
}

func (e *Engine) dir(instancePath string) string {
	return filepath.Join(instancePath, string(e.kind))
}

func (e *Engine) singularKind() string {
	if e.kind == KindMod {
		return "mod"
	}
	return "plugin"
}

func (e *Engine) sidecarPath(instancePath string) string {
	name := ".plugin_metadata_cache.json"
	if e.kind == KindMod {
		name = ".mod_metadata_cache.json"
	}
	return filepath.Join(e.dir(instancePath), name)
}

// List walks the mods/ or plugins/ directory, consulting the sidecar cache
// keyed by filename and validated by mtime before falling back to opening
// the archive (spec §4.8's "Listing").
func (e *Engine) List(instancePath string) ([]InstalledItem, error) {
	dir := e.dir(instancePath)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "read "+string(e.kind)+" directory", err)
	}

	side := loadSidecar(e.sidecarPath(instancePath))
	sideChanged := false

	var items []InstalledItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		filename := entry.Name()
		lower := strings.ToLower(filename)
		isJar := strings.HasSuffix(lower, ".jar")
		isDisabled := strings.HasSuffix(lower, ".jar.disabled")
		if !isJar && !isDisabled {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		lastModified := info.ModTime().Unix()
		sourceKey := filename
		if isDisabled {
			sourceKey = strings.TrimSuffix(filename, ".disabled")
		}

		if cached, ok := side.Entries[filename]; ok && cached.LastModified == lastModified {
			item := cached.Metadata
			item.Enabled = !isDisabled
			item.Source = lookupSource(side, filename, sourceKey)
			items = append(items, item)
			continue
		}

		item, err := extractMetadata(filepath.Join(dir, filename), filename, e.kind)
		if err != nil {
			continue
		}
		item.Source = lookupSource(side, filename, sourceKey)

		side.Entries[filename] = sidecarEntry{LastModified: lastModified, Metadata: item}
		sideChanged = true
		items = append(items, item)
	}

	if sideChanged {
		_ = side.save(e.sidecarPath(instancePath))
	}
	return items, nil
}

func lookupSource(side *sidecar, filename, sourceKey string) *Provenance {
	if p, ok := side.Sources[filename]; ok {
		return &p
	}
	if p, ok := side.Sources[sourceKey]; ok {
		return &p
	}
	return nil
}

// Toggle renames filename to enable/disable it, atomically swapping the
// ".disabled" suffix (spec §4.8's "Enable/disable").
func (e *Engine) Toggle(instancePath, filename string, enable bool) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	dir := e.dir(instancePath)
	current := filepath.Join(dir, filename)
	if _, err := os.Stat(current); err != nil {
		return errors.NotFound(string(e.kind), filename)
	}

	var newName string
	if enable {
		if !strings.HasSuffix(filename, ".jar.disabled") {
			return nil
		}
		newName = strings.TrimSuffix(filename, ".disabled")
	} else {
		if strings.HasSuffix(filename, ".jar.disabled") {
			return nil
		}
		newName = filename + ".disabled"
	}

	if err := os.Rename(current, filepath.Join(dir, newName)); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, "rename "+e.singularKind(), err)
	}
	return nil
}

// BulkToggle toggles every named file, ignoring per-item failures (spec
// §4.8: "Bulk variants iterate and ignore per-item failures").
func (e *Engine) BulkToggle(instancePath string, filenames []string, enable bool) {
	for _, f := range filenames {
		_ = e.Toggle(instancePath, f, enable)
	}
}

// Uninstall re-validates filename has no path separators or traversal,
// deletes it, and — if deleteConfig is set — removes the matching config
// tree (spec §4.8's "Uninstall").
func (e *Engine) Uninstall(instancePath, filename string, deleteConfig bool) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	target := filepath.Join(e.dir(instancePath), filename)
	if _, err := os.Stat(target); err == nil {
		if err := os.Remove(target); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, "delete "+e.singularKind()+" file", err)
		}
	}

	if deleteConfig {
		configDir := filepath.Join(instancePath, "config", configDirName(filename))
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			_ = os.RemoveAll(configDir)
		}
	}
	return nil
}

// configDirName derives a plausible config-directory name from a mod's
// filename (stripped of extension/version-ish suffixes is out of scope;
// original_source's uninstall.rs left per-mod config discovery as an
// explicit TODO for a later phase, so this applies the same base-name
// convention without inventing discovery logic the original never built).
func configDirName(filename string) string {
	return strings.TrimSuffix(strings.TrimSuffix(filename, ".disabled"), ".jar")
}

// BulkUninstall uninstalls every named file, ignoring per-item failures.
func (e *Engine) BulkUninstall(instancePath string, filenames []string, deleteConfig bool) {
	for _, f := range filenames {
		_ = e.Uninstall(instancePath, f, deleteConfig)
	}
}

// validateFilename rejects any path separator or traversal segment,
// matching uninstall.rs's explicit check verbatim (spec §4.8: "after
// re-validating that the supplied filename has no path separators or
// traversal").
func validateFilename(filename string) error {
	if filename == "" || strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\") {
		return errors.InvalidPath(filename, "filename must not contain path separators or traversal segments")
	}
	return nil
}
