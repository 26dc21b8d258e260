package plugins

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// extractMetadata opens path (a jar, which is a zip) and tries each of
// kind's recognized metadata formats in spec §4.8's declared order. Parser
// failure — including "no recognized file present" — falls back to the
// filename (minus .jar[.disabled]) as name, never a hard error: a jar this
// control plane can't introspect is still a jar it can list.
func extractMetadata(path, filename string, kind Kind) (InstalledItem, error) {
	isDisabled := strings.HasSuffix(filename, ".disabled")
	item := InstalledItem{
		Name:     stripJarSuffix(filename),
		Filename: filename,
		Enabled:  !isDisabled,
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		// A jar we can't even open as a zip still lists under its filename.
		return item, nil
	}
	defer r.Close()

	var iconPath string
	if kind == KindMod {
		iconPath = parseModMetadata(&r.Reader, &item)
	} else {
		parsePluginMetadata(&r.Reader, &item)
	}

	if iconPath != "" {
		if data, ok := readZipEntry(&r.Reader, iconPath); ok {
			item.IconBase64 = base64.StdEncoding.EncodeToString(data)
		}
	}

	return item, nil
}

func stripJarSuffix(filename string) string {
	name := strings.TrimSuffix(filename, ".disabled")
	return strings.TrimSuffix(name, ".jar")
}

func readZipEntry(r *zip.Reader, name string) ([]byte, bool) {
	f, err := r.Open(name)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false
	}
	return data, true
}

func zipTextFile(r *zip.Reader, name string) (string, bool) {
	data, ok := readZipEntry(r, name)
	if !ok {
		return "", false
	}
	return string(data), true
}

// parseModMetadata tries fabric.mod.json, then META-INF/neoforge.mods.toml,
// then quilt.mod.json, then META-INF/mods.toml, then legacy mcmod.info, in
// the order spec §4.8 lists them. It returns the in-archive path of an icon
// file, if the winning format named one.
func parseModMetadata(r *zip.Reader, item *InstalledItem) string {
	if icon, ok := parseFabricModJSON(r, item); ok {
		return icon
	}
	if icon, ok := parseForgeStyleToml(r, item, "META-INF/neoforge.mods.toml", "NeoForge"); ok {
		return icon
	}
	if icon, ok := parseQuiltModJSON(r, item); ok {
		return icon
	}
	if icon, ok := parseForgeStyleToml(r, item, "META-INF/mods.toml", "Forge"); ok {
		return icon
	}
	parseLegacyForgeInfo(r, item)
	return ""
}

type fabricModJSON struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Authors     json.RawMessage `json:"authors"`
	Icon        json.RawMessage `json:"icon"`
}

func parseFabricModJSON(r *zip.Reader, item *InstalledItem) (string, bool) {
	content, ok := zipTextFile(r, "fabric.mod.json")
	if !ok {
		return "", false
	}
	var m fabricModJSON
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return "", false
	}
	if m.Name != "" {
		item.Name = m.Name
	}
	item.Version = m.Version
	item.Description = m.Description
	item.Loader = "Fabric"
	item.Author = parseFabricAuthors(m.Authors)
	return parseIconField(m.Icon), true
}

func parseFabricAuthors(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return ""
	}
	var names []string
	for _, entry := range list {
		var name string
		if json.Unmarshal(entry, &name) == nil {
			names = append(names, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(entry, &obj) == nil && obj.Name != "" {
			names = append(names, obj.Name)
		}
	}
	return strings.Join(names, ", ")
}

// parseIconField handles fabric.mod.json/quilt.mod.json's "icon" field,
// which is either a bare path string or a {"32": ..., "64": ..., "128":
// ...} size map; prefer the largest listed size.
func parseIconField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return path
	}
	var sizes map[string]string
	if err := json.Unmarshal(raw, &sizes); err == nil {
		for _, key := range []string{"128", "64", "32"} {
			if p, ok := sizes[key]; ok {
				return p
			}
		}
	}
	return ""
}

type quiltModJSON struct {
	QuiltLoader struct {
		Metadata struct {
			Name          string            `json:"name"`
			Version       string            `json:"version"`
			Description   string            `json:"description"`
			Contributors  map[string]string `json:"contributors"`
			Icon          json.RawMessage   `json:"icon"`
		} `json:"metadata"`
	} `json:"quilt_loader"`
}

func parseQuiltModJSON(r *zip.Reader, item *InstalledItem) (string, bool) {
	content, ok := zipTextFile(r, "quilt.mod.json")
	if !ok {
		return "", false
	}
	var m quiltModJSON
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return "", false
	}
	meta := m.QuiltLoader.Metadata
	if meta.Name != "" {
		item.Name = meta.Name
	}
	item.Version = meta.Version
	item.Description = meta.Description
	item.Loader = "Quilt"
	if len(meta.Contributors) > 0 {
		names := make([]string, 0, len(meta.Contributors))
		for name := range meta.Contributors {
			names = append(names, name)
		}
		item.Author = strings.Join(names, ", ")
	}
	return parseIconField(meta.Icon), true
}

type modsToml struct {
	Mods []struct {
		DisplayName string `toml:"displayName"`
		Version     string `toml:"version"`
		Description string `toml:"description"`
		Authors     string `toml:"authors"`
		LogoFile    string `toml:"logoFile"`
	} `toml:"mods"`
}

func parseForgeStyleToml(r *zip.Reader, item *InstalledItem, entry, loaderName string) (string, bool) {
	content, ok := zipTextFile(r, entry)
	if !ok {
		return "", false
	}
	var t modsToml
	if err := toml.Unmarshal([]byte(content), &t); err != nil || len(t.Mods) == 0 {
		return "", false
	}
	first := t.Mods[0]
	if first.DisplayName != "" {
		item.Name = first.DisplayName
	}
	item.Version = first.Version
	item.Description = first.Description
	item.Author = first.Authors
	item.Loader = loaderName
	return first.LogoFile, true
}

type legacyForgeModInfo struct {
	Name       string   `json:"name"`
	Version    string   `json:"version"`
	Description string  `json:"description"`
	AuthorList []string `json:"authorList"`
}

type legacyForgeWrapped struct {
	ModList []legacyForgeModInfo `json:"modList"`
}

// parseLegacyForgeInfo handles mcmod.info, which is JSON despite the name
// and ships in one of two shapes: a bare array, or {"modList": [...]}.
func parseLegacyForgeInfo(r *zip.Reader, item *InstalledItem) {
	content, ok := zipTextFile(r, "mcmod.info")
	if !ok {
		return
	}
	var list []legacyForgeModInfo
	if err := json.Unmarshal([]byte(content), &list); err == nil && len(list) > 0 {
		applyLegacyForgeInfo(item, list[0])
		return
	}
	var wrapped legacyForgeWrapped
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && len(wrapped.ModList) > 0 {
		applyLegacyForgeInfo(item, wrapped.ModList[0])
	}
}

func applyLegacyForgeInfo(item *InstalledItem, info legacyForgeModInfo) {
	if info.Name != "" {
		item.Name = info.Name
	}
	item.Version = info.Version
	item.Description = info.Description
	item.Author = strings.Join(info.AuthorList, ", ")
	item.Loader = "Forge"
}

type pluginYML struct {
	Name        string    `yaml:"name"`
	Version     yaml.Node `yaml:"version"`
	Author      string    `yaml:"author"`
	Authors     []string  `yaml:"authors"`
	Description string    `yaml:"description"`
}

// parsePluginMetadata tries plugin.yml, bungee.yml, then paper-plugin.yml,
// per spec §4.8.
func parsePluginMetadata(r *zip.Reader, item *InstalledItem) {
	for _, name := range []string{"plugin.yml", "bungee.yml", "paper-plugin.yml"} {
		content, ok := zipTextFile(r, name)
		if !ok {
			continue
		}
		var y pluginYML
		if err := yaml.Unmarshal([]byte(content), &y); err != nil {
			return
		}
		if y.Name != "" {
			item.Name = y.Name
		}
		item.Description = y.Description
		item.Author = y.Author
		if item.Author == "" && len(y.Authors) > 0 {
			item.Author = strings.Join(y.Authors, ", ")
		}
		item.Version = pluginVersionString(y.Version)
		return
	}
}

// pluginVersionString handles plugin.yml's "version" field, which YAML may
// parse as either a string or a bare number (e.g. `version: 1.0`).
func pluginVersionString(n yaml.Node) string {
	if n.Value == "" {
		return ""
	}
	if n.Tag == "!!int" || n.Tag == "!!float" {
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return n.Value
}
