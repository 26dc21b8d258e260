// Package plugins implements the Plugin/Mod Engine (spec §4.8): metadata
// extraction from installed JAR archives, enable/disable by rename, install
// from a marketplace provider, and update checks — shared between an
// instance's mods/ and plugins/ directories, which differ only in which
// metadata formats they recognize and which marketplace providers serve
// them.
package plugins

// Kind distinguishes an instance's mods/ directory from its plugins/
// directory; each carries its own sidecar filename and metadata-parser
// order per spec §4.8.
type Kind string

const (
	KindMod    Kind = "mods"
	KindPlugin Kind = "plugins"
)

// Provenance records where an installed item came from, so Install can be
// tracked and CheckUpdates can later ask the same provider for newer
// versions. Persisted in the sidecar's "sources" map, keyed by filename.
type Provenance struct {
	ProjectID        string `json:"project_id"`
	Provider         string `json:"provider"`
	CurrentVersionID string `json:"current_version_id,omitempty"`
}

// InstalledItem is one mod or plugin record, independent of which loader or
// marketplace it came from.
type InstalledItem struct {
	Name        string      `json:"name"`
	Filename    string      `json:"filename"`
	Enabled     bool        `json:"enabled"`
	Version     string      `json:"version,omitempty"`
	Author      string      `json:"author,omitempty"`
	Description string      `json:"description,omitempty"`
	Loader      string      `json:"loader,omitempty"`
	IconBase64  string      `json:"icon_base64,omitempty"`
	Source      *Provenance `json:"source,omitempty"`
}

// UpdateDescriptor reports that an installed item has a newer version
// available from its recorded provider.
type UpdateDescriptor struct {
	Filename        string `json:"filename"`
	CurrentVersion  string `json:"current_version,omitempty"`
	LatestVersion   string `json:"latest_version"`
	LatestVersionID string `json:"latest_version_id"`
	ProjectID       string `json:"project_id"`
	Provider        string `json:"provider"`
}

// ProjectFile is one downloadable artifact of a ProjectVersion.
type ProjectFile struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Primary  bool   `json:"primary"`
	Size     int64  `json:"size"`
	SHA1     string `json:"sha1,omitempty"`
}

// ProjectVersion is one version of a marketplace project, as returned by a
// MarketplaceProvider's GetVersions.
type ProjectVersion struct {
	ID           string        `json:"id"`
	ProjectID    string        `json:"project_id"`
	VersionName  string        `json:"version_number"`
	Files        []ProjectFile `json:"files"`
	Loaders      []string      `json:"loaders,omitempty"`
	GameVersions []string      `json:"game_versions,omitempty"`
}
