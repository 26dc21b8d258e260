package plugins

import (
	"context"

	"github.com/serverforge/serverforge/infrastructure/errors"
)

// MarketplaceProvider resolves a marketplace project id to downloadable
// versions, grounded on original_source's per-marketplace clients
// (mods/modrinth, mods/curseforge, plugins/modrinth, plugins/spiget,
// plugins/hangar) — distinct from internal/artifacts.Provider, which
// resolves a *server loader* rather than a mod/plugin project.
type MarketplaceProvider interface {
	// Name identifies the provider for Provenance.Provider (e.g.
	// "modrinth", "curseforge", "spiget", "hangar").
	Name() string

	// GetVersions lists a project's published versions, newest first,
	// optionally filtered by Minecraft game version and loader. gameVersion
	// and loader are empty strings when unfiltered.
	GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]ProjectVersion, error)

	// DownloadVersion downloads version's primary file into destDir and
	// returns the filename it was saved as.
	DownloadVersion(ctx context.Context, version ProjectVersion, destDir string) (string, error)
}

// ProviderRegistry looks up a MarketplaceProvider by name, mirroring
// internal/artifacts.Registry's shape for the mod-loader Provider set.
type ProviderRegistry struct {
	byName map[string]MarketplaceProvider
}

func NewProviderRegistry(providers ...MarketplaceProvider) *ProviderRegistry {
	r := &ProviderRegistry{byName: make(map[string]MarketplaceProvider, len(providers))}
	for _, p := range providers {
		r.byName[p.Name()] = p
	}
	return r
}

func (r *ProviderRegistry) Get(name string) (MarketplaceProvider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, errors.NotFound("marketplace provider", name)
	}
	return p, nil
}

// primaryFile picks version's primary file, falling back to its first file
// when none is marked primary — the fallback every original download
// function (Modrinth, Hangar, CurseForge) applies.
func primaryFile(version ProjectVersion) (ProjectFile, bool) {
	for _, f := range version.Files {
		if f.Primary {
			return f, true
		}
	}
	if len(version.Files) > 0 {
		return version.Files[0], true
	}
	return ProjectFile{}, false
}
