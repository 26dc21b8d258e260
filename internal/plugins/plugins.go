package plugins

import (
	"github.com/serverforge/serverforge/infrastructure/cache"
	"github.com/serverforge/serverforge/internal/downloader"
)

// Engines bundles the two Plugin/Mod Engine instances a running instance
// needs: one for its mods/ directory, one for its plugins/ directory. Most
// callers only need one or the other depending on the instance's loader
// category (a mod-loader instance has mods/, a plugin-loader instance has
// plugins/), but both share the same marketplace provider set.
type Engines struct {
	Mods    *Engine
	Plugins *Engine
}

// New builds both engines sharing one resilient marketplace HTTP client.
// curseforgeAPIKey may be empty — CurseForge installs then fail with an
// explicit "API key not configured" error rather than silently no-opping;
// CheckUpdates skips CurseForge items, as it skips any item whose provider
// query fails.
func New(c *cache.Cache, dl *downloader.Downloader, curseforgeAPIKey string) *Engines {
	httpClient := newMarketplaceClient(c, dl)

	modrinth := newModrinthProvider(httpClient)
	modProviders := NewProviderRegistry(modrinth, newCurseForgeProvider(httpClient, curseforgeAPIKey))
	pluginProviders := NewProviderRegistry(modrinth, newSpigetProvider(httpClient), newHangarProvider(httpClient))

	return &Engines{
		Mods:    NewEngine(KindMod, modProviders),
		Plugins: NewEngine(KindPlugin, pluginProviders),
	}
}
