package artifacts

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

// purpurProvider downloads prebuilt Purpur jars directly, no installer.
// Grounded on original_source's mod_loaders/purpur.rs.
type purpurProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newPurpurProvider(c *client, dl *downloader.Downloader) *purpurProvider {
	return &purpurProvider{client: c, breaker: newBreaker("purpur"), dl: dl}
}

func (p *purpurProvider) Name() string { return "purpur" }

type purpurVersions struct {
	Builds struct {
		All []string `json:"all"`
	} `json:"builds"`
}

func (p *purpurProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	url := fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s", mcVersion)
	var v purpurVersions
	err := p.client.getJSON(ctx, p.breaker, "purpur", "purpur:builds:"+mcVersion, url, &v)
	if isUpstreamNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	versions := make([]string, len(v.Builds.All))
	for i, b := range v.Builds.All {
		versions[len(v.Builds.All)-1-i] = b
	}
	return versions, nil
}

func (p *purpurProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	downloadURL := fmt.Sprintf("https://api.purpurmc.org/v2/purpur/%s/%s/download", req.MCVersion, req.LoaderVersion)
	target := filepath.Join(req.Dir, "server.jar")

	if onLog != nil {
		onLog("Downloading Purpur build " + req.LoaderVersion + "...")
	}
	if err := p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        downloadURL,
		TargetPath: target,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Purpur server...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("Purpur server download complete!")
	}
	return nil
}
