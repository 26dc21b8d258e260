package artifacts

import (
	"context"
	"path/filepath"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

const mojangVersionManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"

// versionManifest mirrors the original's downloader::types::VersionManifest.
type versionManifest struct {
	Latest   struct{ Release, Snapshot string } `json:"latest"`
	Versions []struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		URL         string `json:"url"`
		ReleaseTime string `json:"releaseTime"`
	} `json:"versions"`
}

// versionDetail mirrors downloader::types::VersionDetail: the per-version
// manifest that names the server jar's download URL and sha1.
type versionDetail struct {
	Downloads struct {
		Server struct {
			SHA1 string `json:"sha1"`
			Size int64  `json:"size"`
			URL  string `json:"url"`
		} `json:"server"`
	} `json:"downloads"`
}

// vanillaProvider serves unmodified Mojang server jars. There is no
// installer step: the server.jar download is the entire install.
type vanillaProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newVanillaProvider(c *client, dl *downloader.Downloader) *vanillaProvider {
	return &vanillaProvider{client: c, breaker: newBreaker("vanilla"), dl: dl}
}

func (p *vanillaProvider) Name() string { return "vanilla" }

func (p *vanillaProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	var manifest versionManifest
	if err := p.client.getJSON(ctx, p.breaker, "vanilla", "vanilla:manifest", mojangVersionManifestURL, &manifest); err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(manifest.Versions))
	for _, v := range manifest.Versions {
		versions = append(versions, v.ID)
	}
	return versions, nil
}

func (p *vanillaProvider) findVersionURL(ctx context.Context, mcVersion string) (string, error) {
	var manifest versionManifest
	if err := p.client.getJSON(ctx, p.breaker, "vanilla", "vanilla:manifest", mojangVersionManifestURL, &manifest); err != nil {
		return "", err
	}
	for _, v := range manifest.Versions {
		if v.ID == mcVersion {
			return v.URL, nil
		}
	}
	return "", noVersionsErr("vanilla", mcVersion)
}

func (p *vanillaProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	detailURL, err := p.findVersionURL(ctx, req.MCVersion)
	if err != nil {
		return err
	}

	var detail versionDetail
	cacheKey := "vanilla:detail:" + req.MCVersion
	if err := p.client.getJSON(ctx, p.breaker, "vanilla", cacheKey, detailURL, &detail); err != nil {
		return err
	}

	if onLog != nil {
		onLog("Downloading vanilla server " + req.MCVersion + "...")
	}
	target := filepath.Join(req.Dir, "server.jar")
	descriptor := domain.ArtifactDescriptor{
		URL:        detail.Downloads.Server.URL,
		TargetPath: target,
		TotalSize:  detail.Downloads.Server.Size,
		ExpectedHash: &domain.ExpectedHash{
			Hex:       detail.Downloads.Server.SHA1,
			Algorithm: domain.HashSHA1,
		},
	}
	if err := p.dl.DownloadWithResumption(ctx, descriptor, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading vanilla server...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("Vanilla server download complete!")
	}
	return nil
}
