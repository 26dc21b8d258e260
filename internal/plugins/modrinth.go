package plugins

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
)

// modrinthProvider serves both mods and plugins — Modrinth hosts both
// project types behind the same /v2/project/{id}/version endpoint, per
// original_source's mods/modrinth and plugins/modrinth clients, which are
// thin wrappers around the same common client.
type modrinthProvider struct {
	client  *marketplaceClient
	breaker *resilience.CircuitBreaker
	baseURL string
}

func newModrinthProvider(c *marketplaceClient) *modrinthProvider {
	return &modrinthProvider{client: c, breaker: newMarketplaceBreaker("modrinth"), baseURL: "https://api.modrinth.com/v2"}
}

func (p *modrinthProvider) Name() string { return "modrinth" }

type modrinthVersion struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	VersionName  string `json:"version_number"`
	Loaders      []string `json:"loaders"`
	GameVersions []string `json:"game_versions"`
	Files        []struct {
		URL     string `json:"url"`
		Filename string `json:"filename"`
		Primary  bool   `json:"primary"`
		Size     int64  `json:"size"`
		Hashes   struct {
			SHA1 string `json:"sha1"`
		} `json:"hashes"`
	} `json:"files"`
}

func (p *modrinthProvider) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]ProjectVersion, error) {
	q := url.Values{}
	if gameVersion != "" {
		q.Set("game_versions", fmt.Sprintf(`["%s"]`, gameVersion))
	}
	if loader != "" {
		q.Set("loaders", fmt.Sprintf(`["%s"]`, loader))
	}
	reqURL := fmt.Sprintf("%s/project/%s/version", p.baseURL, url.PathEscape(projectID))
	if encoded := q.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	var versions []modrinthVersion
	cacheKey := fmt.Sprintf("modrinth:versions:%s:%s:%s", projectID, gameVersion, loader)
	if err := p.client.getJSON(ctx, p.breaker, p.Name(), cacheKey, reqURL, nil, &versions); err != nil {
		return nil, err
	}

	out := make([]ProjectVersion, 0, len(versions))
	for _, v := range versions {
		pv := ProjectVersion{
			ID:           v.ID,
			ProjectID:    v.ProjectID,
			VersionName:  v.VersionName,
			Loaders:      v.Loaders,
			GameVersions: v.GameVersions,
		}
		for _, f := range v.Files {
			pv.Files = append(pv.Files, ProjectFile{
				URL:      f.URL,
				Filename: f.Filename,
				Primary:  f.Primary,
				Size:     f.Size,
				SHA1:     f.Hashes.SHA1,
			})
		}
		out = append(out, pv)
	}
	return out, nil
}

func (p *modrinthProvider) DownloadVersion(ctx context.Context, version ProjectVersion, destDir string) (string, error) {
	file, ok := primaryFile(version)
	if !ok {
		return "", fmt.Errorf("plugins: modrinth version %s has no files", version.ID)
	}

	target := filepath.Join(destDir, file.Filename)
	artifact := domain.ArtifactDescriptor{
		URL:        file.URL,
		TargetPath: target,
		TotalSize:  file.Size,
	}
	if file.SHA1 != "" {
		artifact.ExpectedHash = &domain.ExpectedHash{Hex: file.SHA1, Algorithm: domain.HashSHA1}
	}
	if err := p.client.dl.DownloadWithResumption(ctx, artifact, nil); err != nil {
		return "", err
	}
	return file.Filename, nil
}
