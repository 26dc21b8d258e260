package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
)

// hangarProvider serves plugins only, grounded on
// original_source/src/core/plugins/hangar/{mod,versions,download}.rs.
// Hangar's API exposes multiple download platforms (PAPER, WATERFALL,
// VELOCITY) per version; the original prefers PAPER, which this mirrors.
type hangarProvider struct {
	client  *marketplaceClient
	breaker *resilience.CircuitBreaker
	baseURL string
}

func newHangarProvider(c *marketplaceClient) *hangarProvider {
	return &hangarProvider{client: c, breaker: newMarketplaceBreaker("hangar"), baseURL: "https://hangar.papermc.io/api/v1"}
}

func (p *hangarProvider) Name() string { return "hangar" }

func platformDisplayName(platform string) string {
	switch platform {
	case "PAPER":
		return "Paper"
	case "WATERFALL":
		return "Waterfall"
	case "VELOCITY":
		return "Velocity"
	default:
		return platform
	}
}

type hangarVersionsResponse struct {
	Result []struct {
		Name      string `json:"name"`
		Downloads map[string]struct {
			DownloadURL string `json:"downloadUrl"`
			ExternalURL string `json:"externalUrl"`
		} `json:"downloads"`
	} `json:"result"`
}

func (p *hangarProvider) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]ProjectVersion, error) {
	reqURL := fmt.Sprintf("%s/projects/%s/versions", p.baseURL, projectID)
	var resp hangarVersionsResponse
	cacheKey := fmt.Sprintf("hangar:versions:%s", projectID)
	if err := p.client.getJSON(ctx, p.breaker, p.Name(), cacheKey, reqURL, nil, &resp); err != nil {
		return nil, err
	}

	slug := projectID
	if idx := strings.LastIndex(projectID, "/"); idx >= 0 {
		slug = projectID[idx+1:]
	}

	var out []ProjectVersion
	for _, v := range resp.Result {
		paper, ok := v.Downloads["PAPER"]
		if !ok {
			continue
		}
		downloadURL := paper.DownloadURL
		if downloadURL == "" {
			downloadURL = paper.ExternalURL
		}
		if downloadURL == "" {
			continue
		}
		if strings.HasPrefix(downloadURL, "/") {
			downloadURL = "https://hangar.papermc.io" + downloadURL
		}

		var loaders []string
		for _, platform := range []string{"PAPER", "WATERFALL", "VELOCITY"} {
			if _, ok := v.Downloads[platform]; ok {
				loaders = append(loaders, platformDisplayName(platform))
			}
		}

		out = append(out, ProjectVersion{
			ID:          v.Name,
			ProjectID:   projectID,
			VersionName: v.Name,
			Loaders:     loaders,
			Files: []ProjectFile{{
				URL:      downloadURL,
				Filename: fmt.Sprintf("%s-%s.jar", slug, v.Name),
				Primary:  true,
			}},
		})
	}
	return out, nil
}

func (p *hangarProvider) DownloadVersion(ctx context.Context, version ProjectVersion, destDir string) (string, error) {
	file, ok := primaryFile(version)
	if !ok {
		return "", fmt.Errorf("plugins: hangar version %s has no files", version.ID)
	}
	target := filepath.Join(destDir, file.Filename)
	artifact := domain.ArtifactDescriptor{URL: file.URL, TargetPath: target, TotalSize: file.Size}
	if file.SHA1 != "" {
		artifact.ExpectedHash = &domain.ExpectedHash{Hex: file.SHA1, Algorithm: domain.HashSHA1}
	}
	if err := p.client.dl.DownloadWithResumption(ctx, artifact, nil); err != nil {
		return "", err
	}
	return file.Filename, nil
}
