package plugins

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
)

// spigetProvider serves plugins only, grounded on
// original_source/src/core/plugins/spiget/{mod,download}.rs. Spiget has no
// notion of multiple versions per resource — it always serves the current
// file — so GetVersions synthesizes a single ProjectVersion from the
// resource's own metadata, matching the original's direct
// download_resource(resource_id) call shape.
type spigetProvider struct {
	client  *marketplaceClient
	breaker *resilience.CircuitBreaker
	baseURL string
}

func newSpigetProvider(c *marketplaceClient) *spigetProvider {
	return &spigetProvider{client: c, breaker: newMarketplaceBreaker("spiget"), baseURL: "https://api.spiget.org/v2"}
}

func (p *spigetProvider) Name() string { return "spiget" }

type spigetResource struct {
	Name string `json:"name"`
	File struct {
		Type string `json:"type"`
	} `json:"file"`
}

func (p *spigetProvider) GetVersions(ctx context.Context, projectID, gameVersion, loader string) ([]ProjectVersion, error) {
	reqURL := fmt.Sprintf("%s/resources/%s", p.baseURL, projectID)
	var resource spigetResource
	cacheKey := fmt.Sprintf("spiget:resource:%s", projectID)
	if err := p.client.getJSON(ctx, p.breaker, p.Name(), cacheKey, reqURL, nil, &resource); err != nil {
		return nil, err
	}

	ext := "jar"
	filename := fmt.Sprintf("spigot-resource-%s.%s", projectID, ext)
	return []ProjectVersion{{
		ID:          projectID,
		ProjectID:   projectID,
		VersionName: resource.Name,
		Files: []ProjectFile{{
			URL:      fmt.Sprintf("%s/resources/%s/download", p.baseURL, projectID),
			Filename: filename,
			Primary:  true,
		}},
	}}, nil
}

func (p *spigetProvider) DownloadVersion(ctx context.Context, version ProjectVersion, destDir string) (string, error) {
	file, ok := primaryFile(version)
	if !ok {
		return "", fmt.Errorf("plugins: spiget resource %s has no files", version.ID)
	}
	target := filepath.Join(destDir, file.Filename)
	if err := p.client.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        file.URL,
		TargetPath: target,
	}, nil); err != nil {
		return "", err
	}
	return file.Filename, nil
}
