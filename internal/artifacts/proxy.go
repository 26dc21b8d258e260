package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

// velocityProvider downloads prebuilt Velocity proxy jars. Velocity is
// published through the same PaperMC build API as Paper itself, so this
// reuses that API's shape; query.rs's get_velocity_versions has no
// Minecraft-version concept, matching spec §4.7's proxy carve-out.
type velocityProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newVelocityProvider(c *client, dl *downloader.Downloader) *velocityProvider {
	return &velocityProvider{client: c, breaker: newBreaker("velocity"), dl: dl}
}

func (p *velocityProvider) Name() string { return "velocity" }

func (p *velocityProvider) GetVersions(ctx context.Context, _ string) ([]string, error) {
	var project struct {
		Versions []string `json:"versions"`
	}
	if err := p.client.getJSON(ctx, p.breaker, "velocity", "velocity:versions", "https://api.papermc.io/v2/projects/velocity", &project); err != nil {
		return nil, err
	}
	if len(project.Versions) == 0 {
		return nil, nil
	}
	latest := project.Versions[len(project.Versions)-1]

	var builds paperBuilds
	url := fmt.Sprintf("https://api.papermc.io/v2/projects/velocity/versions/%s/builds", latest)
	if err := p.client.getJSON(ctx, p.breaker, "velocity", "velocity:builds:"+latest, url, &builds); err != nil {
		return nil, err
	}
	versions := make([]string, len(builds.Builds))
	for i, b := range builds.Builds {
		versions[len(builds.Builds)-1-i] = latest + "#" + strconv.Itoa(b.Build)
	}
	return versions, nil
}

func (p *velocityProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	mcVersion, build, err := splitProxyVersion(req.LoaderVersion)
	if err != nil {
		return err
	}

	detailURL := fmt.Sprintf("https://api.papermc.io/v2/projects/velocity/versions/%s/builds/%s", mcVersion, build)
	var details paperBuildDetails
	if err := p.client.getJSON(ctx, p.breaker, "velocity", "velocity:build:"+req.LoaderVersion, detailURL, &details); err != nil {
		return err
	}

	downloadURL := fmt.Sprintf("https://api.papermc.io/v2/projects/velocity/versions/%s/builds/%s/downloads/%s", mcVersion, build, details.Downloads.Application.Name)
	target := filepath.Join(req.Dir, "velocity.jar")

	if onLog != nil {
		onLog("Downloading Velocity build " + req.LoaderVersion + "...")
	}
	return p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        downloadURL,
		TargetPath: target,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Velocity...")
		}
	})
}

// bungeecordProvider downloads prebuilt BungeeCord jars from its Jenkins CI
// server, the upstream project's only published build artifact source
// (there is no versioned release API). Like Velocity, there is no
// Minecraft-version concept: BungeeCord tracks the protocol, not a single
// game version.
type bungeecordProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newBungeeCordProvider(c *client, dl *downloader.Downloader) *bungeecordProvider {
	return &bungeecordProvider{client: c, breaker: newBreaker("bungeecord"), dl: dl}
}

func (p *bungeecordProvider) Name() string { return "bungeecord" }

func (p *bungeecordProvider) GetVersions(ctx context.Context, _ string) ([]string, error) {
	var build struct {
		Number int `json:"number"`
	}
	url := "https://ci.md-5.net/job/BungeeCord/lastSuccessfulBuild/api/json"
	if err := p.client.getJSON(ctx, p.breaker, "bungeecord", "bungeecord:latest", url, &build); err != nil {
		return nil, err
	}
	return []string{strconv.Itoa(build.Number)}, nil
}

func (p *bungeecordProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	build := req.LoaderVersion
	downloadURL := fmt.Sprintf("https://ci.md-5.net/job/BungeeCord/%s/artifact/bootstrap/target/BungeeCord.jar", build)
	target := filepath.Join(req.Dir, "BungeeCord.jar")

	if onLog != nil {
		onLog("Downloading BungeeCord build " + build + "...")
	}
	return p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        downloadURL,
		TargetPath: target,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading BungeeCord...")
		}
	})
}

func splitProxyVersion(loaderVersion string) (mcVersion, build string, err error) {
	for i := len(loaderVersion) - 1; i >= 0; i-- {
		if loaderVersion[i] == '#' {
			return loaderVersion[:i], loaderVersion[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("artifacts: malformed Velocity version %q, expected <mcVersion>#<build>", loaderVersion)
}
