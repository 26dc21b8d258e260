package artifacts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

// fabricProvider installs via the Fabric installer helper JVM, grounded on
// original_source's mod_loaders/fabric.rs and manager/install/fabric.rs.
type fabricProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newFabricProvider(c *client, dl *downloader.Downloader) *fabricProvider {
	return &fabricProvider{client: c, breaker: newBreaker("fabric"), dl: dl}
}

func (p *fabricProvider) Name() string { return "fabric" }

type fabricLoaderVersion struct {
	Loader struct {
		Version string `json:"version"`
	} `json:"loader"`
}

type fabricInstallerVersion struct {
	Version string `json:"version"`
}

func (p *fabricProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	url := fmt.Sprintf("https://meta.fabricmc.net/v2/versions/loader/%s", mcVersion)
	var loaders []fabricLoaderVersion
	err := p.client.getJSON(ctx, p.breaker, "fabric", "fabric:loaders:"+mcVersion, url, &loaders)
	if isUpstreamNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(loaders))
	for _, l := range loaders {
		versions = append(versions, l.Loader.Version)
	}
	return versions, nil
}

func (p *fabricProvider) latestInstallerVersion(ctx context.Context) (string, error) {
	var installers []fabricInstallerVersion
	err := p.client.getJSON(ctx, p.breaker, "fabric", "fabric:installers", "https://meta.fabricmc.net/v2/versions/installer", &installers)
	if err != nil {
		return "", err
	}
	if len(installers) == 0 {
		return "", fmt.Errorf("artifacts: no Fabric installer versions found")
	}
	return installers[0].Version, nil
}

func (p *fabricProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	installerVersion, err := p.latestInstallerVersion(ctx)
	if err != nil {
		return err
	}

	installerPath := filepath.Join(req.Dir, "fabric-installer.jar")
	installerURL := fmt.Sprintf("https://maven.fabricmc.net/net/fabricmc/fabric-installer/%s/fabric-installer-%s.jar", installerVersion, installerVersion)

	if onLog != nil {
		onLog("Starting download of Fabric installer...")
	}
	if err := p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        installerURL,
		TargetPath: installerPath,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Fabric installer...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("Fabric installer download complete!")
	}
	defer os.Remove(installerPath)

	args := []string{"-jar", installerPath, "server", "-mcversion", req.MCVersion, "-downloadMinecraft"}
	if req.LoaderVersion != "" {
		args = append(args, "-loader", req.LoaderVersion)
	}
	cmd := exec.CommandContext(ctx, "java", args...)
	cmd.Dir = req.Dir
	if err := runInstaller(ctx, "Fabric", cmd, onLog); err != nil {
		return err
	}

	jar, found, err := findJar(req.Dir, func(lower string) bool {
		return strings.Contains(lower, "fabric-server-launch") || strings.Contains(lower, "fabric-loader")
	})
	if err != nil {
		return err
	}
	if found {
		return renameTo(jar, req.Dir, "fabric-server.jar")
	}
	return nil
}
