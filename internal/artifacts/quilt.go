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

// quiltProvider installs via the Quilt installer helper JVM, grounded on
// original_source's mod_loaders/quilt.rs and manager/install/quilt.rs.
type quiltProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newQuiltProvider(c *client, dl *downloader.Downloader) *quiltProvider {
	return &quiltProvider{client: c, breaker: newBreaker("quilt"), dl: dl}
}

func (p *quiltProvider) Name() string { return "quilt" }

type quiltLoaderVersion struct {
	Loader struct {
		Version string `json:"version"`
	} `json:"loader"`
}

type quiltInstallerVersion struct {
	Version string `json:"version"`
}

func (p *quiltProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	url := fmt.Sprintf("https://meta.quiltmc.org/v3/versions/loader/%s", mcVersion)
	var loaders []quiltLoaderVersion
	err := p.client.getJSON(ctx, p.breaker, "quilt", "quilt:loaders:"+mcVersion, url, &loaders)
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

func (p *quiltProvider) latestInstallerVersion(ctx context.Context) (string, error) {
	var installers []quiltInstallerVersion
	err := p.client.getJSON(ctx, p.breaker, "quilt", "quilt:installers", "https://meta.quiltmc.org/v3/versions/installer", &installers)
	if err != nil {
		return "", err
	}
	if len(installers) == 0 {
		return "", fmt.Errorf("artifacts: no Quilt installer versions found")
	}
	return installers[0].Version, nil
}

func (p *quiltProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	installerVersion, err := p.latestInstallerVersion(ctx)
	if err != nil {
		return err
	}

	installerPath := filepath.Join(req.Dir, "quilt-installer.jar")
	installerURL := fmt.Sprintf("https://maven.quiltmc.org/repository/release/org/quiltmc/quilt-installer/%s/quilt-installer-%s.jar", installerVersion, installerVersion)

	if onLog != nil {
		onLog("Starting download of Quilt installer...")
	}
	if err := p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        installerURL,
		TargetPath: installerPath,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Quilt installer...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("Quilt installer download complete!")
	}
	defer os.Remove(installerPath)

	args := []string{"-jar", installerPath, "install", "server", req.MCVersion}
	if req.LoaderVersion != "" {
		args = append(args, req.LoaderVersion)
	}
	args = append(args, "--download-server", "--install-dir=.")
	cmd := exec.CommandContext(ctx, "java", args...)
	cmd.Dir = req.Dir
	if err := runInstaller(ctx, "Quilt", cmd, onLog); err != nil {
		return err
	}

	// Quilt's installer produces quilt-server-launch.jar; rename to
	// quilt-server.jar to match launch-command detection, falling back to
	// any quilt-loader jar if the expected name isn't present (matches the
	// original's two-step find with a warning log on the fallback path).
	jar, found, err := findJar(req.Dir, func(lower string) bool {
		return strings.Contains(lower, "quilt-server-launch")
	})
	if err != nil {
		return err
	}
	if found {
		if onLog != nil {
			onLog(fmt.Sprintf("Renaming %s to quilt-server.jar", filepath.Base(jar)))
		}
		return renameTo(jar, req.Dir, "quilt-server.jar")
	}

	if onLog != nil {
		onLog("Warning: could not find quilt-server-launch.jar. Checking for other loader jars...")
	}
	jar, found, err = findJar(req.Dir, func(lower string) bool {
		return strings.Contains(lower, "quilt-loader")
	})
	if err != nil {
		return err
	}
	if found {
		if onLog != nil {
			onLog(fmt.Sprintf("Found %s, renaming to quilt-server.jar", filepath.Base(jar)))
		}
		return renameTo(jar, req.Dir, "quilt-server.jar")
	}
	return nil
}
