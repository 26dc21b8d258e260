package artifacts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

const forgePromotionsURL = "https://files.minecraftforge.net/net/minecraftforge/forge/promotions_slim.json"

// forgeProvider installs via the Forge installer helper JVM, grounded on
// original_source's mod_loaders/forge.rs and manager/install/forge.rs.
// Forge 1.17+ ("modern") installs its own run.sh/run.bat launch script and
// is left alone; pre-1.17 ("legacy") installs bare jars that must be found
// and renamed to server.jar (Open Question decision: kept both code paths,
// see DESIGN.md).
type forgeProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newForgeProvider(c *client, dl *downloader.Downloader) *forgeProvider {
	return &forgeProvider{client: c, breaker: newBreaker("forge"), dl: dl}
}

func (p *forgeProvider) Name() string { return "forge" }

type forgePromotions struct {
	Promos map[string]string `json:"promos"`
}

func (p *forgeProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	var promotions forgePromotions
	err := p.client.getJSON(ctx, p.breaker, "forge", "forge:promotions", forgePromotionsURL, &promotions)
	if isUpstreamNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var versions []string
	for key, val := range promotions.Promos {
		if strings.HasPrefix(key, mcVersion) {
			if _, dup := seen[val]; !dup {
				seen[val] = struct{}{}
				versions = append(versions, val)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

// isModernForge reports whether mcVersion is 1.17 or later, matching the
// original's is_modern_forge: parses the minor component of "1.MINOR[.z]".
func isModernForge(mcVersion string) bool {
	parts := strings.Split(mcVersion, ".")
	if len(parts) < 2 {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return minor >= 17
}

func (p *forgeProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	if req.LoaderVersion == "" {
		return errors.New(errors.ErrCodeInstallerFailure, "Forge requires a loader version")
	}

	installerPath := filepath.Join(req.Dir, "forge-installer.jar")
	versionStr := req.MCVersion + "-" + req.LoaderVersion
	installerURL := fmt.Sprintf("https://maven.minecraftforge.net/net/minecraftforge/forge/%s/forge-%s-installer.jar", versionStr, versionStr)

	if onLog != nil {
		onLog("Starting download of Forge installer...")
	}
	if err := p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        installerURL,
		TargetPath: installerPath,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Forge installer...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("Forge installer download complete!")
	}
	defer os.Remove(installerPath)

	cmd := exec.CommandContext(ctx, "java", "-jar", installerPath, "--installServer")
	cmd.Dir = req.Dir
	if err := runInstaller(ctx, "Forge", cmd, onLog); err != nil {
		return err
	}

	if isModernForge(req.MCVersion) {
		runScript := "run.sh"
		if isWindowsRuntime {
			runScript = "run.bat"
		}
		if !fileExists(filepath.Join(req.Dir, runScript)) {
			return errors.New(errors.ErrCodeInstallerFailure, "Forge installation finished but no run script was found for modern version")
		}
		return nil
	}

	jar, found, err := findJar(req.Dir, func(lower string) bool {
		return strings.Contains(lower, "forge") && !strings.Contains(lower, "installer")
	})
	if err != nil {
		return err
	}
	if found {
		return renameTo(jar, req.Dir, "server.jar")
	}
	return nil
}
