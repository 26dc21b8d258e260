package artifacts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

const neoforgeMetadataURL = "https://maven.neoforged.net/releases/net/neoforged/neoforge/maven-metadata.xml"

var neoforgeVersionTag = regexp.MustCompile(`<version>([^<]+)</version>`)

// neoforgeProvider installs via the NeoForge installer helper JVM, grounded
// on original_source's mod_loaders/neoforge.rs and manager/install/
// neoforge.rs. NeoForge is always "modern": it ships its own run script, so
// no post-install jar rename is needed.
type neoforgeProvider struct {
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

func newNeoForgeProvider(c *client, dl *downloader.Downloader) *neoforgeProvider {
	return &neoforgeProvider{client: c, breaker: newBreaker("neoforge"), dl: dl}
}

func (p *neoforgeProvider) Name() string { return "neoforge" }

// neoforgePrefix derives the "<minor>.<patch>" prefix NeoForge version
// strings start with, from a Minecraft version like "1.20.1" -> "20.1".
func neoforgePrefix(mcVersion string) (string, error) {
	parts := strings.Split(mcVersion, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("artifacts: malformed Minecraft version %q", mcVersion)
	}
	if len(parts) > 2 {
		return parts[1] + "." + parts[2], nil
	}
	return parts[1] + ".0", nil
}

func (p *neoforgeProvider) GetVersions(ctx context.Context, mcVersion string) ([]string, error) {
	text, err := p.client.getText(ctx, p.breaker, "neoforge", neoforgeMetadataURL)
	if isUpstreamNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	prefix, err := neoforgePrefix(mcVersion)
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, m := range neoforgeVersionTag.FindAllStringSubmatch(text, -1) {
		if strings.HasPrefix(m[1], prefix) {
			versions = append(versions, m[1])
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareDottedVersions(versions[i], versions[j]) > 0
	})
	return versions, nil
}

// compareDottedVersions compares two dot-separated numeric version strings
// component-wise, mirroring the original's numeric Vec<u32> comparison.
func compareDottedVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}

func (p *neoforgeProvider) Install(ctx context.Context, req InstallRequest, onProgress ProgressFunc, onLog LogFunc) error {
	if req.LoaderVersion == "" {
		return errors.New(errors.ErrCodeInstallerFailure, "NeoForge requires a loader version")
	}

	installerPath := filepath.Join(req.Dir, "neoforge-installer.jar")
	installerURL := fmt.Sprintf("https://maven.neoforged.net/releases/net/neoforged/neoforge/%s/neoforge-%s-installer.jar", req.LoaderVersion, req.LoaderVersion)

	if onLog != nil {
		onLog("Starting download of NeoForge installer...")
	}
	if err := p.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        installerURL,
		TargetPath: installerPath,
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading NeoForge installer...")
		}
	}); err != nil {
		return err
	}
	if onLog != nil {
		onLog("NeoForge installer download complete!")
	}
	defer os.Remove(installerPath)

	cmd := exec.CommandContext(ctx, "java", "-jar", installerPath, "--installServer")
	cmd.Dir = req.Dir
	return runInstaller(ctx, "NeoForge", cmd, onLog)
}
