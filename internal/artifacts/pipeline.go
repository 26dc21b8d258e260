package artifacts

import (
	"context"
	"path/filepath"
	"regexp"

	"github.com/serverforge/serverforge/infrastructure/cache"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
)

// Pipeline resolves an instance's (platform version, loader, loader
// version) triple into concrete on-disk artifacts, implementing
// internal/supervisor.ArtifactEnsurer (spec §4.7).
type Pipeline struct {
	registry *Registry
	java     *JavaManager
	metrics  *metrics.Metrics
}

// New builds a Pipeline with one provider per supported loader, sharing a
// single cache+HTTP client and a single Downloader so concurrent installs
// across instances are deduplicated and rate-limited together. javaBaseDir
// is where managed JDKs are installed (spec §6: java/<release_name>).
func New(c *cache.Cache, dl *downloader.Downloader, javaBaseDir string, m *metrics.Metrics) *Pipeline {
	httpClient := newClient(c, m)
	registry := NewRegistry(
		newVanillaProvider(httpClient, dl),
		newFabricProvider(httpClient, dl),
		newQuiltProvider(httpClient, dl),
		newForgeProvider(httpClient, dl),
		newNeoForgeProvider(httpClient, dl),
		newPaperProvider(httpClient, dl),
		newPurpurProvider(httpClient, dl),
		newVelocityProvider(httpClient, dl),
		newBungeeCordProvider(httpClient, dl),
	)
	return &Pipeline{
		registry: registry,
		java:     NewJavaManager(javaBaseDir, httpClient, dl),
		metrics:  m,
	}
}

// Providers exposes the underlying Registry, for the "list available
// loaders for a Minecraft version" query operation (original's
// get_available_loaders).
func (p *Pipeline) Providers() *Registry {
	return p.registry
}

// EnsureJavaRuntime returns the managed JDK for majorVersion, downloading
// and installing it under the pipeline's java/ directory if it is not
// already present. Instances whose settings.RuntimePath is empty resolve
// their launch command's "java" to the result's Path.
func (p *Pipeline) EnsureJavaRuntime(ctx context.Context, majorVersion int, onProgress ProgressFunc) (ManagedJavaVersion, error) {
	installed, err := p.java.DiscoverInstalledVersions(ctx)
	if err != nil {
		return ManagedJavaVersion{}, err
	}
	for _, v := range installed {
		if v.MajorVersion == majorVersion {
			return v, nil
		}
	}

	release, err := p.java.GetLatestRelease(ctx, majorVersion)
	if err != nil {
		return ManagedJavaVersion{}, err
	}
	return p.java.DownloadAndInstall(ctx, release, onProgress)
}

var startupJarPattern = regexp.MustCompile(`-jar\s+(\S+)`)

// EnsureArtifacts materializes inst's launch artifacts if they are not
// already present, satisfying internal/supervisor.ArtifactEnsurer. A
// present jar or run-script is treated as already-installed and the
// provider is not invoked again, matching spec §4.6.2's "ensure" semantics
// (idempotent — only the first start after create/clone/version-change
// pays the install cost).
func (p *Pipeline) EnsureArtifacts(ctx context.Context, inst domain.Instance, onProgress func(cur, total int64, msg string), onLog func(line string)) error {
	if p.alreadyInstalled(inst) {
		return nil
	}

	loader := inst.ModLoader
	if loader == "" {
		loader = "vanilla"
	}
	provider, err := p.registry.Get(loader)
	if err != nil {
		return err
	}

	req := InstallRequest{
		Dir:           inst.Path,
		MCVersion:     inst.Version,
		LoaderVersion: inst.LoaderVersion,
	}

	progressFn := ProgressFunc(func(cur, total int64, msg string) {
		if onProgress != nil {
			onProgress(cur, total, msg)
		}
	})
	logFn := LogFunc(func(line string) {
		if onLog != nil {
			onLog(line)
		}
	})

	if err := provider.Install(ctx, req, progressFn, logFn); err != nil {
		if p.metrics != nil {
			p.metrics.RecordDownloadFailure(loader)
		}
		return err
	}
	return nil
}

// alreadyInstalled reports whether the instance's configured launch
// target already exists on disk: the script file for LaunchBatFile, or
// the jar named in the startup line's "-jar <name>" token, or — for modern
// Forge/NeoForge, which don't rename a jar — a generated run script.
func (p *Pipeline) alreadyInstalled(inst domain.Instance) bool {
	settings := inst.Settings
	if settings.LaunchMethod == domain.LaunchBatFile {
		return settings.ScriptFile != "" && fileExists(settings.ScriptFile)
	}

	if m := startupJarPattern.FindStringSubmatch(settings.StartupLine); m != nil {
		if fileExists(filepath.Join(inst.Path, m[1])) {
			return true
		}
	}

	if inst.ModLoader == "forge" && isModernForge(inst.Version) || inst.ModLoader == "neoforge" {
		runScript := "run.sh"
		if isWindowsRuntime {
			runScript = "run.bat"
		}
		return fileExists(filepath.Join(inst.Path, runScript))
	}

	return false
}
