package artifacts

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/serverforge/serverforge/infrastructure/resilience"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/downloader"
	"github.com/serverforge/serverforge/internal/pathsafe"
)

// ManagedJavaVersion describes one JDK this control plane downloaded and
// unpacked under java/, so instances can pin a specific runtime
// independent of whatever "java" resolves to on the host PATH.
type ManagedJavaVersion struct {
	ID           string
	Name         string
	Path         string
	Version      string
	MajorVersion int
}

// adoptiumRelease mirrors java/types.rs's AdoptiumRelease: one entry from
// Eclipse Adoptium's /v3/assets/latest response.
type adoptiumRelease struct {
	ReleaseName string `json:"release_name"`
	Binaries    []struct {
		Package struct {
			Link     string `json:"link"`
			Name     string `json:"name"`
			Checksum string `json:"checksum"`
			Size     int64  `json:"size"`
		} `json:"package"`
	} `json:"binaries"`
}

var javaVersionPattern = regexp.MustCompile(`version "(\d+)\.([^"]*)"`)

// JavaManager provisions and discovers managed JDKs under baseDir (spec §6
// on-disk layout: java/<release_name>/bin/java[.exe]), grounded on
// original_source's java/mod.rs, java/detection.rs and java/download.rs.
type JavaManager struct {
	baseDir string
	client  *client
	breaker *resilience.CircuitBreaker
	dl      *downloader.Downloader
}

// NewJavaManager builds a JavaManager rooted at baseDir (typically
// <exe-dir>/java).
func NewJavaManager(baseDir string, c *client, dl *downloader.Downloader) *JavaManager {
	return &JavaManager{baseDir: baseDir, client: c, breaker: newBreaker("adoptium"), dl: dl}
}

// BaseDir returns the directory managed Java versions are installed under.
func (j *JavaManager) BaseDir() string { return j.baseDir }

// DiscoverInstalledVersions scans baseDir for already-installed JDKs.
func (j *JavaManager) DiscoverInstalledVersions(ctx context.Context) ([]ManagedJavaVersion, error) {
	if err := os.MkdirAll(j.baseDir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "create java directory", err)
	}

	entries, err := os.ReadDir(j.baseDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, "read java directory", err)
	}

	var versions []ManagedJavaVersion
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if v, ok := j.identifyJavaVersion(filepath.Join(j.baseDir, e.Name())); ok {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func javaBinaryName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// identifyJavaVersion runs "java -version" inside dir/bin and parses the
// openjdk-style output, mirroring detection.rs's identify_java_version.
func (j *JavaManager) identifyJavaVersion(dir string) (ManagedJavaVersion, bool) {
	javaExe := filepath.Join(dir, "bin", javaBinaryName())
	if !fileExists(javaExe) {
		return ManagedJavaVersion{}, false
	}

	out, err := exec.Command(javaExe, "-version").CombinedOutput()
	if err != nil {
		return ManagedJavaVersion{}, false
	}

	m := javaVersionPattern.FindStringSubmatch(string(out))
	if m == nil {
		return ManagedJavaVersion{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return ManagedJavaVersion{}, false
	}

	return ManagedJavaVersion{
		ID:           filepath.Base(dir),
		Name:         fmt.Sprintf("Java %d (Adoptium)", major),
		Path:         javaExe,
		Version:      m[1] + "." + m[2],
		MajorVersion: major,
	}, true
}

// GetLatestRelease queries Adoptium for the newest hotspot JDK release of
// majorVersion for the current host OS/arch.
func (j *JavaManager) GetLatestRelease(ctx context.Context, majorVersion int) (adoptiumRelease, error) {
	url := fmt.Sprintf(
		"https://api.adoptium.net/v3/assets/latest/%d/hotspot?architecture=%s&image_type=jdk&os=%s&vendor=eclipse",
		majorVersion, adoptiumArch(), adoptiumOS(),
	)
	var releases []adoptiumRelease
	if err := j.client.getJSON(ctx, j.breaker, "adoptium", fmt.Sprintf("adoptium:%d:%s:%s", majorVersion, adoptiumOS(), adoptiumArch()), url, &releases); err != nil {
		return adoptiumRelease{}, err
	}
	if len(releases) == 0 {
		return adoptiumRelease{}, fmt.Errorf("artifacts: no Adoptium releases found for Java %d", majorVersion)
	}
	return releases[0], nil
}

func adoptiumOS() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "mac"
	default:
		return "linux"
	}
}

func adoptiumArch() string {
	switch runtime.GOARCH {
	case "arm64":
		return "aarch64"
	default:
		return "x64"
	}
}

// DownloadAndInstall downloads release's JDK archive, verifies its SHA256,
// and extracts it under baseDir/<release_name>, matching java/download.rs's
// download_and_install.
func (j *JavaManager) DownloadAndInstall(ctx context.Context, release adoptiumRelease, onProgress ProgressFunc) (ManagedJavaVersion, error) {
	if len(release.Binaries) == 0 {
		return ManagedJavaVersion{}, fmt.Errorf("artifacts: Adoptium release %s has no binaries", release.ReleaseName)
	}
	pkg := release.Binaries[0].Package

	tempFile := filepath.Join(os.TempDir(), "serverforge-java", pkg.Name)
	if err := os.MkdirAll(filepath.Dir(tempFile), 0o755); err != nil {
		return ManagedJavaVersion{}, errors.Wrap(errors.ErrCodeInternal, "create java temp dir", err)
	}

	if err := j.dl.DownloadWithResumption(ctx, domain.ArtifactDescriptor{
		URL:        pkg.Link,
		TargetPath: tempFile,
		TotalSize:  pkg.Size,
		ExpectedHash: &domain.ExpectedHash{
			Hex:       pkg.Checksum,
			Algorithm: domain.HashSHA256,
		},
	}, func(cur, total int64) {
		if onProgress != nil {
			onProgress(cur, total, "Downloading Java runtime...")
		}
	}); err != nil {
		return ManagedJavaVersion{}, err
	}
	defer os.Remove(tempFile)

	installDir := filepath.Join(j.baseDir, release.ReleaseName)
	if err := os.RemoveAll(installDir); err != nil {
		return ManagedJavaVersion{}, errors.Wrap(errors.ErrCodeInternal, "clear java install dir", err)
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return ManagedJavaVersion{}, errors.Wrap(errors.ErrCodeInternal, "create java install dir", err)
	}

	if err := extractArchive(tempFile, installDir); err != nil {
		return ManagedJavaVersion{}, errors.ArchiveMalformed(tempFile, err)
	}

	root := installDir
	if entries, err := os.ReadDir(installDir); err == nil && len(entries) > 0 {
		candidate := filepath.Join(installDir, entries[0].Name())
		if fileExists(filepath.Join(candidate, "bin")) {
			root = candidate
		}
	}

	version, ok := j.identifyJavaVersion(root)
	if !ok {
		return ManagedJavaVersion{}, fmt.Errorf("artifacts: failed to identify installed Java version in %s", root)
	}
	return version, nil
}

// DeleteVersion removes a previously installed managed JDK by id.
func (j *JavaManager) DeleteVersion(id string) error {
	return os.RemoveAll(filepath.Join(j.baseDir, id))
}

// extractArchive unpacks a .zip (Windows Adoptium builds) or .tar.gz
// (everything else) into dir.
func extractArchive(archivePath, dir string) error {
	if strings.HasSuffix(strings.ToLower(archivePath), ".zip") {
		return extractZip(archivePath, dir)
	}
	return extractTarGz(archivePath, dir)
}

func extractZip(archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := pathsafe.Join(dir, f.Name)
		if err != nil {
			return errors.ArchiveMalformed(archivePath, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := copyZipEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func copyZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func extractTarGz(archivePath, dir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target, err := pathsafe.Join(dir, hdr.Name)
		if err != nil {
			return errors.ArchiveMalformed(archivePath, err)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
}
