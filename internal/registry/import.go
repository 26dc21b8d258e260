package registry

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/google/uuid"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/utils"
	"github.com/serverforge/serverforge/internal/domain"
)

// ImportParams describes a source to materialize as a new instance.
type ImportParams struct {
	Name          string
	SourcePath    string // a directory, a .zip, or a .7z archive
	SubRoot       string // optional path within the archive to treat as the instance root
	StartupScript string // optional script filename (relative to SubRoot) to parse for RAM flags
	BaseDir       string
}

var xmxPattern = regexp.MustCompile(`(?i)-Xmx(\d+)([GgMm])`)
var xmsPattern = regexp.MustCompile(`(?i)-Xms(\d+)([GgMm])`)

// Import extracts source into a new instance directory, parses any
// provided startup script for -Xms/-Xmx values, detects the platform
// version from the jar manifest, populates a default startup line, persists
// the row, and re-reads it to confirm it is readable (spec §4.5 "Import").
func (r *Registry) Import(ctx context.Context, p ImportParams) (domain.Instance, error) {
	if err := utils.ValidateRequired(map[string]string{"name": p.Name, "source_path": p.SourcePath}); err != nil {
		return domain.Instance{}, errors.Validation(err.Error())
	}
	if _, err := r.GetByName(ctx, p.Name); err == nil {
		return domain.Instance{}, errors.AlreadyExists("instance", p.Name)
	}

	id := uuid.New()
	destDir := filepath.Join(p.BaseDir, id.String())
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return domain.Instance{}, errors.Internal("create import directory", err)
	}

	if err := extract(p.SourcePath, p.SubRoot, destDir); err != nil {
		os.RemoveAll(destDir)
		return domain.Instance{}, err
	}

	settings := domain.DefaultInstanceSettings()
	if p.StartupScript != "" {
		if maxRAM, maxUnit, minRAM, minUnit, ok := parseRAMFlags(filepath.Join(destDir, p.StartupScript)); ok {
			settings.RAMAmount = maxRAM
			settings.RAMUnit = maxUnit
			settings.MinRAMAmount = minRAM
			settings.MinRAMUnit = minUnit
		}
	}

	jarName, version := detectJar(destDir)
	if jarName != "" {
		settings.StartupLine = fmt.Sprintf("java -Xms{min_ram}{min_unit} -Xmx{max_ram}{max_unit} -jar %s nogui", jarName)
	}

	inst := domain.Instance{
		ID:        id,
		Name:      p.Name,
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Path:      destDir,
		Settings:  settings,
		Schedules: []domain.ScheduledTask{},
	}

	if err := r.insert(ctx, inst); err != nil {
		os.RemoveAll(destDir)
		return domain.Instance{}, err
	}

	// Verify the persisted row is readable, per spec §4.5.
	return r.GetByID(ctx, id)
}

func extract(sourcePath, subRoot, destDir string) error {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return errors.Internal("stat import source", err)
	}

	switch {
	case info.IsDir():
		return copyTree(filepath.Join(sourcePath, subRoot), destDir)
	case strings.HasSuffix(strings.ToLower(sourcePath), ".zip"):
		return extractZip(sourcePath, subRoot, destDir)
	case strings.HasSuffix(strings.ToLower(sourcePath), ".7z"):
		return extract7z(sourcePath, subRoot, destDir)
	default:
		return errors.New(errors.ErrCodeArchiveMalformed, "unsupported import source type")
	}
}

func copyTree(srcRoot, destDir string) error {
	files, err := listFiles(srcRoot)
	if err != nil {
		return errors.Internal("enumerate import source", err)
	}
	for _, rel := range files {
		if err := copyFile(filepath.Join(srcRoot, rel), filepath.Join(destDir, rel)); err != nil {
			return errors.Internal("copy import file "+rel, err)
		}
	}
	return nil
}

func extractZip(archivePath, subRoot, destDir string) error {
	rd, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.ArchiveMalformed(archivePath, err)
	}
	defer rd.Close()

	prefix := normalizeSubRoot(subRoot)
	for _, f := range rd.File {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == f.Name && prefix != "" {
			continue // not under the requested sub-root
		}
		if name == "" || f.FileInfo().IsDir() {
			continue
		}
		if err := extractZipEntry(f, filepath.Join(destDir, name)); err != nil {
			return errors.ArchiveMalformed(archivePath, err)
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func extract7z(archivePath, subRoot, destDir string) error {
	rd, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return errors.ArchiveMalformed(archivePath, err)
	}
	defer rd.Close()

	prefix := normalizeSubRoot(subRoot)
	for _, f := range rd.File {
		name := strings.TrimPrefix(f.Name, prefix)
		if name == f.Name && prefix != "" {
			continue
		}
		if name == "" || f.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(destDir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.ArchiveMalformed(archivePath, err)
		}
		if err := extract7zEntry(f, target); err != nil {
			return errors.ArchiveMalformed(archivePath, err)
		}
	}
	return nil
}

func extract7zEntry(f *sevenzip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.FileInfo().Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func normalizeSubRoot(subRoot string) string {
	if subRoot == "" {
		return ""
	}
	return strings.TrimSuffix(subRoot, "/") + "/"
}

// parseRAMFlags scans a startup script for -Xmx/-Xms flags, returning the
// max and min RAM amounts and units.
func parseRAMFlags(scriptPath string) (maxRAM int, maxUnit domain.RAMUnit, minRAM int, minUnit domain.RAMUnit, ok bool) {
	f, err := os.Open(scriptPath)
	if err != nil {
		return 0, "", 0, "", false
	}
	defer f.Close()

	var content strings.Builder
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		content.WriteString(scanner.Text())
		content.WriteString("\n")
	}
	text := content.String()

	if m := xmxPattern.FindStringSubmatch(text); m != nil {
		maxRAM, _ = strconv.Atoi(m[1])
		maxUnit = domain.RAMUnit(strings.ToUpper(m[2]))
		ok = true
	}
	if m := xmsPattern.FindStringSubmatch(text); m != nil {
		minRAM, _ = strconv.Atoi(m[1])
		minUnit = domain.RAMUnit(strings.ToUpper(m[2]))
		ok = true
	}
	return maxRAM, maxUnit, minRAM, minUnit, ok
}

// detectJar finds the first server jar at the instance root and attempts to
// read its embedded manifest for a platform version. Manifest parsing is
// best-effort: if no recognizable version is present, version is empty.
func detectJar(dir string) (jarName string, version string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", ""
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".jar") {
			continue
		}
		jarName = e.Name()
		version = readJarManifestVersion(filepath.Join(dir, e.Name()))
		return jarName, version
	}
	return "", ""
}

func readJarManifestVersion(jarPath string) string {
	rd, err := zip.OpenReader(jarPath)
	if err != nil {
		return ""
	}
	defer rd.Close()

	for _, f := range rd.File {
		if f.Name != "version.json" && f.Name != "META-INF/MANIFEST.MF" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, _ := io.ReadAll(rc)
		rc.Close()

		if f.Name == "version.json" {
			if v := extractJSONField(string(data), "id"); v != "" {
				return v
			}
		} else {
			if v := extractManifestField(string(data), "Implementation-Version"); v != "" {
				return v
			}
		}
	}
	return ""
}

func extractManifestField(manifest, key string) string {
	for _, line := range strings.Split(manifest, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, key+": ") {
			return strings.TrimSpace(strings.TrimPrefix(line, key+": "))
		}
	}
	return ""
}

func extractJSONField(jsonText, key string) string {
	marker := `"` + key + `"`
	idx := strings.Index(jsonText, marker)
	if idx < 0 {
		return ""
	}
	rest := jsonText[idx+len(marker):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return ""
	}
	rest = strings.TrimSpace(rest[colon+1:])
	if !strings.HasPrefix(rest, `"`) {
		return ""
	}
	rest = rest[1:]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return ""
	}
	return rest[:end]
}
