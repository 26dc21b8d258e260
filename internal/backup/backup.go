// Package backup implements the Backup Engine (spec §4.10): archiving an
// instance directory into a timestamped zip, listing and deleting archives,
// and restoring an archive back over an instance directory.
package backup

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/infrastructure/logging"
	"github.com/serverforge/serverforge/infrastructure/metrics"
	"github.com/serverforge/serverforge/internal/domain"
	"github.com/serverforge/serverforge/internal/pathsafe"
)

// ProgressFunc reports (index, total) as a backup archive is built, one
// call per file streamed into the zip (spec §4.10).
type ProgressFunc func(index, total int)

// Engine creates, lists, deletes, and restores per-instance backup
// archives under a single base directory (spec §6: "backups/<instance_id>/").
type Engine struct {
	baseDir string
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New creates a backup Engine rooted at baseDir.
func New(baseDir string, logger *logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{baseDir: baseDir, logger: logger, metrics: m}
}

func (e *Engine) instanceDir(instanceID uuid.UUID) string {
	return filepath.Join(e.baseDir, instanceID.String())
}

// CreateBackup walks sourceDir, counts entries, then streams each file into
// "<base>/<instance_id>/<name>-<timestamp>.zip", reporting progress as it
// goes (spec §4.10).
func (e *Engine) CreateBackup(ctx context.Context, instanceID uuid.UUID, sourceDir, name string, onProgress ProgressFunc) (domain.BackupInfo, error) {
	start := time.Now()

	dir := e.instanceDir(instanceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.BackupInfo{}, errors.Internal("create backup directory", err)
	}

	files, err := listFiles(sourceDir)
	if err != nil {
		e.logBackup(ctx, instanceID, "create", 0, start, err)
		return domain.BackupInfo{}, errors.Internal("enumerate backup source", err)
	}

	archiveName := fmt.Sprintf("%s-%s.zip", name, time.Now().UTC().Format("20060102-150405"))
	archivePath := filepath.Join(dir, archiveName)

	info, err := e.writeArchive(ctx, archivePath, sourceDir, files, onProgress)
	if err != nil {
		os.Remove(archivePath)
		e.logBackup(ctx, instanceID, "create", 0, start, err)
		if e.metrics != nil {
			e.metrics.BackupFailures.WithLabelValues(instanceID.String()).Inc()
		}
		return domain.BackupInfo{}, err
	}

	e.logBackup(ctx, instanceID, "create", info.SizeBytes, start, nil)
	if e.metrics != nil {
		e.metrics.BackupDuration.WithLabelValues(instanceID.String()).Observe(time.Since(start).Seconds())
		e.metrics.BackupSizeBytes.WithLabelValues(instanceID.String()).Observe(float64(info.SizeBytes))
	}
	return info, nil
}

func (e *Engine) writeArchive(ctx context.Context, archivePath, sourceDir string, files []string, onProgress ProgressFunc) (domain.BackupInfo, error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return domain.BackupInfo{}, errors.Internal("create backup archive", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	total := len(files)
	for i, rel := range files {
		select {
		case <-ctx.Done():
			zw.Close()
			return domain.BackupInfo{}, ctx.Err()
		default:
		}

		if err := addFileToZip(zw, filepath.Join(sourceDir, rel), rel); err != nil {
			zw.Close()
			return domain.BackupInfo{}, errors.Internal("archive backup file "+rel, err)
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}
	if err := zw.Close(); err != nil {
		return domain.BackupInfo{}, errors.Internal("finalize backup archive", err)
	}

	stat, err := f.Stat()
	if err != nil {
		return domain.BackupInfo{}, errors.Internal("stat backup archive", err)
	}

	return domain.BackupInfo{
		Name:      filepath.Base(archivePath),
		Path:      archivePath,
		SizeBytes: stat.Size(),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func addFileToZip(zw *zip.Writer, srcPath, rel string) error {
	info, err := os.Lstat(srcPath)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	w, err := zw.Create(filepath.ToSlash(rel))
	if err != nil {
		return err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(w, src)
	return err
}

func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	sort.Strings(files)
	return files, err
}

// ListBackups enumerates "<base>/<instance_id>/" and builds one BackupInfo
// record per ".zip" file found (spec §4.10).
func (e *Engine) ListBackups(instanceID uuid.UUID) ([]domain.BackupInfo, error) {
	dir := e.instanceDir(instanceID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Internal("list backups", err)
	}

	var out []domain.BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, domain.BackupInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteBackup removes "<base>/<instance_id>/<name>" (spec §4.10).
func (e *Engine) DeleteBackup(instanceID uuid.UUID, name string) error {
	path, err := pathsafe.Join(e.instanceDir(instanceID), name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("backup", name)
		}
		return errors.Internal("delete backup", err)
	}
	return nil
}

// RestoreBackup wipes targetDir recursively, then extracts the named
// archive into it. This is an intentional full replacement; serverforge
// offers no partial-overwrite restore (spec §4.10).
func (e *Engine) RestoreBackup(ctx context.Context, instanceID uuid.UUID, name, targetDir string) error {
	start := time.Now()

	archivePath, err := pathsafe.Join(e.instanceDir(instanceID), name)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(targetDir); err != nil {
		e.logBackup(ctx, instanceID, "restore", 0, start, err)
		return errors.Internal("wipe restore target", err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return errors.Internal("recreate restore target", err)
	}

	size, err := extractArchive(ctx, archivePath, targetDir)
	e.logBackup(ctx, instanceID, "restore", size, start, err)
	if err != nil {
		if e.metrics != nil {
			e.metrics.BackupFailures.WithLabelValues(instanceID.String()).Inc()
		}
		return err
	}
	if e.metrics != nil {
		e.metrics.BackupDuration.WithLabelValues(instanceID.String()).Observe(time.Since(start).Seconds())
	}
	return nil
}

func extractArchive(ctx context.Context, archivePath, targetDir string) (int64, error) {
	rd, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, errors.ArchiveMalformed(archivePath, err)
	}
	defer rd.Close()

	var total int64
	for _, f := range rd.File {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		if f.FileInfo().IsDir() {
			continue
		}
		target, err := pathsafe.Join(targetDir, f.Name)
		if err != nil {
			return total, errors.ArchiveMalformed(archivePath, err)
		}
		n, err := extractEntry(f, target)
		if err != nil {
			return total, errors.ArchiveMalformed(archivePath, err)
		}
		total += n
	}
	return total, nil
}

func extractEntry(f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, rc)
}

func (e *Engine) logBackup(ctx context.Context, instanceID uuid.UUID, operation string, sizeBytes int64, start time.Time, err error) {
	if e.logger == nil {
		return
	}
	e.logger.LogBackup(ctx, instanceID.String(), operation, sizeBytes, time.Since(start), err)
}
