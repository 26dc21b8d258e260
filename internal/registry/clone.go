package registry

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/serverforge/serverforge/infrastructure/errors"
	"github.com/serverforge/serverforge/internal/domain"
)

// CopyProgressFunc reports recursive-copy progress during Clone.
type CopyProgressFunc func(currentFileIndex, totalFiles int, fileName string)

// Clone reads the source row, recursively copies its directory tree under
// a new identifier, and inserts a new row with copied settings and
// schedules, status reset to stopped (spec §4.5 "Clone").
func (r *Registry) Clone(ctx context.Context, sourceID uuid.UUID, newName, baseDir string, onProgress CopyProgressFunc) (domain.Instance, error) {
	src, err := r.GetByID(ctx, sourceID)
	if err != nil {
		return domain.Instance{}, err
	}
	if _, err := r.GetByName(ctx, newName); err == nil {
		return domain.Instance{}, errors.AlreadyExists("instance", newName)
	}

	newID := uuid.New()
	destDir := filepath.Join(baseDir, newID.String())

	files, err := listFiles(src.Path)
	if err != nil {
		return domain.Instance{}, errors.Internal("enumerate source files", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return domain.Instance{}, errors.Internal("create clone directory", err)
	}

	for i, rel := range files {
		if onProgress != nil {
			onProgress(i+1, len(files), rel)
		}
		if err := copyFile(filepath.Join(src.Path, rel), filepath.Join(destDir, rel)); err != nil {
			os.RemoveAll(destDir)
			return domain.Instance{}, errors.Internal("copy file "+rel, err)
		}
	}

	schedules := make([]domain.ScheduledTask, len(src.Schedules))
	copy(schedules, src.Schedules)

	clone := domain.Instance{
		ID:            newID,
		Name:          newName,
		Version:       src.Version,
		ModLoader:     src.ModLoader,
		LoaderVersion: src.LoaderVersion,
		CreatedAt:     src.CreatedAt,
		Path:          destDir,
		Settings:      src.Settings,
		Schedules:     schedules,
	}

	if err := r.insert(ctx, clone); err != nil {
		os.RemoveAll(destDir)
		return domain.Instance{}, err
	}
	return clone, nil
}

// listFiles walks root and returns every regular file's path relative to root.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
