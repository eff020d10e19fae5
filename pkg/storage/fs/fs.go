package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

// ErrNotFound is returned by Get for unknown keys.
var ErrNotFound = errors.New("file not found")

// FsStorage keeps files on an afero filesystem: in memory or under a local directory.
type FsStorage struct {
	fs     afero.Fs
	logger logger.Logger
}

func NewFsStorage(fsys afero.Fs, log logger.Logger) *FsStorage {
	return &FsStorage{fs: fsys, logger: log}
}

// NewLocalStorage roots the storage at dir, creating it when missing.
func NewLocalStorage(dir string, log logger.Logger) (*FsStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return NewFsStorage(afero.NewBasePathFs(afero.NewOsFs(), dir), log), nil
}

func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if k == "/" {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}

func (s *FsStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := afero.WriteReader(s.fs, k, reader); err != nil {
		s.logger.Error("Failed to store file",
			logger.String("key", key),
			logger.Error(err),
		)
		return "", fmt.Errorf("failed to store file: %w", err)
	}
	return key, nil
}

func (s *FsStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(k)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to get file %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

func (s *FsStorage) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(k); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	// drop the per-run directory once empty
	if dir := path.Dir(k); dir != "/" {
		if empty, _ := afero.IsEmpty(s.fs, dir); empty {
			_ = s.fs.Remove(dir)
		}
	}
	return nil
}

func (s *FsStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
	var expired []string
	err := afero.Walk(s.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !info.IsDir() && info.ModTime().Before(threshold) {
			expired = append(expired, filepath.ToSlash(p))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}

	for _, p := range expired {
		if err := s.Delete(ctx, p); err != nil {
			s.logger.Error("Failed to delete expired file",
				logger.String("key", p),
				logger.Error(err),
			)
			continue
		}
		s.logger.Info("Deleted expired file", logger.String("key", p))
	}
	return nil
}
