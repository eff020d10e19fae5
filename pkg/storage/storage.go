package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/arena2036/vec-aas-uploader/config"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
	"github.com/arena2036/vec-aas-uploader/pkg/storage/fs"
	"github.com/arena2036/vec-aas-uploader/pkg/storage/minio"
	"github.com/arena2036/vec-aas-uploader/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeMemory StorageType = config.StorageMemory
	StorageTypeLocal  StorageType = config.StorageLocal
	StorageTypeS3     StorageType = config.StorageS3
	StorageTypeMinio  StorageType = config.StorageMinio
)

// Storage holds uploaded files between submission and run execution.
type Storage interface {
	// Store 存储文件, returns the key to load it with
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete 删除文件
	Delete(ctx context.Context, key string) error
	// CleanupBefore 清理过期文件
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (Storage, error) {
	log = log.Named("storage")

	switch StorageType(cfg.Storage.Type) {
	case StorageTypeMemory:
		return fs.NewFsStorage(afero.NewMemMapFs(), log), nil
	case StorageTypeLocal:
		return fs.NewLocalStorage(cfg.Storage.LocalPath, log)
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, &cfg.S3, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, &cfg.Minio, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// ReadAll loads a stored object fully, refusing anything above limit bytes.
func ReadAll(ctx context.Context, s Storage, key string, limit int64) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("stored file %s exceeds %d bytes", key, limit)
	}
	return data, nil
}
