package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bgplgpro/bgplgpro/internal/config"
	"github.com/bgplgpro/bgplgpro/pkg/logger"
)

// Archiver 查询原始输出归档
type Archiver interface {
	Store(ctx context.Context, server, queryID string, output []byte) (string, error)
}

// NewArchiver 根据配置创建归档后端，未启用时返回nil
func NewArchiver(cfg config.ArchiveConfig) (Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Backend {
	case "minio":
		return newMinioArchiver(cfg.Minio)
	case "local", "":
		return &localArchiver{dir: cfg.Local.Dir}, nil
	default:
		return nil, fmt.Errorf("未知的归档后端: %s", cfg.Backend)
	}
}

// archiveKey 归档对象路径：{server}/{yyyymmdd}/{queryID}.txt
func archiveKey(server, queryID string) string {
	return path.Join(server, time.Now().Format("20060102"), queryID+".txt")
}

// localArchiver 本地目录归档
type localArchiver struct {
	dir string
}

func (a *localArchiver) Store(_ context.Context, server, queryID string, output []byte) (string, error) {
	key := archiveKey(server, queryID)
	full := filepath.Join(a.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}
	if err := os.WriteFile(full, output, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}
	return full, nil
}

// minioArchiver MinIO对象存储归档
type minioArchiver struct {
	client *minio.Client
	bucket string
	prefix string
}

func newMinioArchiver(cfg config.MinioConfig) (*minioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	a := &minioArchiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Infof("created archive bucket: %s", cfg.Bucket)
	}
	return a, nil
}

func (a *minioArchiver) Store(ctx context.Context, server, queryID string, output []byte) (string, error) {
	key := archiveKey(server, queryID)
	if a.prefix != "" {
		key = path.Join(a.prefix, key)
	}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(output), int64(len(output)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}
