package archive

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"match-admin/internal/config"
)

// MinIO MinIO 对象存储归档
type MinIO struct {
	mc     *minio.Client
	bucket string
}

// NewMinIO 创建 MinIO 归档客户端
func NewMinIO(cfg config.MinIOConfig) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "match-pgns"
	}

	return &MinIO{mc: mc, bucket: bucket}, nil
}

// EnsureBucket 确保 bucket 存在
func (c *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("[archive.minio] created bucket=%s", c.bucket)
	}
	return nil
}

func (c *MinIO) StorePGN(ctx context.Context, runID string, taskIndex int, pgn string) error {
	key := ObjectKey(runID, taskIndex, time.Now())
	_, err := c.mc.PutObject(ctx, c.bucket, key, strings.NewReader(pgn), int64(len(pgn)), minio.PutObjectOptions{
		ContentType: "application/x-chess-pgn",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ListPGN 列出某个 Run 的全部 PGN 对象路径
func (c *MinIO) ListPGN(ctx context.Context, runID string) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    fmt.Sprintf("pgns/%s/", runID),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// Download 下载对象，调用方负责关闭返回的 ReadCloser
func (c *MinIO) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	// 验证对象存在（GetObject 不会立即返回错误）
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return obj, nil
}
