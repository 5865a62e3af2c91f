package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"videopipeline/internal/config"
)

// MinioGateway serves one bucket on an S3-compatible endpoint.
type MinioGateway struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

func NewMinioGateway(cfg config.Config) (*MinioGateway, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return &MinioGateway{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

func (g *MinioGateway) DownloadTo(ctx context.Context, key, path string) error {
	if err := g.client.FGetObject(ctx, g.bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat downloaded %s: %w", key, err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("fetch %s: %w", key, ErrEmptyObject)
	}
	return nil
}

func (g *MinioGateway) PutFile(ctx context.Context, key, path, contentType string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s for upload: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	_, err = g.client.PutObject(ctx, g.bucket, key, file, stat.Size(), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (g *MinioGateway) PublicURL(key string) string {
	return g.baseURL + "/" + strings.TrimLeft(key, "/")
}
