package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// putAttempts bounds retries on transient write failures.
const putAttempts = 3

// MinioConfig holds the connection settings for the object store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Minio implements Gateway against a MinIO or S3-compatible endpoint.
type Minio struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewMinio connects to the object store and ensures the bucket exists.
func NewMinio(ctx context.Context, cfg MinioConfig, logger *slog.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Minio{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (m *Minio) Put(ctx context.Context, key string, data []byte, opts PutOptions) error {
	err := retry.Do(
		func() error {
			_, err := m.client.PutObject(ctx, m.bucket, key,
				bytes.NewReader(data), int64(len(data)),
				minio.PutObjectOptions{
					ContentType:  opts.ContentType,
					CacheControl: opts.CacheControl,
				})
			return err
		},
		retry.Attempts(putAttempts),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("retrying object write",
				"key", key,
				"attempt", n+1,
				"error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("writing object %q: %w", key, err)
	}
	return nil
}

func (m *Minio) Copy(ctx context.Context, srcKey, dstKey string, opts PutOptions) error {
	src := minio.CopySrcOptions{Bucket: m.bucket, Object: srcKey}
	dst := minio.CopyDestOptions{
		Bucket:          m.bucket,
		Object:          dstKey,
		ReplaceMetadata: true,
		UserMetadata: map[string]string{
			"Content-Type":  opts.ContentType,
			"Cache-Control": opts.CacheControl,
		},
	}
	if _, err := m.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copying object %q to %q: %w", srcKey, dstKey, err)
	}
	return nil
}

func (m *Minio) Remove(ctx context.Context, key string) error {
	err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("removing object %q: %w", key, err)
	}
	return nil
}

func (m *Minio) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetching object %q: %w", key, err)
	}
	// GetObject is lazy; surface missing objects here.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("fetching object %q: %w", key, err)
	}
	return obj, nil
}

func (m *Minio) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %q: %w", key, err)
	}
	return u.String(), nil
}

var _ Gateway = (*Minio)(nil)
