package service

import (
	"context"
	"fmt"
	"io"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioService serves exported tracker workbooks from an S3 bucket. The
// dashboard only reads; uploads happen outside of it.
type MinioService struct {
	client *minio.Client
	bucket string
}

func NewMinioService(cfg *config.MinioConfig) (*MinioService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// CheckBucket verifies the bucket is reachable and exists
func (s *MinioService) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return connectionError("check bucket "+s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %s does not exist", ErrConnection, s.bucket)
	}
	return nil
}

// OpenWorkbook streams the object named ref. The object is stat'ed first
// so a missing key fails here rather than on the first read.
func (s *MinioService) OpenWorkbook(ctx context.Context, ref string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, connectionError("get object "+ref, err)
	}

	if _, err := obj.Stat(); err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: object %s not found in bucket %s", ErrConnection, ref, s.bucket)
		}
		return nil, connectionError("stat object "+ref, err)
	}
	return obj, nil
}
