// Package objectstore fronts the external attachment binary store. The API
// never proxies file bytes: clients upload and download straight against
// MinIO using short-lived presigned URLs, and only metadata crosses the API.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client *minio.Client
	bucket string
	urlTTL time.Duration
}

func New(endpoint, accessKey, secretKey, bucket string, useSSL bool, urlTTL time.Duration) (*Service, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Service{client: client, bucket: bucket, urlTTL: urlTTL}, nil
}

// EnsureBucket creates the attachment bucket if it does not exist yet.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// NewObjectKey returns a collision-free storage key for an upload. The
// original file name is kept as the key's basename so downloads stay
// recognizable in bucket listings.
func (s *Service) NewObjectKey(commentID, fileName string) string {
	return path.Join(commentID, uuid.NewString(), path.Base(fileName))
}

// UploadURL issues a presigned PUT for the given object key.
func (s *Service) UploadURL(ctx context.Context, key string) (string, error) {
	presigned, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return presigned.String(), nil
}

// DownloadURL issues a presigned GET that forces the original file name in
// the content disposition.
func (s *Service) DownloadURL(ctx context.Context, key, fileName string) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, params)
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return presigned.String(), nil
}

// Remove deletes the object behind a detached attachment.
func (s *Service) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
