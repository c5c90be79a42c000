package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore Google Cloud Storage 附件存储
type GCSStore struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore 创建 GCS 附件存储
// credentialsJSON 为空时使用 Application Default Credentials
func NewGCSStore(ctx context.Context, bucket, credentialsJSON, publicBaseURL string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("gcs bucket %q not found or not accessible: %w", bucket, err)
	}

	if publicBaseURL == "" {
		publicBaseURL = "https://storage.googleapis.com"
	}
	return &GCSStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Upload 上传对象
func (s *GCSStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	wc.Metadata = map[string]string{
		"fileName": path.Base(objectPath),
	}

	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer for %s: %w", objectPath, err)
	}
	return s.url(objectPath), nil
}

// List 列出前缀下的对象
func (s *GCSStore) List(ctx context.Context, prefix string) ([]FileMetadata, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	out := make([]FileMetadata, 0)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		fileName := attrs.Metadata["fileName"]
		if fileName == "" {
			fileName = path.Base(attrs.Name)
		}
		out = append(out, FileMetadata{
			Name:        attrs.Name,
			URL:         s.url(attrs.Name),
			FileName:    fileName,
			UploadedAt:  attrs.Created,
			ContentType: attrs.ContentType,
			Size:        attrs.Size,
		})
	}
	return out, nil
}

// Close 关闭客户端
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) url(objectPath string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, objectPath)
}
