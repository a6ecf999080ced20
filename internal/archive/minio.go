// Package archive copies scan outputs to S3-compatible object storage.
package archive

import (
	"context"
	"fmt"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
	region string
}

func New(opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Store{client: cli, bucket: opts.Bucket, region: opts.Region}, nil
}

// Upload stores each local file under prefix/<base name>, creating the bucket
// first if needed. It returns the object URLs in input order.
func (s *Store) Upload(ctx context.Context, prefix string, files ...string) ([]string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
	}

	urls := make([]string, 0, len(files))
	for _, f := range files {
		key := ObjectKey(prefix, f)
		_, err := s.client.FPutObject(ctx, s.bucket, key, f, minio.PutObjectOptions{
			ContentType: contentType(f),
		})
		if err != nil {
			return urls, fmt.Errorf("failed to upload %s: %w", f, err)
		}
		u := *s.client.EndpointURL()
		u.Path = path.Join("/", s.bucket, key)
		urls = append(urls, u.String())
	}
	return urls, nil
}

func ObjectKey(prefix, file string) string {
	return path.Join(prefix, filepath.Base(file))
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
