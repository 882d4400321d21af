// Package miniobucket stores files in any S3-compatible bucket (MinIO,
// Backblaze B2, R2, AWS) through minio-go.
package miniobucket

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sakif/blockhub/internal/storage"
)

// client is the subset of *minio.Client used here.
type client interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

var _ storage.Store = (*Bucket)(nil)

type Bucket struct {
	client    client
	bucket    string
	publicURL string
}

type Options struct {
	Endpoint  string // host[:port]; a scheme, if present, overrides UseSSL
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func New(opts Options) (*Bucket, error) {
	endpoint, secure := splitEndpoint(opts.Endpoint, opts.UseSSL)

	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("miniobucket: creating client for %s: %w", endpoint, err)
	}

	return &Bucket{client: c, bucket: opts.Bucket, publicURL: opts.PublicURL}, nil
}

func (b *Bucket) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	if contentType == "" {
		contentType = storage.DefaultContentType
	}

	_, err := b.client.PutObject(ctx, b.bucket, name, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.Object{}, fmt.Errorf("miniobucket: uploading %s: %w", name, err)
	}

	return storage.Object{Name: name, URL: storage.PublicURL(b.publicURL, name)}, nil
}

// Get stats the object first so a missing key is reported before any bytes
// are streamed.
func (b *Bucket) Get(ctx context.Context, name string) (*storage.Reader, error) {
	info, err := b.client.StatObject(ctx, b.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("miniobucket: stat %s: %w", name, err)
	}

	obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("miniobucket: downloading %s: %w", name, err)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	return &storage.Reader{ReadCloser: obj, ContentType: contentType, Size: info.Size}, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchObject"
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint, useSSL
	}
	return u.Host, u.Scheme == "https"
}
