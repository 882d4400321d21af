// Package s3bucket stores files through the AWS SDK. It talks to AWS S3
// directly or, with Endpoint set, to any S3-compatible service using
// path-style addressing.
package s3bucket

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sakif/blockhub/internal/storage"
)

// api is the subset of *s3.Client used here.
type api interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ storage.Store = (*Bucket)(nil)

type Bucket struct {
	api       api
	bucket    string
	publicURL string
}

type Options struct {
	Endpoint  string // optional; full URL of an S3-compatible service
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	PublicURL string
}

func New(ctx context.Context, opts Options) (*Bucket, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3bucket: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Bucket{api: client, bucket: opts.Bucket, publicURL: opts.PublicURL}, nil
}

// Put uploads r. Callers should pass a seekable reader; the SDK needs one to
// sign the payload over plain HTTP.
func (b *Bucket) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	if contentType == "" {
		contentType = storage.DefaultContentType
	}

	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(name),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return storage.Object{}, fmt.Errorf("s3bucket: uploading %s: %w", name, err)
	}

	return storage.Object{Name: name, URL: storage.PublicURL(b.publicURL, name)}, nil
}

func (b *Bucket) Get(ctx context.Context, name string) (*storage.Reader, error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3bucket: downloading %s: %w", name, err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = storage.DefaultContentType
	}
	return &storage.Reader{
		ReadCloser:  out.Body,
		ContentType: contentType,
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}
