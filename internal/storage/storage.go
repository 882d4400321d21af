// Package storage is the bridge to object storage for uploaded block and map
// files. Backends live in subpackages: miniobucket (minio-go, works with any
// S3-compatible provider) and s3bucket (aws-sdk-go-v2).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Get when the object does not exist.
	ErrNotFound = errors.New("storage: object not found")
	// ErrNotConfigured is returned by Disabled.
	ErrNotConfigured = errors.New("file storage is not configured")
)

// DefaultContentType is used when the uploader did not send one.
const DefaultContentType = "application/octet-stream"

// Object identifies a stored file.
type Object struct {
	Name string `json:"fileName"`
	URL  string `json:"url"`
}

// Reader streams a stored file. Callers must Close it.
type Reader struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// Store is implemented by every backend.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (Object, error)
	Get(ctx context.Context, name string) (*Reader, error)
}

// Disabled is the Store used when no bucket is configured.
type Disabled struct{}

func (Disabled) Put(context.Context, string, io.Reader, int64, string) (Object, error) {
	return Object{}, ErrNotConfigured
}

func (Disabled) Get(context.Context, string) (*Reader, error) {
	return nil, ErrNotConfigured
}

// ObjectName builds the key an upload is stored under:
// "<unix millis>-<base name>", with anything outside [A-Za-z0-9._-]
// replaced by '-'.
func ObjectName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	name := strings.Trim(b.String(), ".-")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), name)
}

// ValidName reports whether name could have come from ObjectName. Download
// requests are checked with it before reaching a backend.
func ValidName(name string) bool {
	if name == "" || len(name) > 255 || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

// PublicURL joins the bucket's public base URL and an object name. It
// returns "" when no base is configured.
func PublicURL(base, name string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(name)
}
