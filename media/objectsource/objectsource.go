// Package objectsource is the s3:// media.Source, backed by any
// S3-compatible object store through minio-go.
package objectsource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hazyhaar/vitrine/connectivity"
	"github.com/hazyhaar/vitrine/horosafe"
	"github.com/hazyhaar/vitrine/media"
)

// Scheme is the URL scheme this source serves.
const Scheme = "s3"

// ErrNotFound is wrapped when the object does not exist or is not readable.
var ErrNotFound = errors.New("objectsource: object not found")

// Config holds object store settings.
type Config struct {
	// Endpoint is host[:port] of the S3 API (e.g. "localhost:9000").
	Endpoint string
	// AccessKey and SecretKey are static V4 credentials.
	AccessKey string
	SecretKey string
	// UseSSL enables HTTPS to the endpoint.
	UseSSL bool
	// Region skips bucket location lookups when set.
	Region string
	// Client is an optional pre-configured client. When set, the connection
	// fields above are ignored.
	Client *minio.Client
	// MaxBytes caps downloaded objects. Default: 25MB.
	MaxBytes int64
}

func (c *Config) validate() error {
	if c.Client != nil {
		return nil
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when client is not provided")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required when client is not provided")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required when client is not provided")
	}
	return nil
}

// Source reads media objects addressed as s3://bucket/key.
type Source struct {
	client   *minio.Client
	maxBytes int64
}

var _ media.Source = (*Source)(nil)

// New creates a Source.
func New(cfg Config) (*Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client := cfg.Client
	if client == nil {
		var err error
		client, err = minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create minio client: %w", err)
		}
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &Source{client: client, maxBytes: maxBytes}, nil
}

// ParseURL splits s3://bucket/key into its parts.
func ParseURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("objectsource: invalid URL: %w", err)
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return "", "", fmt.Errorf("objectsource: scheme %q, want %s", u.Scheme, Scheme)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("objectsource: %q needs both bucket and key", raw)
	}
	return bucket, key, nil
}

// Probe returns the object's last-modified time as an HTTP date.
func (s *Source) Probe(ctx context.Context, raw string) (string, error) {
	bucket, key, err := ParseURL(raw)
	if err != nil {
		return "", connectivity.Permanentf("%w: %w", media.ErrProbeFailed, err)
	}
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", media.ErrProbeFailed, translate(err))
	}
	if info.LastModified.IsZero() {
		return "", nil
	}
	return media.FormatToken(info.LastModified), nil
}

// Download reads the whole object.
func (s *Source) Download(ctx context.Context, raw string) (*media.Payload, error) {
	bucket, key, err := ParseURL(raw)
	if err != nil {
		return nil, connectivity.Permanentf("%w: %w", media.ErrDownloadFailed, err)
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrDownloadFailed, translate(err))
	}
	defer obj.Close()

	// Stat issues the GET and surfaces NoSuchKey before any read.
	info, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrDownloadFailed, translate(err))
	}
	if info.Size > s.maxBytes {
		return nil, connectivity.Permanentf("%w: %s: %w: %d bytes, limit %d",
			media.ErrDownloadFailed, raw, horosafe.ErrResponseTooLarge, info.Size, s.maxBytes)
	}
	body, err := horosafe.LimitedReadAll(obj, s.maxBytes)
	if errors.Is(err, horosafe.ErrResponseTooLarge) {
		return nil, connectivity.Permanentf("%w: read %s: %w", media.ErrDownloadFailed, raw, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", media.ErrDownloadFailed, raw, translate(err))
	}

	ct := info.ContentType
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(body)
	}
	var token string
	if !info.LastModified.IsZero() {
		token = media.FormatToken(info.LastModified)
	}
	return &media.Payload{Bytes: body, ContentType: ct, Token: token}, nil
}

func translate(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "AccessDenied":
		return connectivity.Permanentf("%w: %w", ErrNotFound, err)
	}
	return err
}
