// Package imagecache provides an S3-compatible object cache for ERP product
// images, so the Transformer can base64-embed an image without re-fetching
// it from the ERP on every transform that touches the same entity.
package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/atlasdevji/prowhey-middleware/config"
)

// sharedHTTPClient reuses one connection pool across every cache operation
// instead of letting each request build its own transport.
var sharedHTTPClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

// ImageCache is an S3-compatible object store keyed by a content or ERP
// source identifier, used purely as a fetch-avoidance cache; a cache miss
// always falls back to fetching the image from the ERP.
type ImageCache struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	enabled  bool
}

// New builds an ImageCache from cfg, using a custom endpoint resolver so the
// same code path serves AWS S3 and S3-compatible endpoints (MinIO, Hetzner)
// alike. When cfg.Enabled is false, Get always misses and Put is a no-op,
// letting the Transformer run without an image store configured.
func New(ctx context.Context, cfg appconfig.ImageCacheConfig) (*ImageCache, error) {
	if !cfg.Enabled {
		return &ImageCache{enabled: false}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("imagecache: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = sharedHTTPClient
	})

	return &ImageCache{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		enabled:  true,
	}, nil
}

// NewWithClient wraps an already-constructed client, used by tests to point
// the cache at a local S3-compatible test server.
func NewWithClient(client *s3.Client, bucket string) *ImageCache {
	return &ImageCache{client: client, uploader: manager.NewUploader(client), bucket: bucket, enabled: true}
}

// Get returns the cached bytes for key, or ok=false on a cache miss.
func (c *ImageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.enabled {
		return nil, false, nil
	}

	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("imagecache: get %s: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("imagecache: read %s: %w", key, err)
	}
	return data, true, nil
}

// Put uploads data under key with contentType, overwriting any prior value.
// Failures are non-fatal to the caller's transform — see Transformer usage.
func (c *ImageCache) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if !c.enabled {
		return nil
	}
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("imagecache: put %s: %w", key, err)
	}
	return nil
}

// Enabled reports whether this cache is backed by a real store.
func (c *ImageCache) Enabled() bool {
	return c.enabled
}
