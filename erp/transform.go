package erp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/imagecache"
)

// ImageFetcher retrieves the raw bytes and content type for one image URL,
// used by DefaultTransformer when an image isn't already in the cache.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (data []byte, contentType string, err error)
}

// DefaultTransformer is the baseline Transformer: it copies the raw ERP
// fields verbatim into the payload (plus an "entity_id" field) and, for
// product, hero and bundle
// entities only, computes derived price fields and base64-embeds any image
// URLs found under an "images" field, consulting the image cache before
// re-fetching from the ERP. Other entity types get no price or image
// processing.
type DefaultTransformer struct {
	images       *imagecache.ImageCache
	imageFetcher ImageFetcher
}

// NewDefaultTransformer builds a DefaultTransformer. images may be a
// disabled cache (see imagecache.New with Enabled=false); imageFetcher may
// be nil if the entity types this transformer handles never carry images.
func NewDefaultTransformer(images *imagecache.ImageCache, imageFetcher ImageFetcher) *DefaultTransformer {
	return &DefaultTransformer{images: images, imageFetcher: imageFetcher}
}

// Transform implements Transformer.
func (tr *DefaultTransformer) Transform(ctx context.Context, t entity.Type, raw RawRecord) (map[string]any, error) {
	payload := make(map[string]any, len(raw.Data)+1)
	for k, v := range raw.Data {
		payload[k] = v
	}
	payload["entity_id"] = raw.EntityID

	if t == entity.TypeProduct || t == entity.TypeHero || t == entity.TypeBundle {
		if err := tr.embedPrice(payload); err != nil {
			return nil, fmt.Errorf("erp: embed price for %s: %w", raw.EntityID, err)
		}
		if err := tr.embedImages(ctx, payload); err != nil {
			return nil, fmt.Errorf("erp: embed images for %s: %w", raw.EntityID, err)
		}
	}

	return payload, nil
}

// embedPrice normalizes a raw "price" field (as returned by the ERP, which
// may encode it as a string) into a float64 "price" plus a formatted
// "display_price" field the mobile client renders directly.
func (tr *DefaultTransformer) embedPrice(payload map[string]any) error {
	raw, ok := payload["price"]
	if !ok {
		return nil
	}
	price, ok := toFloat(raw)
	if !ok {
		return fmt.Errorf("unparseable price value %v", raw)
	}
	payload["price"] = price
	payload["display_price"] = fmt.Sprintf("$%.2f", price)
	return nil
}

// embedImages replaces each URL in payload["images"] with a base64 data
// payload, fetching through the image cache first and falling back to the
// configured image fetcher on a miss.
func (tr *DefaultTransformer) embedImages(ctx context.Context, payload map[string]any) error {
	rawImages, ok := payload["images"].([]any)
	if !ok || len(rawImages) == 0 {
		return nil
	}

	embedded := make([]any, 0, len(rawImages))
	for _, entry := range rawImages {
		url, ok := entry.(string)
		if !ok {
			continue
		}

		data, contentType, err := tr.resolveImage(ctx, url)
		if err != nil {
			return err
		}
		embedded = append(embedded, map[string]any{
			"url":          url,
			"content_type": contentType,
			"data_base64":  base64.StdEncoding.EncodeToString(data),
		})
	}
	payload["images"] = embedded
	return nil
}

func (tr *DefaultTransformer) resolveImage(ctx context.Context, url string) ([]byte, string, error) {
	if tr.images != nil {
		if data, ok, err := tr.images.Get(ctx, url); err == nil && ok {
			return data, "image/jpeg", nil
		}
	}
	if tr.imageFetcher == nil {
		return nil, "", fmt.Errorf("no image fetcher configured for url %s", url)
	}

	data, contentType, err := tr.imageFetcher.FetchImage(ctx, url)
	if err != nil {
		return nil, "", err
	}
	if tr.images != nil {
		// Best-effort: a cache write failure must not fail the transform,
		// since the image was already fetched successfully.
		_ = tr.images.Put(ctx, url, data, contentType)
	}
	return data, contentType, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
