package erp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdevji/prowhey-middleware/config"
	"github.com/atlasdevji/prowhey-middleware/entity"
	"github.com/atlasdevji/prowhey-middleware/imagecache"
)

type fakeImageFetcher struct {
	calls int
	data  []byte
}

func (f *fakeImageFetcher) FetchImage(ctx context.Context, url string) ([]byte, string, error) {
	f.calls++
	return f.data, "image/png", nil
}

func disabledImageCache(t *testing.T) *imagecache.ImageCache {
	t.Helper()
	c, err := imagecache.New(context.Background(), config.ImageCacheConfig{Enabled: false})
	require.NoError(t, err)
	return c
}

func TestTransformCopiesRawFields(t *testing.T) {
	tr := NewDefaultTransformer(disabledImageCache(t), nil)

	payload, err := tr.Transform(context.Background(), entity.TypeComment, RawRecord{
		EntityID: "c1",
		Data:     map[string]any{"text": "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", payload["text"])
	assert.Equal(t, "c1", payload["entity_id"])
}

func TestTransformEmbedsPrice(t *testing.T) {
	tr := NewDefaultTransformer(disabledImageCache(t), nil)

	payload, err := tr.Transform(context.Background(), entity.TypeProduct, RawRecord{
		EntityID: "p1",
		Data:     map[string]any{"price": "9.5"},
	})
	require.NoError(t, err)
	assert.InDelta(t, 9.5, payload["price"], 0.001)
	assert.Equal(t, "$9.50", payload["display_price"])
}

func TestTransformEmbedsImagesViaFetcherOnCacheMiss(t *testing.T) {
	fetcher := &fakeImageFetcher{data: []byte("imgbytes")}
	tr := NewDefaultTransformer(disabledImageCache(t), fetcher)

	payload, err := tr.Transform(context.Background(), entity.TypeProduct, RawRecord{
		EntityID: "p1",
		Data:     map[string]any{"images": []any{"http://erp/img1.jpg"}},
	})
	require.NoError(t, err)

	images, ok := payload["images"].([]any)
	require.True(t, ok)
	require.Len(t, images, 1)
	assert.Equal(t, 1, fetcher.calls)

	entry := images[0].(map[string]any)
	assert.Equal(t, "http://erp/img1.jpg", entry["url"])
	assert.NotEmpty(t, entry["data_base64"])
}

func TestTransformLeavesNonPriceTypesAlone(t *testing.T) {
	tr := NewDefaultTransformer(disabledImageCache(t), nil)

	payload, err := tr.Transform(context.Background(), entity.TypeView, RawRecord{
		EntityID: "v1",
		Data:     map[string]any{"count": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, payload["count"])
	_, hasDisplayPrice := payload["display_price"]
	assert.False(t, hasDisplayPrice)
}
