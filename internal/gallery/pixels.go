package gallery

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Brownie44l1/trapcam/internal/upstream"
)

// PixelLoader fetches and decodes images, caching decoded pixels by URL.
// Concurrent loads of one URL share a single request.
type PixelLoader struct {
	client upstream.Getter
	cache  *cache.Cache
	group  singleflight.Group
}

// NewPixelLoader creates a PixelLoader whose entries live for ttl.
func NewPixelLoader(client upstream.Getter, ttl time.Duration) *PixelLoader {
	return &PixelLoader{
		client: client,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Load returns the decoded image at src.
func (l *PixelLoader) Load(ctx context.Context, src string) (image.Image, error) {
	if cached, ok := l.cache.Get(src); ok {
		return cached.(image.Image), nil
	}

	v, err, _ := l.group.Do(src, func() (interface{}, error) {
		body, err := l.client.Get(ctx, src)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", src, err)
		}
		l.cache.SetDefault(src, img)
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(image.Image), nil
}

// LoadPixels fetches the pixels of every bound image concurrently. The
// result is parallel to images; placeholders and failed loads stay nil and
// failures are logged.
func LoadPixels(ctx context.Context, src PixelSource, images []Image, log logrus.FieldLogger) []image.Image {
	pixels := make([]image.Image, len(images))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, img := range images {
		if img.Src == "" {
			continue
		}
		eg.Go(func() error {
			p, err := src.Load(egCtx, img.Src)
			if err != nil {
				log.WithFields(logrus.Fields{"slot": i, "src": img.Src}).WithError(err).Warn("loading image failed")
				return nil
			}
			pixels[i] = p
			return nil
		})
	}
	eg.Wait()
	return pixels
}
