// Package listing reads the file names of an image folder from the file
// server, either by scraping its generated directory index or from an
// index.json manifest.
package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/config"
	"github.com/Brownie44l1/trapcam/internal/upstream"
)

// ErrMalformedListing is returned when a directory index row does not have
// the expected column layout.
var ErrMalformedListing = errors.New("malformed directory listing")

// Lister returns the ordered file names of an image folder.
type Lister struct {
	client  upstream.Getter
	baseURL string
	format  config.ListingFormat
	cache   *cache.Cache
	log     logrus.FieldLogger
}

// New creates a Lister. Listings are cached per folder for ttl.
func New(client upstream.Getter, baseURL string, format config.ListingFormat, ttl time.Duration, log logrus.FieldLogger) *Lister {
	return &Lister{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		format:  format,
		cache:   cache.New(ttl, 2*ttl),
		log:     log,
	}
}

// List fetches the file names of folder. An empty folder yields an empty
// result without any request.
func (l *Lister) List(ctx context.Context, folder string) ([]string, error) {
	if folder == "" {
		return []string{}, nil
	}
	if cached, ok := l.cache.Get(folder); ok {
		return cached.([]string), nil
	}

	folderURL := config.ImagesURL(l.baseURL, folder)

	var (
		names []string
		err   error
	)
	switch l.format {
	case config.ListingJSON:
		names, err = l.listManifest(ctx, folderURL+"/index.json")
	default:
		names, err = l.listIndex(ctx, folderURL)
	}
	if err != nil {
		return nil, fmt.Errorf("listing folder %s: %w", folder, err)
	}

	l.log.WithFields(logrus.Fields{"folder": folder, "count": len(names)}).Info("folder listed")
	l.cache.SetDefault(folder, names)
	return names, nil
}

// Forget drops the cached listing of folder.
func (l *Lister) Forget(folder string) {
	l.cache.Delete(folder)
}

func (l *Lister) listIndex(ctx context.Context, u string) ([]string, error) {
	body, err := l.client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	return ParseIndex(bytes.NewReader(body))
}

func (l *Lister) listManifest(ctx context.Context, u string) ([]string, error) {
	body, err := l.client.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	return ParseManifest(body)
}
