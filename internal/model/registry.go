package model

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/upstream"
)

// ErrNoModel is returned when no model has been loaded.
var ErrNoModel = errors.New("no model loaded")

// Handle is a loaded classifier.
type Handle interface {
	// Score returns the raw scalar output for one image.
	Score(ctx context.Context, img image.Image) (float32, error)
	// Classes is the label table indexed by the rounded score.
	Classes() []string
	Close()
}

// Opener builds a Handle from a serialized graph and its metadata.
type Opener func(onnxData []byte, meta Metadata) (Handle, error)

// Registry holds the handle for the current weight-source URL. Loading the
// same URL again reuses the handle; loading another URL replaces it and
// closes the old one.
type Registry struct {
	client       upstream.Getter
	open         Opener
	modelFile    string
	metadataFile string
	log          logrus.FieldLogger

	loadMu  sync.Mutex
	mu      sync.RWMutex
	current Handle
	url     string
}

// NewRegistry creates an empty Registry.
func NewRegistry(client upstream.Getter, open Opener, modelFile, metadataFile string, log logrus.FieldLogger) *Registry {
	return &Registry{
		client:       client,
		open:         open,
		modelFile:    modelFile,
		metadataFile: metadataFile,
		log:          log,
	}
}

// Load makes the model under weightsURL current and returns it.
func (r *Registry) Load(ctx context.Context, weightsURL string) (Handle, error) {
	weightsURL = strings.TrimRight(weightsURL, "/")

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if h, u := r.Current(); h != nil && u == weightsURL {
		return h, nil
	}

	log := r.log.WithField("model", weightsURL)
	log.Info("loading model")

	meta := DefaultMetadata()
	if r.metadataFile != "" {
		data, err := r.client.Get(ctx, weightsURL+"/"+r.metadataFile)
		switch {
		case errors.Is(err, upstream.ErrNotFound):
			log.Warn("no metadata sidecar, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		default:
			if meta, err = ParseMetadata(data); err != nil {
				return nil, err
			}
		}
	}

	graph, err := r.client.Get(ctx, weightsURL+"/"+r.modelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	h, err := r.open(graph, meta)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.current
	r.current, r.url = h, weightsURL
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}

	log.WithFields(logrus.Fields{
		"classes":    meta.Classes,
		"image_size": meta.ImageSize,
		"layout":     meta.Layout,
	}).Info("model loaded")
	return h, nil
}

// Current returns the loaded handle and its URL, or nil when none is loaded.
func (r *Registry) Current() (Handle, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.url
}

// Close releases the current handle.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.current.Close()
		r.current, r.url = nil, ""
	}
}
