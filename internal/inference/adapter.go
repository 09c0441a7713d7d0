// Package inference runs the classifier over the images of a gallery page.
package inference

import (
	"context"
	"image"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/trapcam/internal/model"
)

// Adapter scores a batch of slots against a model handle.
type Adapter struct {
	log logrus.FieldLogger
}

// NewAdapter creates an Adapter.
func NewAdapter(log logrus.FieldLogger) *Adapter {
	return &Adapter{log: log}
}

// Run classifies every slot and returns one prediction per slot, in slot
// order. A slot without pixels, a nil handle, or a failed pass yields an
// absent prediction. The slice is returned only after every slot finished.
func (a *Adapter) Run(ctx context.Context, h model.Handle, pixels []image.Image) []model.Prediction {
	preds := make([]model.Prediction, len(pixels))
	for i := range preds {
		preds[i] = model.Absent(i)
	}
	if h == nil {
		a.log.Debug("no model, skipping inference")
		return preds
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for i, img := range pixels {
		if img == nil {
			a.log.WithField("slot", i).Debug("no pixels")
			continue
		}
		eg.Go(func() error {
			score, err := h.Score(egCtx, img)
			if err != nil {
				a.log.WithField("slot", i).WithError(err).Warn("prediction failed")
				return nil
			}
			preds[i] = model.Decide(i, score, h.Classes())
			a.log.WithFields(logrus.Fields{
				"slot":       i,
				"label":      preds[i].Label,
				"confidence": preds[i].Confidence,
			}).Debug("prediction")
			return nil
		})
	}
	eg.Wait()

	return preds
}

// Labels renders predictions as display strings, "" for absent ones.
func Labels(preds []model.Prediction) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.String()
	}
	return out
}
