package model

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/trapcam/internal/upstream"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-4 }

func TestDecide(t *testing.T) {
	tests := []struct {
		score      float32
		label      string
		confidence float64
	}{
		{0.3, "ANIMAL", 70},
		{0.7, "EMPTY", 70},
		{0, "ANIMAL", 100},
		{1, "EMPTY", 100},
		{0.5, "EMPTY", 50},
		{1.4, "EMPTY", 100},
		{-0.2, "ANIMAL", 100},
	}
	for _, tt := range tests {
		p := Decide(2, tt.score, DefaultClasses)
		if !p.OK || p.Slot != 2 {
			t.Errorf("Decide(%v): expected ok prediction for slot 2, got %+v", tt.score, p)
		}
		if p.Label != tt.label {
			t.Errorf("Decide(%v): label %q, want %q", tt.score, p.Label, tt.label)
		}
		if !approx(p.Confidence, tt.confidence) {
			t.Errorf("Decide(%v): confidence %v, want %v", tt.score, p.Confidence, tt.confidence)
		}
	}
}

func TestDecideNaN(t *testing.T) {
	p := Decide(0, float32(math.NaN()), DefaultClasses)
	if p.OK || p.String() != "" {
		t.Errorf("NaN score should be absent, got %+v", p)
	}
}

func TestPredictionString(t *testing.T) {
	if got := Decide(0, 0.3, nil).String(); got != "ANIMAL: 70.00%" {
		t.Errorf("String() = %q", got)
	}
	if got := Absent(1).String(); got != "" {
		t.Errorf("absent String() = %q, want empty", got)
	}
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{}`))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if meta.ImageSize != 224 || meta.Layout != LayoutNHWC || meta.InputSize() != 224*224*3 {
		t.Errorf("unexpected defaults %+v", meta)
	}

	meta, err = ParseMetadata([]byte(`{"image_size": 48, "layout": "NCHW", "classes": ["a","b"]}`))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if got := meta.InputShape; len(got) != 4 || got[1] != 3 || got[2] != 48 {
		t.Errorf("derived input shape %v", got)
	}

	meta, err = ParseMetadata([]byte(`{"input_shape": [1, 3, 64, 64], "layout": "NCHW"}`))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if meta.ImageSize != 64 {
		t.Errorf("image size from shape: got %d, want 64", meta.ImageSize)
	}

	if _, err := ParseMetadata([]byte(`{"layout": "HWC"}`)); err == nil {
		t.Error("expected error for unsupported layout")
	}
	if _, err := ParseMetadata([]byte(`{"image_size": 10, "input_shape": [1, 5, 5, 3]}`)); err == nil {
		t.Error("expected error for inconsistent shape")
	}
	if _, err := ParseMetadata([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessLayouts(t *testing.T) {
	img := solid(10, 6, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	meta := DefaultMetadata()
	meta.ImageSize = 4
	meta.InputShape = []int64{1, 4, 4, 3}
	meta.Interpolation = InterpolationNearest

	nhwc := Preprocess(img, meta)
	if len(nhwc) != 48 {
		t.Fatalf("NHWC length %d, want 48", len(nhwc))
	}
	if nhwc[0] != 200 || nhwc[1] != 100 || nhwc[2] != 50 {
		t.Errorf("NHWC first pixel %v", nhwc[:3])
	}

	meta.Layout = LayoutNCHW
	meta.Scale = 1.0 / 255
	nchw := Preprocess(img, meta)
	if len(nchw) != 48 {
		t.Fatalf("NCHW length %d, want 48", len(nchw))
	}
	if !approx(float64(nchw[0]), 200.0/255) || !approx(float64(nchw[16]), 100.0/255) || !approx(float64(nchw[32]), 50.0/255) {
		t.Errorf("NCHW planes %v %v %v", nchw[0], nchw[16], nchw[32])
	}
}

type fakeGetter struct {
	mu    sync.Mutex
	files map[string]string
	calls int
}

func (f *fakeGetter) Get(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.files[url]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return []byte(body), nil
}

type fakeHandle struct {
	graph  string
	meta   Metadata
	closed bool
}

func (h *fakeHandle) Score(ctx context.Context, img image.Image) (float32, error) { return 0.3, nil }
func (h *fakeHandle) Classes() []string                                         { return h.meta.Classes }
func (h *fakeHandle) Close()                                                    { h.closed = true }

func fakeOpener(data []byte, meta Metadata) (Handle, error) {
	if strings.HasPrefix(string(data), "broken") {
		return nil, errors.New("bad graph")
	}
	return &fakeHandle{graph: string(data), meta: meta}, nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRegistryLoadAndSwap(t *testing.T) {
	g := &fakeGetter{files: map[string]string{
		"http://f/weights/BO16/ResNet-101/model.onnx":          "graph-a",
		"http://f/weights/BO16/ResNet-101/model_metadata.json": `{"classes": ["ANIMAL", "EMPTY"]}`,
		"http://f/weights/BO16/ResNet-50/model.onnx":           "graph-b",
		"http://f/weights/BO16/Broken/model.onnx":             "broken",
	}}
	r := NewRegistry(g, fakeOpener, "model.onnx", "model_metadata.json", quietLogger())

	if h, _ := r.Current(); h != nil {
		t.Fatal("expected no model before Load")
	}

	a, err := r.Load(context.Background(), "http://f/weights/BO16/ResNet-101")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if a.(*fakeHandle).graph != "graph-a" {
		t.Errorf("unexpected graph %q", a.(*fakeHandle).graph)
	}

	calls := g.calls
	again, err := r.Load(context.Background(), "http://f/weights/BO16/ResNet-101/")
	if err != nil || again != a {
		t.Fatalf("same URL should reuse the handle: %v", err)
	}
	if g.calls != calls {
		t.Errorf("same URL should not refetch, calls went %d -> %d", calls, g.calls)
	}

	b, err := r.Load(context.Background(), "http://f/weights/BO16/ResNet-50")
	if err != nil {
		t.Fatalf("Load without metadata should fall back to defaults: %v", err)
	}
	if !a.(*fakeHandle).closed {
		t.Error("replaced handle should be closed")
	}
	if b.Classes()[1] != "EMPTY" {
		t.Errorf("default classes not applied: %v", b.Classes())
	}
	if _, u := r.Current(); u != "http://f/weights/BO16/ResNet-50" {
		t.Errorf("current url %q", u)
	}

	if _, err := r.Load(context.Background(), "http://f/weights/BO16/Broken"); err == nil {
		t.Error("expected error for broken graph")
	}
	if h, _ := r.Current(); h != b {
		t.Error("failed load must keep the previous handle")
	}

	if _, err := r.Load(context.Background(), "http://f/weights/none"); err == nil {
		t.Error("expected error for missing model file")
	}

	r.Close()
	if !b.(*fakeHandle).closed {
		t.Error("Close should close the current handle")
	}
	if h, _ := r.Current(); h != nil {
		t.Error("expected no model after Close")
	}
}
