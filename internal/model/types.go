package model

import (
	"encoding/json"
	"fmt"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"

	InterpolationNearest  = "nearest"
	InterpolationBilinear = "bilinear"
)

// DefaultClasses maps the rounded model output to a label: 0 is ANIMAL and
// 1 is EMPTY.
var DefaultClasses = []string{"ANIMAL", "EMPTY"}

// Metadata is the JSON sidecar served next to the model file.
type Metadata struct {
	InputShape    []int64  `json:"input_shape"`
	OutputShape   []int64  `json:"output_shape"`
	Classes       []string `json:"classes"`
	ImageSize     int      `json:"image_size"`
	InputName     string   `json:"input_name"`
	OutputName    string   `json:"output_name"`
	Layout        string   `json:"layout"`
	Interpolation string   `json:"interpolation"`
	// Scale multiplies every 8-bit channel value. 1 feeds raw 0-255 pixels.
	Scale float32 `json:"scale"`
}

// DefaultMetadata describes a 224x224 RGB binary classifier taking NHWC
// input with a single scalar output.
func DefaultMetadata() Metadata {
	return Metadata{
		InputShape:    []int64{1, 224, 224, 3},
		OutputShape:   []int64{1, 1},
		Classes:       append([]string(nil), DefaultClasses...),
		ImageSize:     224,
		InputName:     "input",
		OutputName:    "output",
		Layout:        LayoutNHWC,
		Interpolation: InterpolationBilinear,
		Scale:         1,
	}
}

// ParseMetadata decodes a sidecar, filling anything it leaves out from
// DefaultMetadata.
func ParseMetadata(data []byte) (Metadata, error) {
	meta := DefaultMetadata()
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if m.ImageSize > 0 {
		meta.ImageSize = m.ImageSize
		meta.InputShape = nil
	}
	if len(m.InputShape) > 0 {
		meta.InputShape = m.InputShape
	}
	if len(m.OutputShape) > 0 {
		meta.OutputShape = m.OutputShape
	}
	if len(m.Classes) > 0 {
		meta.Classes = m.Classes
	}
	if m.InputName != "" {
		meta.InputName = m.InputName
	}
	if m.OutputName != "" {
		meta.OutputName = m.OutputName
	}
	if m.Layout != "" {
		meta.Layout = m.Layout
	}
	if m.Interpolation != "" {
		meta.Interpolation = m.Interpolation
	}
	if m.Scale != 0 {
		meta.Scale = m.Scale
	}
	if meta.InputShape == nil {
		meta.InputShape = meta.shapeFor(meta.ImageSize)
	} else if m.ImageSize == 0 && len(meta.InputShape) == 4 {
		meta.ImageSize = int(meta.InputShape[1])
		if meta.Layout == LayoutNCHW {
			meta.ImageSize = int(meta.InputShape[2])
		}
	}

	return meta, meta.Validate()
}

func (m Metadata) shapeFor(size int) []int64 {
	s := int64(size)
	if m.Layout == LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}

// InputSize is the number of float32 values in one input tensor.
func (m Metadata) InputSize() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}

// Validate checks the sidecar describes a 3-channel square input.
func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("unsupported layout %q", m.Layout)
	}
	if m.Interpolation != InterpolationNearest && m.Interpolation != InterpolationBilinear {
		return fmt.Errorf("unsupported interpolation %q", m.Interpolation)
	}
	if m.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive")
	}
	if want := 3 * m.ImageSize * m.ImageSize; m.InputSize() != want {
		return fmt.Errorf("input_shape %v does not hold a %dx%d RGB image", m.InputShape, m.ImageSize, m.ImageSize)
	}
	if len(m.Classes) < 2 {
		return fmt.Errorf("need at least two classes, got %d", len(m.Classes))
	}
	return nil
}

// PredictionRequest carries an already preprocessed input tensor.
type PredictionRequest struct {
	Image []float32 `json:"image"`
}

// Prediction is the outcome for one gallery slot. OK is false when the slot
// had no pixels or there was no model; Label is then empty.
type Prediction struct {
	Slot       int     `json:"slot"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Score      float32 `json:"score"`
	OK         bool    `json:"ok"`
}

// String renders the prediction as shown under an image, e.g.
// "ANIMAL: 70.00%". Absent predictions render as "".
func (p Prediction) String() string {
	if !p.OK {
		return ""
	}
	return fmt.Sprintf("%s: %.2f%%", p.Label, p.Confidence)
}
