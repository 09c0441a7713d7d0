package model

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ErrClosed is returned by a Server used after Close.
var ErrClosed = errors.New("model session closed")

// Server owns one ONNX session and its preallocated tensors. Runs are
// serialised because the tensors are shared.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// NewServer creates a session from an in-memory ONNX graph. The ONNX
// environment must already be initialised (see ONNXOpener).
func NewServer(onnxData []byte, metadata Metadata) (*Server, error) {
	inputShape := ort.NewShape(metadata.InputShape...)
	outputShape := ort.NewShape(metadata.OutputShape...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(onnxData,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Server{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Run executes one forward pass on a preprocessed input and returns a copy of
// the output tensor.
func (s *Server) Run(inputData []float32) ([]float32, error) {
	if want := s.Metadata.InputSize(); len(inputData) != want {
		return nil, fmt.Errorf("expected %d values, got %d", want, len(inputData))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, ErrClosed
	}

	copy(s.inputTensor.GetData(), inputData)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	return append([]float32(nil), out...), nil
}

// Score preprocesses img and returns the single scalar the classifier emits.
func (s *Server) Score(ctx context.Context, img image.Image) (float32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	out, err := s.Run(Preprocess(img, s.Metadata))
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("model returned no output")
	}
	return out[0], nil
}

// Classes returns the label table of the model.
func (s *Server) Classes() []string {
	return s.Metadata.Classes
}

// Close releases the session and its tensors. It waits for a running pass.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
		s.inputTensor = nil
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
		s.outputTensor = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

var (
	envOnce  sync.Once
	envErr   error
	envReady bool
)

// ONNXOpener initialises the ONNX runtime once, loading the shared library
// from libPath when set, and returns an Opener that builds Servers.
func ONNXOpener(libPath string) Opener {
	return func(onnxData []byte, meta Metadata) (Handle, error) {
		envOnce.Do(func() {
			if libPath != "" {
				ort.SetSharedLibraryPath(libPath)
			}
			if err := ort.InitializeEnvironment(); err != nil {
				envErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
				return
			}
			envReady = true
		})
		if envErr != nil {
			return nil, envErr
		}
		return NewServer(onnxData, meta)
	}
}

// ShutdownONNX tears down the ONNX environment if it was initialised.
func ShutdownONNX() {
	if envReady {
		ort.DestroyEnvironment()
	}
}
