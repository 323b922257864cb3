//go:build cgo
// +build cgo

package classifier

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions describes the model to load.
type ONNXOptions struct {
	ModelPath string
	// SharedLibraryPath points at libonnxruntime; empty uses the system default.
	SharedLibraryPath string
	// InputShape is the full input shape including the batch dimension, e.g.
	// [1, 224, 224, 3].
	InputShape []int64
}

// ONNXBackend runs a single-input, single-output image classifier through ONNX
// Runtime. It requires CGO and the onnxruntime shared library.
type ONNXBackend struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	width        int
	mu           sync.Mutex
}

var envOnce sync.Once
var envErr error

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// NewONNXBackend loads the model, reading its input/output names and class
// count from the model file, and pre-allocates the tensors used by Infer.
func NewONNXBackend(opts ONNXOptions) (*ONNXBackend, error) {
	if err := initEnvironment(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, model has %d and %d", len(inputs), len(outputs))
	}
	outDims := outputs[0].Dimensions
	if len(outDims) == 0 || outDims[len(outDims)-1] <= 0 {
		return nil, fmt.Errorf("model output %q has no static class dimension", outputs[0].Name)
	}
	width := int(outDims[len(outDims)-1])

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(opts.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		opts.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXBackend{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		width:        width,
	}, nil
}

// Infer copies input into the session tensor, runs the model and returns a copy
// of the logits.
func (b *ONNXBackend) Infer(input []float32) ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, fmt.Errorf("onnx session closed")
	}
	dst := b.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := b.session.Run(); err != nil {
		return nil, err
	}
	logits := make([]float32, b.width)
	copy(logits, b.outputTensor.GetData())
	return logits, nil
}

// OutputWidth returns the number of classes the model predicts.
func (b *ONNXBackend) OutputWidth() int {
	return b.width
}

// Close destroys the session and tensors.
func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.session != nil {
		err = b.session.Destroy()
		b.session = nil
	}
	if b.inputTensor != nil {
		_ = b.inputTensor.Destroy()
		b.inputTensor = nil
	}
	if b.outputTensor != nil {
		_ = b.outputTensor.Destroy()
		b.outputTensor = nil
	}
	return err
}
