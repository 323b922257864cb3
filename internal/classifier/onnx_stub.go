//go:build !cgo
// +build !cgo

package classifier

import "errors"

// ONNXOptions describes the model to load.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputShape        []int64
}

// ONNXBackend stub type when built without CGO (see onnx.go for real implementation).
type ONNXBackend struct{}

// NewONNXBackend returns an error when built without CGO (ONNX not available).
func NewONNXBackend(_ ONNXOptions) (*ONNXBackend, error) {
	return nil, errors.New("ONNX backend requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Infer is never reachable without CGO.
func (b *ONNXBackend) Infer(_ []float32) ([]float32, error) {
	return nil, errors.New("ONNX backend unavailable")
}

// OutputWidth returns 0.
func (b *ONNXBackend) OutputWidth() int { return 0 }

// Close is a no-op.
func (b *ONNXBackend) Close() error { return nil }
