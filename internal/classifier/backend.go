// Package classifier runs the leaf-disease model behind a single inference worker.
package classifier

// Backend executes one forward pass of a classification model.
type Backend interface {
	// Infer takes a flat input tensor and returns one logit per class.
	Infer(input []float32) ([]float32, error)
	OutputWidth() int
	Close() error
}
