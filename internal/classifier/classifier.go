package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrLabelMismatch means the label list and the model output disagree in length.
	ErrLabelMismatch = errors.New("label count does not match model output width")
	// ErrClosed is returned by Predict after Close.
	ErrClosed = errors.New("classifier is closed")
)

// DefaultModelVersion is recorded on captures when the config does not name one.
const DefaultModelVersion = "mobilenetv2-v1"

type request struct {
	ctx   context.Context
	input []float32
	resp  chan response
}

type response struct {
	logits []float32
	err    error
}

// Classifier owns a Backend through one worker goroutine. Callers queue on an
// unbuffered channel so requests are served in send order, one at a time.
type Classifier struct {
	backend      Backend
	labels       []string
	modelVersion string
	logger       *zap.Logger

	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	closeErr error
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger for the classifier.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithModelVersion sets the version string reported with predictions.
func WithModelVersion(v string) Option {
	return func(c *Classifier) {
		if v != "" {
			c.modelVersion = v
		}
	}
}

// New validates labels against the backend and starts the worker. On
// ErrLabelMismatch the backend is left untouched; the caller still owns it.
func New(backend Backend, labels []string, opts ...Option) (*Classifier, error) {
	if backend == nil {
		return nil, errors.New("classifier: nil backend")
	}
	if len(labels) != backend.OutputWidth() {
		return nil, fmt.Errorf("%w: %d labels, %d outputs", ErrLabelMismatch, len(labels), backend.OutputWidth())
	}
	c := &Classifier{
		backend:      backend,
		labels:       append([]string(nil), labels...),
		modelVersion: DefaultModelVersion,
		logger:       zap.NewNop(),
		requests:     make(chan request),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.run()
	return c, nil
}

func (c *Classifier) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		case req := <-c.requests:
			if err := req.ctx.Err(); err != nil {
				req.resp <- response{err: err}
				continue
			}
			start := time.Now()
			logits, err := c.backend.Infer(req.input)
			if err != nil {
				err = fmt.Errorf("inference failed: %w", err)
			}
			c.logger.Debug("inference done", zap.Duration("took", time.Since(start)), zap.Error(err))
			req.resp <- response{logits: logits, err: err}
		}
	}
}

// Predict runs the model on input and returns logits ordered like Labels.
func (c *Classifier) Predict(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := request{ctx: ctx, input: input, resp: make(chan response, 1)}
	select {
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case c.requests <- req:
	}

	var r response
	select {
	case r = <-req.resp:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.logits) != len(c.labels) {
		return nil, fmt.Errorf("%w: model returned %d logits", ErrLabelMismatch, len(r.logits))
	}
	return r.logits, nil
}

// Labels returns the class labels in output order.
func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// NumClasses returns the number of model outputs.
func (c *Classifier) NumClasses() int {
	return len(c.labels)
}

// ModelVersion returns the configured model version.
func (c *Classifier) ModelVersion() string {
	return c.modelVersion
}

// Close stops the worker after any in-flight inference and releases the
// backend. It is safe to call more than once.
func (c *Classifier) Close() error {
	c.stopOnce.Do(func() {
		close(c.done)
		<-c.stopped
		c.closeErr = c.backend.Close()
	})
	return c.closeErr
}
