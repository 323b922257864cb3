package classifier

import (
	"context"
	"errors"
	"sync"
)

// Factory builds a ready Classifier.
type Factory func() (*Classifier, error)

// Provider hands out one shared Classifier, building it on first use.
// Shutdown closes it; the next Acquire builds a fresh one.
//
// Provider also serves as the model for long-lived callers: Predict acquires
// the classifier on every call, so a Shutdown between calls is followed by a
// rebuild instead of ErrClosed.
type Provider struct {
	mu      sync.Mutex
	build   Factory
	current *Classifier

	// labels and version of the last classifier built
	labels  []string
	version string
}

// NewProvider returns a Provider backed by build.
func NewProvider(build Factory) *Provider {
	return &Provider{build: build}
}

// Acquire returns the shared classifier, building it if needed. A failed build
// is not cached.
func (p *Provider) Acquire() (*Classifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return p.current, nil
	}
	c, err := p.build()
	if err != nil {
		return nil, err
	}
	p.current = c
	p.labels = c.Labels()
	p.version = c.ModelVersion()
	return c, nil
}

// Predict runs the current classifier, building one if needed. A request that
// loses a race with Shutdown is retried once on a fresh classifier.
func (p *Provider) Predict(ctx context.Context, input []float32) ([]float32, error) {
	for attempt := 0; ; attempt++ {
		c, err := p.Acquire()
		if err != nil {
			return nil, err
		}
		logits, err := c.Predict(ctx, input)
		if errors.Is(err, ErrClosed) && attempt == 0 {
			continue
		}
		return logits, err
	}
}

// Labels returns the labels of the last classifier built, building one when
// none has been. It returns nil if that build fails.
func (p *Provider) Labels() []string {
	if labels, _, ok := p.built(); ok {
		return labels
	}
	c, err := p.Acquire()
	if err != nil {
		return nil
	}
	return c.Labels()
}

// ModelVersion returns the model version of the last classifier built.
func (p *Provider) ModelVersion() string {
	if _, version, ok := p.built(); ok {
		return version
	}
	c, err := p.Acquire()
	if err != nil {
		return ""
	}
	return c.ModelVersion()
}

func (p *Provider) built() ([]string, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.labels == nil {
		return nil, "", false
	}
	return append([]string(nil), p.labels...), p.version, true
}

// Shutdown closes the current classifier, if any.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	err := p.current.Close()
	p.current = nil
	return err
}
