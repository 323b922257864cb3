package classifier

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"math"
	"sync"
)

// MockBackend is a deterministic backend for tests and the "mock" backend
// setting. Logits are derived from a hash of the input so the same tensor always
// gets the same scores.
type MockBackend struct {
	width int
	fixed []float32

	mu     sync.Mutex
	calls  int
	closed bool
}

// NewMockBackend returns a backend with width outputs.
func NewMockBackend(width int) *MockBackend {
	if width <= 0 {
		width = 1
	}
	return &MockBackend{width: width}
}

// NewFixedBackend returns a backend that always answers with logits.
func NewFixedBackend(logits []float32) *MockBackend {
	return &MockBackend{width: len(logits), fixed: append([]float32(nil), logits...)}
}

// Infer returns deterministic logits for input.
func (m *MockBackend) Infer(input []float32) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("mock backend closed")
	}
	m.calls++
	out := make([]float32, m.width)
	if m.fixed != nil {
		copy(out, m.fixed)
		return out, nil
	}
	h := hashInput(input)
	for i := range out {
		out[i] = float32(math.Sin(float64(h%100003)*float64(i+1)) * 4)
	}
	return out, nil
}

// OutputWidth returns the number of logits per call.
func (m *MockBackend) OutputWidth() int { return m.width }

// Calls returns how many inferences ran.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close marks the backend closed.
func (m *MockBackend) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func hashInput(input []float32) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range input {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		h.Write(buf[:])
	}
	return h.Sum64()
}
