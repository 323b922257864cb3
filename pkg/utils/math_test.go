package utils

import (
	"math"
	"testing"
)

func TestArgMax(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want int
	}{
		{"empty", nil, -1},
		{"single", []float64{3}, 0},
		{"first of ties", []float64{1, 5, 5}, 1},
		{"skips NaN", []float64{math.NaN(), 0.2, 0.1}, 1},
		{"negative values", []float64{-3, -1, -2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArgMax(tt.in); got != tt.want {
				t.Errorf("ArgMax(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestClamp01(t *testing.T) {
	if Clamp01(-0.1) != 0 || Clamp01(1.2) != 1 || Clamp01(0.4) != 0.4 {
		t.Error("Clamp01 out of range")
	}
}

func TestToFloat64(t *testing.T) {
	x := ToFloat64([]float32{0.5, 0.25, 0.25})
	if len(x) != 3 || x[0] != 0.5 || x[2] != 0.25 {
		t.Errorf("got %v", x)
	}
}
