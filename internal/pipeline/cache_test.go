package pipeline

import "testing"

func TestProbabilityCache_GetSet(t *testing.T) {
	c := NewProbabilityCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float64{0.5, 0.5})
	v, ok := c.Get("a")
	if !ok || len(v) != 2 || v[0] != 0.5 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float64{1})
	c.Get("a")               // a is now most recent
	c.Set("c", []float64{1}) // evicts b
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected a to remain")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
}

func TestProbabilityCache_CopiesValues(t *testing.T) {
	c := NewProbabilityCache(1)
	in := []float64{0.1, 0.9}
	c.Set("k", in)
	in[0] = 42
	got, _ := c.Get("k")
	if got[0] != 0.1 {
		t.Errorf("cache aliased caller slice: %v", got)
	}
	got[1] = 42
	again, _ := c.Get("k")
	if again[1] != 0.9 {
		t.Errorf("Get returned shared slice: %v", again)
	}
}

func TestProbabilityCache_Disabled(t *testing.T) {
	c := NewProbabilityCache(0)
	c.Set("k", []float64{1})
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache should never hit")
	}
}
