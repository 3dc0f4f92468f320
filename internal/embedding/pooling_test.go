package embedding

import (
	"math"
	"path/filepath"
	"testing"
)

func TestMeanPool(t *testing.T) {
	hidden := []float32{
		1, 0, 0,
		3, 4, 0,
		100, 100, 100, // padding, masked out
	}
	got := meanPool(hidden, []int64{1, 1, 0}, 3)
	// mean (2, 2, 0), normalised.
	want := float32(1 / math.Sqrt2)
	if math.Abs(float64(got[0]-want)) > 1e-6 || math.Abs(float64(got[1]-want)) > 1e-6 || got[2] != 0 {
		t.Errorf("meanPool = %v", got)
	}
}

func TestMeanPool_allMasked(t *testing.T) {
	got := meanPool([]float32{1, 2}, []int64{0}, 2)
	if got[0] != 0 || got[1] != 0 {
		t.Errorf("meanPool with empty mask = %v, want zero vector", got)
	}
}

func TestONNXConfig_withDefaults(t *testing.T) {
	c := ONNXConfig{ModelPath: "m.onnx"}.withDefaults()
	if c.Dimensions != 384 || c.MaxTokens != 256 || c.OutputName != "last_hidden_state" {
		t.Errorf("defaults = %+v", c)
	}
}

func TestNewONNXEmbedder_missingModel(t *testing.T) {
	_, err := NewONNXEmbedder(ONNXConfig{ModelPath: filepath.Join(t.TempDir(), "absent.onnx")})
	if err == nil {
		t.Fatal("expected error for a missing model")
	}
}
