package embedding

import "github.com/sattyani/ai-procurement-agent/pkg/utils"

// ONNXConfig locates and shapes a sentence-transformer ONNX export.
type ONNXConfig struct {
	ModelPath  string
	Dimensions int
	// MaxTokens is the fixed sequence length fed to the model. Default 256.
	MaxTokens int
	// OutputName is the token-state output. Default "last_hidden_state".
	OutputName string
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.Dimensions <= 0 {
		c.Dimensions = 384
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 256
	}
	if c.OutputName == "" {
		c.OutputName = "last_hidden_state"
	}
	return c
}

// meanPool averages the hidden states ([tokens][dims], row-major) of tokens whose mask is
// set and L2-normalises the result, as sentence-transformers does.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for t, m := range mask {
		if m == 0 || (t+1)*dims > len(hidden) {
			continue
		}
		row := hidden[t*dims : (t+1)*dims]
		for i, v := range row {
			out[i] += v
		}
		n++
	}
	if n > 0 {
		for i := range out {
			out[i] /= n
		}
	}
	utils.NormalizeL2(out)
	return out
}
