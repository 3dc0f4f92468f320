//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs a sentence-transformer export (all-MiniLM-L6-v2) through ONNX Runtime
// and mean-pools the token states. It requires CGO and the onnxruntime shared library.
// Calls are serialised on the pre-allocated tensors.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	session   *ort.AdvancedSession
	tokenizer Tokenizer

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	hidden        *ort.Tensor[float32]
	mu            sync.Mutex
}

func destroy[T ort.TensorData](t **ort.Tensor[T]) {
	if *t != nil {
		_ = (*t).Destroy()
		*t = nil
	}
}

// NewONNXEmbedder loads the model at cfg.ModelPath. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	cfg = cfg.withDefaults()
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer := SimpleTokenizer{}
	ids, mask, types := tokenizer.Tokenize("", cfg.MaxTokens)
	inputShape := ort.NewShape(1, int64(cfg.MaxTokens))

	e := &ONNXEmbedder{cfg: cfg, tokenizer: tokenizer}
	var err error
	if e.inputIDs, err = ort.NewTensor(inputShape, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewTensor(inputShape, mask); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDs, err = ort.NewTensor(inputShape, types); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	e.hidden, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(cfg.MaxTokens), int64(cfg.Dimensions)))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create %s tensor: %w", cfg.OutputName, err)
	}

	e.session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.hidden},
		nil,
	)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", cfg.ModelPath, err)
	}
	return e, nil
}

// Embed returns the L2-normalised mean of the token states of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.cfg.MaxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)

	if err := e.session.Run(); err != nil {
		// A failed local inference will fail the same way again.
		return nil, Permanent(fmt.Errorf("inference failed: %w", err))
	}
	return meanPool(e.hidden.GetData(), mask, e.cfg.Dimensions), nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	destroy(&e.inputIDs)
	destroy(&e.attentionMask)
	destroy(&e.tokenTypeIDs)
	destroy(&e.hidden)
	return err
}
