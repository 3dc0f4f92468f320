package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids and vocabulary size.
const (
	tokenCLS    = 101
	tokenSEP    = 102
	firstWordID = 1000
	vocabSize   = 30522
)

// Tokenizer produces the three input tensors of a BERT-style encoder.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps each term onto the model vocabulary by hashing. It is the
// fallback for models shipped without a vocab file: identical words share an id,
// but ids carry no meaning the model learned.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] term... [SEP] padded with zeros to maxTokens. Terms past
// maxTokens-2 are dropped.
func (SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	seq := []int64{tokenCLS}
	for _, term := range Terms(text) {
		if len(seq) == maxTokens-1 {
			break
		}
		seq = append(seq, wordID(term))
	}
	seq = append(seq, tokenSEP)
	for i, id := range seq {
		inputIDs[i] = id
		attentionMask[i] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

func wordID(term string) int64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return firstWordID + int64(h.Sum32()%(vocabSize-firstWordID))
}

// Terms lowercases text and splits it into letter/digit runs.
func Terms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
