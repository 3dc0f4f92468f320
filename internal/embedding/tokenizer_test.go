package embedding

import (
	"testing"
)

func TestSimpleTokenizer_Tokenize(t *testing.T) {
	var tok SimpleTokenizer
	ids, attn, types := tok.Tokenize("hello world", 10)
	if len(ids) != 10 || len(attn) != 10 || len(types) != 10 {
		t.Fatalf("tensor lengths %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != tokenCLS || ids[3] != tokenSEP {
		t.Errorf("expected CLS w w SEP, got %v", ids[:4])
	}
	for _, id := range ids[1:3] {
		if id < firstWordID || id >= vocabSize {
			t.Errorf("word id %d outside vocabulary range", id)
		}
	}
	if attn[3] != 1 || attn[4] != 0 {
		t.Errorf("unexpected attention mask %v", attn)
	}

	again, _, _ := tok.Tokenize("HELLO, world!", 10)
	if again[1] != ids[1] || again[2] != ids[2] {
		t.Error("word ids should depend only on the lowercased term")
	}
}

func TestSimpleTokenizer_truncates(t *testing.T) {
	var tok SimpleTokenizer
	ids, attn, _ := tok.Tokenize("one two three four five six", 4)
	if ids[0] != tokenCLS || ids[3] != tokenSEP {
		t.Errorf("truncated sequence %v", ids)
	}
	for i, m := range attn {
		if m != 1 {
			t.Errorf("attn[%d] = %d, every slot is used", i, m)
		}
	}
}

func TestTerms(t *testing.T) {
	terms := Terms("  Cloud-migration to AWS, 2024!  ")
	want := []string{"cloud", "migration", "to", "aws", "2024"}
	if len(terms) != len(want) {
		t.Fatalf("Terms() = %v", terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("Terms()[%d] = %q, want %q", i, terms[i], want[i])
		}
	}
	if len(Terms("")) != 0 {
		t.Error("empty string should have no terms")
	}
}
