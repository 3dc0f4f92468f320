package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		type item struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		// Reverse order to check results are re-sorted by index.
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Index: i, Embedding: []float32{float32(i), 1, 0}})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "text-embedding-ada-002", Dimensions: 3})
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if gotModel != "text-embedding-ada-002" {
		t.Errorf("model = %q", gotModel)
	}
	if len(vecs) != 2 || vecs[0][0] != 0 || vecs[1][0] != 1 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestOpenAIEmbedder_AuthErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, _ := NewOpenAIEmbedder(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL, Model: "m", Dimensions: 3})
	_, err := e.Embed(context.Background(), "x")
	if err == nil || !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}

func TestOpenAIEmbedder_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer srv.Close()

	e, _ := NewOpenAIEmbedder(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m", Dimensions: 3})
	_, err := e.Embed(context.Background(), "x")
	if err == nil || IsPermanent(err) {
		t.Errorf("expected retryable error, got %v", err)
	}
}
