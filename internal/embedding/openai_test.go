package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darasa-ai/darasa/internal/log"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line one\nline two", "line one line two"},
		{"  padded\n\n  ", "padded"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(ClientConfig{}, log.NewNop()); err == nil {
		t.Error("NewClient() with empty key should fail")
	}
}

// embeddingsHandler fakes the OpenAI embeddings endpoint, returning a
// tiny fixed-length vector per input that encodes the input's index.
func embeddingsHandler(t *testing.T, dims int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		type datum struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: body.Model}

		for i := range body.Input {
			vec := make([]float64, dims)
			vec[0] = float64(i + 1)
			resp.Data = append(resp.Data, datum{Object: "embedding", Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestClientEmbedManyPreservesOrder(t *testing.T) {
	const dims = 8
	srv := httptest.NewServer(embeddingsHandler(t, dims))
	defer srv.Close()

	client, err := NewClient(ClientConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Dimensions: dims,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	texts := []string{"kwanza", "pili", "tatu"}
	vecs, err := client.EmbedMany(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedMany() error = %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != dims {
			t.Errorf("vector %d has %d dimensions, want %d", i, len(v), dims)
		}
		if v[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker = %v, want %v", i, v[0], i+1)
		}
	}
}

func TestClientEmbedOne(t *testing.T) {
	const dims = 4
	srv := httptest.NewServer(embeddingsHandler(t, dims))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL, Dimensions: dims}, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	vec, err := client.EmbedOne(context.Background(), "swali la mtihani")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	if len(vec) != dims {
		t.Errorf("got %d dimensions, want %d", len(vec), dims)
	}
}

func TestClientEmbedManyEmptyInput(t *testing.T) {
	client, err := NewClient(ClientConfig{APIKey: "test-key"}, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	vecs, err := client.EmbedMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedMany(nil) error = %v", err)
	}
	if len(vecs) != 0 {
		t.Errorf("EmbedMany(nil) = %v, want empty", vecs)
	}
}

func TestClientUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "invalid request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL}, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.EmbedMany(context.Background(), []string{"text"})
	if !errors.Is(err, ErrProvider) {
		t.Errorf("EmbedMany() error = %v, want ErrProvider", err)
	}
}

func TestClientCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL}, log.NewNop())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.EmbedMany(context.Background(), []string{"one", "two"})
	if !errors.Is(err, ErrProvider) {
		t.Errorf("EmbedMany() error = %v, want ErrProvider", err)
	}
}
