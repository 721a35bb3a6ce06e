// Package testutil provides shared test infrastructure: a
// deterministic stub embedder and a disposable pgvector database.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/darasa-ai/darasa/internal/embedding"
)

// StubEmbedder is a deterministic embedding.Embedder for tests. The
// vector for a given text is derived from a hash of the text, so equal
// inputs always embed identically and distinct inputs land in distinct
// directions, without any network dependency.
//
// Set Err to make every call fail, or FailAfter to let the first N
// calls succeed (useful for mid-pipeline failure scenarios).
type StubEmbedder struct {
	// Dim is the vector length. Zero means embedding.Dimensions.
	Dim int

	// Err, when set, is returned by every embed call.
	Err error

	// FailAfter > 0 makes calls past the Nth return Err (which must
	// also be set).
	FailAfter int

	mu    sync.Mutex
	calls int

	// Fixed, when non-nil, is returned for every text instead of the
	// hash-derived vector.
	Fixed []float32
}

// Calls reports how many embed calls were made (EmbedOne and
// EmbedMany each count once).
func (s *StubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StubEmbedder) Dimensions() int {
	if s.Dim > 0 {
		return s.Dim
	}
	return embedding.Dimensions
}

func (s *StubEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *StubEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	calls := s.calls
	s.mu.Unlock()

	if s.Err != nil && (s.FailAfter == 0 || calls > s.FailAfter) {
		return nil, s.Err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if s.Fixed != nil {
			out[i] = s.Fixed
			continue
		}
		out[i] = s.vectorFor(t)
	}
	return out, nil
}

// vectorFor maps text to a unit vector whose direction depends only on
// the text content.
func (s *StubEmbedder) vectorFor(text string) []float32 {
	dim := s.Dimensions()
	sum := sha256.Sum256([]byte(embedding.Normalize(text)))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		word := binary.BigEndian.Uint32(sum[(i*4)%(len(sum)-4):])
		// Re-hash per position so vectors vary along every dimension.
		word = word*2654435761 + uint32(i)
		v := float64(int32(word)) / float64(math.MaxInt32)
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
