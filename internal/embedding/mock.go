package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"

	"calmd/internal/logging"
)

// =============================================================================
// MOCK EMBEDDING ENGINE
// =============================================================================
//
// MockEngine produces deterministic, L2-normalized vectors from a hash of the
// input text, so tests can exercise the Clusterer, Searcher, and Value Store
// without a live Ollama/GenAI backend and still get stable, repeatable
// similarity relationships between fixture strings.

// MockEngine is a deterministic embedding backend for tests and offline runs.
type MockEngine struct {
	dimensions int
}

// NewMockEngine creates a mock engine producing vectors of the given dimensionality.
func NewMockEngine(dimensions int) *MockEngine {
	if dimensions <= 0 {
		dimensions = 768
	}
	return &MockEngine{dimensions: dimensions}
}

// Embed hashes text to a seed, draws from a seeded normal distribution, and
// L2-normalizes the result. Identical text always produces an identical vector.
func (e *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	// Cryptographic hash per spec.md section 4.C, matching the original
	// mock embedder's hashlib.md5-derived seed exactly: first 4 bytes of
	// the digest, big-endian, as the PRNG seed.
	sum := md5.Sum([]byte(text))
	seed := int64(binary.BigEndian.Uint32(sum[:4]))
	rng := rand.New(rand.NewSource(seed))

	vec := make([]float32, e.dimensions)
	var sumSquares float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		sumSquares += v * v
	}

	norm := math.Sqrt(sumSquares)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	logging.EmbeddingDebug("MockEngine.Embed: text_length=%d seed=%d dimensions=%d", len(text), seed, e.dimensions)
	return vec, nil
}

// EmbedBatch embeds each text independently via Embed.
func (e *MockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (e *MockEngine) Dimensions() int { return e.dimensions }

// Name returns the engine name.
func (e *MockEngine) Name() string { return "mock" }

// HealthCheck always succeeds; the mock engine has no external dependency.
func (e *MockEngine) HealthCheck(ctx context.Context) error { return nil }
