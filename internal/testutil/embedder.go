package testutil

import "context"

// VectorDim matches the stored embedding width.
const VectorDim = 768

// UnitVector returns a one-hot vector on the given axis. Identical axes have
// cosine similarity 1, distinct axes 0, which makes retrieval thresholds
// easy to stage in tests.
func UnitVector(axis int) []float32 {
	v := make([]float32, VectorDim)
	v[axis%VectorDim] = 1
	return v
}

// BlendedVector mixes two axes so cosine similarity against either unit
// vector lands strictly between 0 and 1.
func BlendedVector(axisA, axisB int, weightA, weightB float32) []float32 {
	v := make([]float32, VectorDim)
	v[axisA%VectorDim] += weightA
	v[axisB%VectorDim] += weightB
	return v
}

// FakeEmbedder satisfies the store's embedder dependency with scripted
// vectors. Texts without an entry get no embedding, mirroring provider
// degradation per input.
type FakeEmbedder struct {
	Vectors     map[string][]float32
	Unavailable bool
}

// NewFakeEmbedder creates an available FakeEmbedder with an empty script.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Vectors: make(map[string][]float32)}
}

// Set scripts the vector returned for a text.
func (f *FakeEmbedder) Set(text string, vector []float32) {
	f.Vectors[text] = vector
}

func (f *FakeEmbedder) Available() bool { return !f.Unavailable }

func (f *FakeEmbedder) EmbedBatch(_ context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	if f.Unavailable {
		return out
	}
	for i, text := range texts {
		out[i] = f.Vectors[text]
	}
	return out
}

func (f *FakeEmbedder) EmbedQuery(_ context.Context, query string) []float32 {
	if f.Unavailable {
		return nil
	}
	return f.Vectors[query]
}
