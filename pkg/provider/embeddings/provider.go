// Package embeddings defines the Provider interface for vector embedding
// backends and the vector math shared by the memory layer.
//
// An embeddings provider maps text strings to dense float32 vectors. Animus
// uses these vectors for long-term memory retrieval (pgvector cosine search)
// and for duplicate-output detection in the generation worker. The platform
// default is a 384-dimension BGE-small model hosted by a dedicated worker
// process (see the worker subpackage); remote backends such as Ollama are
// available as alternatives.
//
// All vectors handed to the memory layer must be L2-normalized. Providers are
// not required to normalize — call [Normalize] at the service boundary.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation unless
// they have verified that both use the same model and space.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled.
	//
	// The input text should be pre-processed according to the model's
	// requirements (e.g., BGE retrieval queries perform better with a
	// "query: " prefix). The Provider passes text through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The returned slice has the same length as texts
	// and the i-th element corresponds to texts[i].
	//
	// Returns an error if any single embedding fails or if ctx is cancelled.
	// Partial results are not returned — on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "bge-small-en-v1.5"). Useful for logging and for
	// ensuring consistent model usage across stored memories.
	ModelID() string
}

// HealthChecker is implemented by providers that can report whether their
// backing model is loaded and ready to serve. The generation path checks
// readiness before deciding whether to degrade (skip memory retrieval and
// duplicate detection) rather than fail a request.
type HealthChecker interface {
	// Healthy reports whether the backing model is loaded.
	Healthy(ctx context.Context) bool
}
