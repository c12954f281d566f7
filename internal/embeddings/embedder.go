package embeddings

import "context"

// EmbeddingProvider turns rendered channel text (profile, interests,
// expertise) into a vector. Implementations must return vectors of a
// consistent dimension for the lifetime of the process; retrieval compares
// vectors across users and mixed dimensions would poison similarity scores.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
