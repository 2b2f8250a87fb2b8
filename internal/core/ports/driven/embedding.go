package driven

import "context"

// EmbeddingProvider generates vector embeddings from text.
// This is optional - when nil, semantic search returns no results.
//
// Implementations may include:
//   - Ollama (nomic-embed-text, all-minilm)
//   - Local models via inference servers
type EmbeddingProvider interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
