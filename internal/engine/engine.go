package engine

import "context"

// Engine abstracts a local inference backend. Consumers such as the
// question-answering agent and the corpus indexer use this interface
// instead of depending on a concrete client, which also keeps them
// testable with scripted doubles.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// Embed returns the embedding vector for the given text using the specified model.
	Embed(ctx context.Context, model string, text string) ([]float32, error)

	// IsRunning reports whether the inference backend is reachable.
	IsRunning(ctx context.Context) bool
}
