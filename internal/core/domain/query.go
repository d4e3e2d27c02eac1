package domain

// Query is the canonical per-request representation of a user question.
// It is built once by the normalizer and never mutated afterwards.
type Query struct {
	RawText string
	OCRText string

	// Tokens is the ordered lowercase token sequence of the user text,
	// consumed by the sparse path.
	Tokens []string

	// OCRKeywords are salient tokens distilled from OCR output. They are
	// kept apart from Tokens so the sparse retriever can weight them lower.
	OCRKeywords []string

	// Embedding is the dense query vector. Empty when the embedding
	// collaborator was unavailable; DenseDisabled is set in that case and
	// dense retrieval degrades to an empty contribution.
	Embedding     []float32
	DenseDisabled bool
}

// HasSparseInput reports whether the sparse path has anything to search with.
func (q Query) HasSparseInput() bool {
	return len(q.Tokens) > 0 || len(q.OCRKeywords) > 0
}
