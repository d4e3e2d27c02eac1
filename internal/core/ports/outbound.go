package ports

import (
	"context"
	"io"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// Embedder turns query text into a fixed-length vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// DenseRetriever performs nearest-neighbour search over the vector index.
// The index handle is read-only and shared across requests.
type DenseRetriever interface {
	RetrieveDense(ctx context.Context, query domain.Query, k int) ([]domain.PassageRef, error)
}

// SparseRetriever performs lexical search over the keyword index.
type SparseRetriever interface {
	RetrieveSparse(ctx context.Context, query domain.Query, k int) ([]domain.PassageRef, error)
}

// AnswerGenerator invokes the external generation collaborator with a fully
// rendered prompt. Transient failures are wrapped as domain.ErrTemporary so
// the generation driver can decide whether to retry.
type AnswerGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OCRExtractor extracts text from a shared-screen image. Failure is a
// degraded path: the caller proceeds without OCR text.
type OCRExtractor interface {
	ExtractText(ctx context.Context, filename string, image io.Reader) (string, error)
}

// AuditPublisher emits a compact per-request audit event. Best effort; the
// pipeline never fails a request over audit delivery.
type AuditPublisher interface {
	PublishOutcome(ctx context.Context, event domain.AuditEvent) error
}
