package ports

import (
	"context"

	"github.com/kirillkom/screen-assistant/internal/core/domain"
)

// AssistRequest is the transport-agnostic input of one pipeline run.
type AssistRequest struct {
	RequestID string
	RawText   string
	OCRText   string
}

// AssistantService is the inbound contract for the retrieval and generation
// pipeline. The outcome always carries per-stage diagnostics; a non-nil
// error means the run aborted and the outcome status is failed.
type AssistantService interface {
	Answer(ctx context.Context, req AssistRequest) (*domain.PipelineOutcome, error)
}
